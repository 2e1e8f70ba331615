package application

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eatright/eatright-api/config"
	"github.com/eatright/eatright-api/internal/domain/entity"
	repo "github.com/eatright/eatright-api/internal/domain/repository"
	"github.com/eatright/eatright-api/pkg/helpers"
	"github.com/eatright/eatright-api/pkg/mailer"
)

type fakeUsers struct {
	mu        sync.Mutex
	byID      map[string]*entity.User
	createErr error
	updateErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]*entity.User{}}
}

func (f *fakeUsers) Create(_ context.Context, u *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return repo.ErrDuplicateEmail
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) Update(_ context.Context, u *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.byID[u.ID]; !ok {
		return errors.New("no such user")
	}
	u.UpdatedAt = time.Now()
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

type fakeRevocations struct {
	mu     sync.Mutex
	tokens map[string]struct{}
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{tokens: map[string]struct{}{}}
}

func (f *fakeRevocations) Record(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[token]; ok {
		return false, nil
	}
	f.tokens[token] = struct{}{}
	return true, nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tokens[token]
	return ok, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	jobs []mailer.EmailJob
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, job mailer.EmailJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeNotifier) sent() []mailer.EmailJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailer.EmailJob(nil), f.jobs...)
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:          "eatright-api",
		ResetPasswordURL: "https://app.eatright.local/reset-password",
		VerifyEmailURL:   "https://app.eatright.local/verify-email",
		MailSendEnabled:  true,
	}
}

func newTestService() (*AuthService, *fakeUsers, *fakeRevocations, *fakeNotifier) {
	users := newFakeUsers()
	revoked := newFakeRevocations()
	notifier := &fakeNotifier{}
	codec := helpers.NewTokenCodec("access-secret", "reset-secret", "verify-secret", time.Hour, time.Hour, time.Hour)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewAuthService(users, revoked, codec, notifier, nil, logger, nil, "", testConfig())
	return svc, users, revoked, notifier
}

func seedUser(t *testing.T, users *fakeUsers, email, password string, active bool) *entity.User {
	t.Helper()
	hash, err := helpers.HashPassword(password)
	require.NoError(t, err)
	u := &entity.User{
		FirstName:    "Jamie",
		LastName:     "Doe",
		Email:        email,
		PasswordHash: hash,
		IsActive:     active,
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

// tokenFromJob pulls the raw token out of the link embedded in an email job.
func tokenFromJob(t *testing.T, job mailer.EmailJob) string {
	t.Helper()
	link, ok := job.Data["Link"].(string)
	require.True(t, ok, "email job has no Link")
	_, token, found := strings.Cut(link, "token=")
	require.True(t, found, "link %q carries no token", link)
	return token
}

func TestRegister(t *testing.T) {
	svc, users, _, notifier := newTestService()
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{
		FirstName: "Jamie",
		LastName:  "Doe",
		Email:     "jamie@example.com",
		Password:  "Sup3rSecret$",
	})
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.NotEmpty(t, res.User.ID)
	assert.False(t, res.User.IsActive, "new users start inactive")
	assert.True(t, res.NotificationSent)

	stored, err := users.GetByEmail(ctx, "jamie@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEqual(t, "Sup3rSecret$", stored.PasswordHash)
	assert.True(t, helpers.CompareHashAndPassword(stored.PasswordHash, "Sup3rSecret$"))

	jobs := notifier.sent()
	require.Len(t, jobs, 1)
	assert.Equal(t, "jamie@example.com", jobs[0].To)
	assert.Equal(t, mailer.TemplateVerifyEmail, jobs[0].Template)

	uid, err := svc.Codec.Verify(helpers.TokenPurposeVerifyEmail, tokenFromJob(t, jobs[0]))
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, uid)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	in := RegisterInput{FirstName: "Jamie", LastName: "Doe", Email: "dup@example.com", Password: "Sup3rSecret$"}
	_, err := svc.Register(ctx, in)
	require.NoError(t, err)

	_, err = svc.Register(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegister_UniqueIndexWins(t *testing.T) {
	// The advisory lookup can miss under a race; the constraint violation from
	// the store must still come back as a duplicate.
	svc, users, _, _ := newTestService()
	users.createErr = repo.ErrDuplicateEmail

	_, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "Jamie", LastName: "Doe", Email: "race@example.com", Password: "Sup3rSecret$",
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegister_NotifierFailureIsPartialSuccess(t *testing.T) {
	svc, users, _, notifier := newTestService()
	notifier.err = errors.New("broker down")
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{
		FirstName: "Jamie", LastName: "Doe", Email: "jamie@example.com", Password: "Sup3rSecret$",
	})
	require.NoError(t, err)
	assert.False(t, res.NotificationSent)

	stored, err := users.GetByEmail(ctx, "jamie@example.com")
	require.NoError(t, err)
	assert.NotNil(t, stored, "user must stay committed when the email fails")
}

func TestLogin(t *testing.T) {
	svc, users, _, _ := newTestService()
	ctx := context.Background()
	u := seedUser(t, users, "jamie@example.com", "Sup3rSecret$", true)

	res, err := svc.Login(ctx, "jamie@example.com", "Sup3rSecret$")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.UserID)
	assert.True(t, res.IsActive)
	assert.True(t, res.ExpiresAt.After(time.Now()))

	uid, err := svc.Codec.Verify(helpers.TokenPurposeAccess, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, uid)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, users, _, _ := newTestService()
	seedUser(t, users, "jamie@example.com", "Sup3rSecret$", true)

	_, err := svc.Login(context.Background(), "jamie@example.com", "not-the-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Login(context.Background(), "nobody@example.com", "Sup3rSecret$")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLogin_InactiveUserStillGetsToken(t *testing.T) {
	svc, users, _, _ := newTestService()
	seedUser(t, users, "jamie@example.com", "Sup3rSecret$", false)

	res, err := svc.Login(context.Background(), "jamie@example.com", "Sup3rSecret$")
	require.NoError(t, err)
	assert.False(t, res.IsActive)
	assert.NotEmpty(t, res.AccessToken)
}

func TestLogout(t *testing.T) {
	svc, users, _, _ := newTestService()
	ctx := context.Background()
	seedUser(t, users, "jamie@example.com", "Sup3rSecret$", true)

	res, err := svc.Login(ctx, "jamie@example.com", "Sup3rSecret$")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, res.AccessToken))
	assert.ErrorIs(t, svc.Logout(ctx, res.AccessToken), ErrAlreadyRevoked)
}

func TestLogout_InvalidToken(t *testing.T) {
	svc, _, _, _ := newTestService()
	assert.ErrorIs(t, svc.Logout(context.Background(), "not-a-jwt"), ErrInvalidToken)
}

func TestVerifyEmailLifecycle(t *testing.T) {
	svc, users, _, notifier := newTestService()
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{
		FirstName: "Jamie", LastName: "Doe", Email: "jamie@example.com", Password: "Sup3rSecret$",
	})
	require.NoError(t, err)

	jobs := notifier.sent()
	require.Len(t, jobs, 1)
	token := tokenFromJob(t, jobs[0])

	require.NoError(t, svc.VerifyEmail(ctx, token))

	u, err := users.GetByID(ctx, res.User.ID)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.IsActive)

	// Replay of the consumed token.
	assert.ErrorIs(t, svc.VerifyEmail(ctx, token), ErrAlreadyRevoked)

	// A fresh token for an already-active user is rejected before any write.
	fresh, _, err := svc.Codec.Issue(helpers.TokenPurposeVerifyEmail, res.User.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.VerifyEmail(ctx, fresh), ErrAlreadyActive)
}

func TestVerifyEmail_WrongPurpose(t *testing.T) {
	svc, users, _, _ := newTestService()
	u := seedUser(t, users, "jamie@example.com", "Sup3rSecret$", false)

	resetTok, _, err := svc.Codec.Issue(helpers.TokenPurposePasswordReset, u.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), resetTok), ErrInvalidToken)
}

func TestVerifyEmail_UnknownUser(t *testing.T) {
	svc, _, _, _ := newTestService()

	tok, _, err := svc.Codec.Issue(helpers.TokenPurposeVerifyEmail, uuid.NewString())
	require.NoError(t, err)
	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), tok), ErrUserNotFound)
}

func TestRequestEmailVerification(t *testing.T) {
	svc, users, _, notifier := newTestService()
	ctx := context.Background()
	u := seedUser(t, users, "jamie@example.com", "Sup3rSecret$", false)

	require.NoError(t, svc.RequestEmailVerification(ctx, u.ID))
	jobs := notifier.sent()
	require.Len(t, jobs, 1)
	assert.Equal(t, mailer.TemplateVerifyEmail, jobs[0].Template)

	assert.ErrorIs(t, svc.RequestEmailVerification(ctx, uuid.NewString()), ErrUserNotFound)
}

func TestRequestEmailVerification_AlreadyActive(t *testing.T) {
	svc, users, _, _ := newTestService()
	u := seedUser(t, users, "jamie@example.com", "Sup3rSecret$", true)

	assert.ErrorIs(t, svc.RequestEmailVerification(context.Background(), u.ID), ErrAlreadyActive)
}

func TestPasswordResetLifecycle(t *testing.T) {
	svc, users, _, notifier := newTestService()
	ctx := context.Background()
	u := seedUser(t, users, "jamie@example.com", "OldPassw0rd$", true)

	require.NoError(t, svc.RequestPasswordRecovery(ctx, "jamie@example.com"))
	jobs := notifier.sent()
	require.Len(t, jobs, 1)
	assert.Equal(t, mailer.TemplateResetPassword, jobs[0].Template)
	token := tokenFromJob(t, jobs[0])

	require.NoError(t, svc.ResetPassword(ctx, token, "NewPassw0rd$"))

	stored, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, helpers.CompareHashAndPassword(stored.PasswordHash, "NewPassw0rd$"))
	assert.False(t, helpers.CompareHashAndPassword(stored.PasswordHash, "OldPassw0rd$"))

	// The token is single use.
	assert.ErrorIs(t, svc.ResetPassword(ctx, token, "AnotherPassw0rd$"), ErrAlreadyRevoked)
}

func TestResetPassword_SamePassword(t *testing.T) {
	svc, users, _, _ := newTestService()
	ctx := context.Background()
	u := seedUser(t, users, "jamie@example.com", "OldPassw0rd$", true)

	token, _, err := svc.Codec.Issue(helpers.TokenPurposePasswordReset, u.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ResetPassword(ctx, token, "OldPassw0rd$"), ErrSamePassword)

	// Rejection happens before the token is consumed; a retry with a new
	// password still goes through.
	require.NoError(t, svc.ResetPassword(ctx, token, "NewPassw0rd$"))
}

func TestResetPassword_InactiveUser(t *testing.T) {
	svc, users, _, _ := newTestService()
	u := seedUser(t, users, "jamie@example.com", "OldPassw0rd$", false)

	token, _, err := svc.Codec.Issue(helpers.TokenPurposePasswordReset, u.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ResetPassword(context.Background(), token, "NewPassw0rd$"), ErrUserInactive)
}

func TestResetPassword_InvalidToken(t *testing.T) {
	svc, _, _, _ := newTestService()
	assert.ErrorIs(t, svc.ResetPassword(context.Background(), "garbage", "NewPassw0rd$"), ErrInvalidToken)
}

func TestRequestPasswordRecovery_UnknownEmail(t *testing.T) {
	svc, _, _, _ := newTestService()
	err := svc.RequestPasswordRecovery(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRequestPasswordRecovery_NotifierFailure(t *testing.T) {
	svc, users, _, notifier := newTestService()
	seedUser(t, users, "jamie@example.com", "Sup3rSecret$", true)
	notifier.err = errors.New("broker down")

	err := svc.RequestPasswordRecovery(context.Background(), "jamie@example.com")
	assert.ErrorIs(t, err, ErrNotifierFailure)
}

func TestNotify_DisabledSkipsDelivery(t *testing.T) {
	svc, users, _, notifier := newTestService()
	svc.Cfg.MailSendEnabled = false
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{
		FirstName: "Jamie", LastName: "Doe", Email: "jamie@example.com", Password: "Sup3rSecret$",
	})
	require.NoError(t, err)
	assert.Empty(t, notifier.sent())

	seedUser(t, users, "other@example.com", "Sup3rSecret$", true)
	require.NoError(t, svc.RequestPasswordRecovery(ctx, "other@example.com"))
	assert.Empty(t, notifier.sent())
}
