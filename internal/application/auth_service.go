package application

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eatright/eatright-api/config"
	"github.com/eatright/eatright-api/internal/domain/entity"
	repo "github.com/eatright/eatright-api/internal/domain/repository"
	"github.com/eatright/eatright-api/pkg/helpers"
	"github.com/eatright/eatright-api/pkg/mailer"
)

// Expected outcomes of the auth flows. These are the only errors the service
// surfaces; storage and token library internals never cross this boundary.
var (
	ErrDuplicateEmail     = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user does not exist")
	ErrInvalidCredentials = errors.New("password is incorrect")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserInactive       = errors.New("user is not active")
	ErrAlreadyActive      = errors.New("user is already active")
	ErrAlreadyRevoked     = errors.New("token has been revoked")
	ErrSamePassword       = errors.New("password cannot be the same as current password")
	ErrNotifierFailure    = errors.New("notification could not be sent")
)

// Notifier hands a rendered-or-templated email job to the delivery side
// channel. Delivery is best effort; a committed state change is never rolled
// back because a notification failed.
type Notifier interface {
	Send(ctx context.Context, job mailer.EmailJob) error
}

// AuthService orchestrates registration, login, logout, password recovery and
// email verification over the user directory, the token codec and the
// revocation store. Redis and Elasticsearch are optional fast path / audit
// collaborators; the service works with either set to nil.
type AuthService struct {
	Users        repo.UserRepository
	Revoked      repo.RevocationRepository
	Codec        *helpers.TokenCodec
	Notifier     Notifier
	Redis        *redis.Client
	Logger       *logrus.Logger
	ES           *elasticsearch.Client
	ESAuditIndex string
	Cfg          *config.Config
}

func NewAuthService(users repo.UserRepository, revoked repo.RevocationRepository, codec *helpers.TokenCodec, notifier Notifier, rdb *redis.Client, logger *logrus.Logger, es *elasticsearch.Client, esAuditIndex string, cfg *config.Config) *AuthService {
	return &AuthService{
		Users:        users,
		Revoked:      revoked,
		Codec:        codec,
		Notifier:     notifier,
		Redis:        rdb,
		Logger:       logger,
		ES:           es,
		ESAuditIndex: esAuditIndex,
		Cfg:          cfg,
	}
}

type RegisterInput struct {
	FirstName   string
	LastName    string
	Email       string
	Password    string
	PhoneNumber string
}

// RegisterResult reports the created user and whether the verification email
// made it onto the wire. NotificationSent=false is a partial success, not a
// failure: the user row is already committed.
type RegisterResult struct {
	User             *entity.User
	NotificationSent bool
}

type LoginResult struct {
	UserID      string
	AccessToken string
	ExpiresAt   time.Time
	IsActive    bool
}

func revokedCacheKey(token string) string {
	return "auth:revoked:" + token
}

// Register creates an inactive user and sends the verification email.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	// Advisory early exit; the unique index on users.email is the authority.
	if existing, err := s.Users.GetByEmail(ctx, in.Email); err == nil && existing != nil {
		return RegisterResult{}, ErrDuplicateEmail
	}

	hash, err := helpers.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	u := &entity.User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
		PhoneNumber:  in.PhoneNumber,
		IsActive:     false,
		IsDisabled:   false,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return RegisterResult{}, ErrDuplicateEmail
		}
		s.logError("create user failed", err, logrus.Fields{"email": in.Email})
		return RegisterResult{}, err
	}

	s.audit(ctx, "register", u.ID, u.Email)

	sent := s.sendVerifyEmail(ctx, u) == nil
	return RegisterResult{User: u, NotificationSent: sent}, nil
}

// Login validates credentials and issues an access token. It does not gate on
// is_active; the flag is returned so the caller can decide what to allow.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		s.logError("lookup user failed", err, logrus.Fields{"email": email})
		return LoginResult{}, err
	}
	if u == nil {
		return LoginResult{}, ErrUserNotFound
	}
	if !helpers.CompareHashAndPassword(u.PasswordHash, password) {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, exp, err := s.Codec.Issue(helpers.TokenPurposeAccess, u.ID)
	if err != nil {
		s.logError("issue access token failed", err, logrus.Fields{"user_id": u.ID})
		return LoginResult{}, err
	}

	s.audit(ctx, "login", u.ID, u.Email)
	return LoginResult{UserID: u.ID, AccessToken: token, ExpiresAt: exp, IsActive: u.IsActive}, nil
}

// Logout blacklists the presented access token. The same fixed order applies
// to every single-use flow: advisory revocation check, signature check, then
// the atomic record that decides the race.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	revoked, err := s.isRevoked(ctx, token)
	if err != nil {
		return err
	}
	if revoked {
		return ErrAlreadyRevoked
	}

	uid, err := s.Codec.Verify(helpers.TokenPurposeAccess, token)
	if err != nil {
		return ErrInvalidToken
	}

	if err := s.revoke(ctx, token, helpers.TokenPurposeAccess); err != nil {
		return err
	}

	s.audit(ctx, "logout", uid, "")
	return nil
}

// RequestPasswordRecovery issues a reset token and mails the reset link.
func (s *AuthService) RequestPasswordRecovery(ctx context.Context, email string) error {
	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}

	token, _, err := s.Codec.Issue(helpers.TokenPurposePasswordReset, u.ID)
	if err != nil {
		return err
	}

	s.audit(ctx, "password_recovery", u.ID, u.Email)

	link := s.Cfg.ResetPasswordURL + "?token=" + token
	job := mailer.EmailJob{
		To:       u.Email,
		Template: mailer.TemplateResetPassword,
		Data: map[string]any{
			"AppName":      s.Cfg.AppName,
			"Name":         u.FirstName,
			"Email":        u.Email,
			"Link":         link,
			"ValidMinutes": int(s.Codec.TTL(helpers.TokenPurposePasswordReset).Minutes()),
		},
	}
	if err := s.notify(ctx, job); err != nil {
		return ErrNotifierFailure
	}
	return nil
}

// ResetPassword consumes a password-reset token and stores the new password.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	revoked, err := s.isRevoked(ctx, token)
	if err != nil {
		return err
	}
	if revoked {
		return ErrAlreadyRevoked
	}

	uid, err := s.Codec.Verify(helpers.TokenPurposePasswordReset, token)
	if err != nil {
		return ErrInvalidToken
	}

	u, err := s.Users.GetByID(ctx, uid)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	if !u.IsActive {
		return ErrUserInactive
	}
	if helpers.CompareHashAndPassword(u.PasswordHash, newPassword) {
		return ErrSamePassword
	}

	// Single-use enforcement happens here, before the mutation: the loser of
	// a concurrent replay sees AlreadyRevoked and changes nothing.
	if err := s.revoke(ctx, token, helpers.TokenPurposePasswordReset); err != nil {
		return err
	}

	hash, err := helpers.HashPassword(newPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := s.Users.Update(ctx, u); err != nil {
		s.logError("store new password failed", err, logrus.Fields{"user_id": u.ID})
		return err
	}

	s.audit(ctx, "password_reset", u.ID, u.Email)
	return nil
}

// RequestEmailVerification re-sends the verification email for an inactive user.
func (s *AuthService) RequestEmailVerification(ctx context.Context, userID string) error {
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	if u.IsActive {
		return ErrAlreadyActive
	}

	s.audit(ctx, "verify_request", u.ID, u.Email)

	if err := s.sendVerifyEmail(ctx, u); err != nil {
		return ErrNotifierFailure
	}
	return nil
}

// VerifyEmail consumes an email-verification token and activates the user.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	revoked, err := s.isRevoked(ctx, token)
	if err != nil {
		return err
	}
	if revoked {
		return ErrAlreadyRevoked
	}

	uid, err := s.Codec.Verify(helpers.TokenPurposeVerifyEmail, token)
	if err != nil {
		return ErrInvalidToken
	}

	u, err := s.Users.GetByID(ctx, uid)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrUserNotFound
	}
	if u.IsActive {
		return ErrAlreadyActive
	}

	if err := s.revoke(ctx, token, helpers.TokenPurposeVerifyEmail); err != nil {
		return err
	}

	u.IsActive = true
	if err := s.Users.Update(ctx, u); err != nil {
		s.logError("activate user failed", err, logrus.Fields{"user_id": u.ID})
		return err
	}

	s.audit(ctx, "verify_email", u.ID, u.Email)
	return nil
}

func (s *AuthService) sendVerifyEmail(ctx context.Context, u *entity.User) error {
	token, _, err := s.Codec.Issue(helpers.TokenPurposeVerifyEmail, u.ID)
	if err != nil {
		s.logError("issue verify token failed", err, logrus.Fields{"user_id": u.ID})
		return err
	}
	link := s.Cfg.VerifyEmailURL + "?token=" + token
	job := mailer.EmailJob{
		To:       u.Email,
		Template: mailer.TemplateVerifyEmail,
		Data: map[string]any{
			"AppName":      s.Cfg.AppName,
			"Name":         u.FirstName,
			"Email":        u.Email,
			"Link":         link,
			"ValidMinutes": int(s.Codec.TTL(helpers.TokenPurposeVerifyEmail).Minutes()),
		},
	}
	return s.notify(ctx, job)
}

func (s *AuthService) notify(ctx context.Context, job mailer.EmailJob) error {
	if s.Notifier == nil || !s.Cfg.MailSendEnabled {
		return nil
	}
	if err := s.Notifier.Send(ctx, job); err != nil {
		s.logError("enqueue email failed", err, logrus.Fields{"to": job.To, "template": job.Template})
		return err
	}
	return nil
}

// isRevoked consults the Redis cache first, then the store. The cache is an
// advisory fast path; only the store answer is authoritative.
func (s *AuthService) isRevoked(ctx context.Context, token string) (bool, error) {
	if s.Redis != nil {
		if v, err := s.Redis.Exists(ctx, revokedCacheKey(token)).Result(); err == nil && v > 0 {
			return true, nil
		}
	}
	revoked, err := s.Revoked.IsRevoked(ctx, token)
	if err != nil {
		s.logError("revocation lookup failed", err, nil)
		return false, err
	}
	return revoked, nil
}

func (s *AuthService) revoke(ctx context.Context, token string, purpose helpers.TokenPurpose) error {
	inserted, err := s.Revoked.Record(ctx, token)
	if err != nil {
		s.logError("record revocation failed", err, nil)
		return err
	}
	if !inserted {
		return ErrAlreadyRevoked
	}
	if s.Redis != nil {
		// Cache entries expire with the token itself; after that the
		// signature check rejects it anyway.
		_ = s.Redis.Set(ctx, revokedCacheKey(token), "1", s.Codec.TTL(purpose)).Err()
	}
	return nil
}

// audit indexes an auth event into Elasticsearch, best effort.
func (s *AuthService) audit(ctx context.Context, action, userID, email string) {
	if s.ES == nil || s.ESAuditIndex == "" {
		return
	}
	doc := map[string]any{
		"action":  action,
		"user_id": userID,
		"at":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if email != "" {
		doc["email"] = email
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: s.ESAuditIndex, DocumentID: uuid.NewString(), Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("action", action).Warn("audit index failed")
		}
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("action", action).Warn("audit index response error")
	}
}

func (s *AuthService) logError(msg string, err error, fields logrus.Fields) {
	if s.Logger == nil {
		return
	}
	helpers.LogError(s.Logger, msg, err, fields)
}
