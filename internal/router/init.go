package router

import (
	"github.com/eatright/eatright-api/internal/application"
	"github.com/eatright/eatright-api/internal/container"
	pginfra "github.com/eatright/eatright-api/internal/infrastructure/postgres"
	handlers "github.com/eatright/eatright-api/internal/interface/http"
	"github.com/eatright/eatright-api/internal/router/modules"
	"github.com/eatright/eatright-api/pkg/mailer"
)

// InitModules initializes all application modules and registers them with the
// router registry. Called once during startup after the container is filled.
func InitModules(r *Registry) {
	pool := container.GetPGPool()
	users := pginfra.NewUserRepository(pool)
	revoked := pginfra.NewRevocationRepository(pool)

	var notifier application.Notifier
	if pub := container.GetRabbitPub(); pub != nil {
		notifier = mailer.NewQueueNotifier(pub)
	}

	svc := application.NewAuthService(
		users,
		revoked,
		container.GetTokenCodec(),
		notifier,
		container.GetRedis(),
		container.GetLogger(),
		container.GetES(),
		container.GetConfig().ESAuditIndex,
		container.GetConfig(),
	)

	handler := handlers.NewAuthHandler(svc, container.GetLogger())
	r.Add(modules.NewAuthModule(handler, container.GetTokenCodec(), revoked))
}
