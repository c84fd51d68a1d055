package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/mailtmpl/internal/handler"
	"github.com/mailtmpl/internal/middleware"
)

func (app *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders(app.config.SecureCookies))

	health := handler.Health(app.db, nil)
	if app.redis != nil {
		health = handler.Health(app.db, handler.PingFunc(func(ctx context.Context) error {
			return app.redis.Ping(ctx).Err()
		}))
	}
	r.Get("/api/health", health)

	authHandler := handler.NewAuthHandler(app.logger, app.userStore, app.sessionStore, app.config.SecureCookies)
	r.With(middleware.RateLimit(rate.Every(12*time.Second), 5)).Post("/api/admin/login", authHandler.Login)
	r.Post("/api/admin/logout", authHandler.Logout)

	// Protected routes
	sessionMW := middleware.Session(app.sessionStore, app.userStore)
	r.Group(func(r chi.Router) {
		r.Use(sessionMW)

		r.Get("/api/admin/me", authHandler.Me)

		templates := handler.NewTemplateHandler(app.logger, app.templateStore, app.publisher)
		previews := handler.NewPreviewHandler(app.logger, app.templateStore, app.settingsStore, app.queue, app.publisher)
		enhance := handler.NewEnhanceHandler(app.logger, app.assist)
		perMinute := app.config.TestSendPerMinute

		r.Route("/api/email-templates", func(r chi.Router) {
			r.Get("/", templates.List)
			r.Post("/", templates.Create)
			r.Post("/preview", previews.PreviewDraft)
			r.Post("/enhance", enhance.Enhance)
			r.Get("/{id}", templates.Get)
			r.Put("/{id}", templates.Update)
			r.Delete("/{id}", templates.Delete)
			r.Post("/{id}/preview", previews.Preview)
			r.With(middleware.RateLimitBy(middleware.ClientUserOrIP, rate.Every(time.Minute/time.Duration(perMinute)), perMinute)).
				Post("/{id}/send-test", previews.SendTest)
		})

		catalog := handler.NewCatalogHandler(app.logger)
		r.Get("/api/placeholders", catalog.Placeholders)
		r.Get("/api/template-types", catalog.TemplateTypes)

		stream := handler.NewEventsHandler(app.hub)
		r.Get("/api/events", stream.WebSocket)
		r.Get("/api/events/stream", stream.Stream)

		// Super admin only
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSuperAdmin())

			settingsHandler := handler.NewSettingsHandler(app.logger, app.settingsStore, app.mailer)
			r.Get("/api/admin/settings", settingsHandler.Get)
			r.Put("/api/admin/settings", settingsHandler.Update)
			r.Post("/api/admin/settings/test-email", settingsHandler.TestEmail)

			usersHandler := handler.NewUsersHandler(app.logger, app.userStore, app.sessionStore)
			r.Get("/api/admin/users", usersHandler.List)
			r.Post("/api/admin/users", usersHandler.Create)
			r.Put("/api/admin/users/{id}", usersHandler.Update)
			r.Delete("/api/admin/users/{id}", usersHandler.Delete)
		})
	})
	return r
}
