package httpapi

import (
	"net/http"
	"os"
	"time"

	"stylegen/internal/http/handlers"
	"stylegen/internal/infra/quota"
	"stylegen/internal/middleware"
	"stylegen/internal/routes"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Options struct {
	Logger      zerolog.Logger
	CORSOrigins []string
	// TrustedProxyHops counts the reverse proxies in front of the service.
	TrustedProxyHops int
	Quota            quota.Store
	QuotaLimit       int
	QuotaWindow      time.Duration
	// PublicDir is served at / when it exists.
	PublicDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.Recover(opts.Logger),
		middleware.Logger(opts.Logger, opts.TrustedProxyHops),
		middleware.Metrics,
		middleware.CORS(opts.CORSOrigins),
		chimw.CleanPath,
	)

	r.Get("/health", app.Health)
	r.Get("/styles", app.ListStyles)
	r.Method(http.MethodGet, "/metrics", handlers.Metrics())

	// The bare base path shares its route's window.
	quotaFor := func(route routes.Route) func(http.Handler) http.Handler {
		if opts.Quota == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.Quota(middleware.QuotaOptions{
			Store:       opts.Quota,
			Limit:       opts.QuotaLimit,
			Window:      opts.QuotaWindow,
			Route:       route.Key(),
			TrustedHops: opts.TrustedProxyHops,
			Logger:      opts.Logger,
		})
	}
	if primary, ok := app.Routes.Primary(); ok {
		r.With(quotaFor(primary)).Post(routes.BasePath, app.GenerateImage(primary))
	}
	for _, route := range app.Routes.Routes() {
		r.With(quotaFor(route)).Post(route.Path(), app.GenerateImage(route))
	}

	if dir := opts.PublicDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			opts.Logger.Warn().Str("dir", dir).Msg("public directory missing, static files disabled")
		}
	}

	return r
}
