package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/gateway"
	"github.com/target/lessonhub/internal/observability/statsd"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth     AuthServiceInterface
	Sessions *SessionManager

	UploadDir      string
	MaxUploadBytes int64
	// TrustedOrigins may make cross-origin state-changing requests.
	TrustedOrigins []string
	// Ready lists dependencies probed by /readyz.
	Ready map[string]Pinger
	// CompressionLevel is the gzip level; zero uses the gzip default.
	CompressionLevel int

	// Metrics receives request and gateway metrics; nil disables them.
	Metrics statsd.Sink

	IsDev  bool         // include error detail in 500 responses
	Logger *slog.Logger // optional
}

// routeTable registers each route on the mux and its requirement on the
// policy in one call, so the two cannot drift apart.
type routeTable struct {
	mux    *http.ServeMux
	policy *gateway.Policy
}

func (t routeTable) handle(pattern string, req gateway.Requirement, h http.HandlerFunc) {
	t.mux.Handle(pattern, h)
	t.policy.Set(pattern, req)
}

// NewRouter creates the HTTP handler: health probes outside the gateway,
// every application route behind it.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Auth == nil {
		return nil, errors.New("auth service is required")
	}
	if services.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var metrics statsd.Sink = statsd.Nop{}
	if services.Metrics != nil {
		metrics = services.Metrics
	}

	base := handlerBase{
		Sessions: services.Sessions,
		Errors:   ErrorResponder{IsDev: services.IsDev, Logger: logger, Metrics: metrics},
		Logger:   logger,
	}

	app := http.NewServeMux()
	policy := gateway.NewPolicy()
	routes := routeTable{mux: app, policy: policy}

	registerPageRoutes(routes, &PageHandlers{handlerBase: base})
	registerAuthRoutes(routes, &AuthHandlers{handlerBase: base, Svc: services.Auth})
	registerAccountRoutes(routes, &AccountHandlers{handlerBase: base, Svc: services.Auth})
	registerAPIRoutes(routes, &APIHandlers{
		handlerBase:    base,
		UploadDir:      services.UploadDir,
		MaxUploadBytes: services.MaxUploadBytes,
	})

	gw := Gateway(GatewayOptions{
		Sessions:   services.Sessions,
		Principals: services.Auth,
		Policy:     policy,
		Errors:     base.Errors,
		Metrics:    metrics,
		Logger:     logger,
	})

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", healthHandler)
	root.Handle("GET /readyz", readyHandler(services.Ready))
	root.Handle("/", gw(app))

	crossOrigin, err := CrossOriginProtection(services.TrustedOrigins, logger)
	if err != nil {
		return nil, err
	}

	return Chain(root,
		Recover(logger),
		Logging(logger),
		Metrics(metrics),
		SecurityHeaders(),
		Compression(CompressionConfig{Level: services.CompressionLevel, MinSize: 512, Logger: logger}),
		crossOrigin,
	), nil
}

func registerPageRoutes(t routeTable, h *PageHandlers) {
	public := gateway.RequireNothing()
	t.handle("GET /{$}", public, h.Home)
	t.handle("GET /subjects", public, h.Subjects)
	t.handle("GET /lessons", public, h.Lessons)
	t.handle("GET /community", public, h.Community)
	t.handle("GET /contact", public, h.ContactPage)
	t.handle("POST /contact", public, h.Contact)
}

func registerAuthRoutes(t routeTable, h *AuthHandlers) {
	public := gateway.RequireNothing()
	t.handle("GET /login", public, h.LoginPage)
	t.handle("POST /login", public, h.Login)
	t.handle("GET /signup", public, h.SignupPage)
	t.handle("POST /signup", public, h.Signup)
	t.handle("GET /logout", public, h.Logout)
	t.handle("GET /auth/{provider}", public, h.BeginOAuth)
	t.handle("GET /auth/{provider}/callback", public, h.OAuthCallback)
}

func registerAccountRoutes(t routeTable, h *AccountHandlers) {
	signedIn := gateway.RequireAuthenticated()
	t.handle("GET /account", signedIn, h.Account)
	t.handle("GET /account/unlink/{provider}", signedIn, h.Unlink)
	t.handle("POST /account/profile", signedIn, h.UpdateProfile)
	t.handle("POST /account/password", signedIn, h.ChangePassword)
	t.handle("POST /account/delete", signedIn, h.DeleteAccount)
}

func registerAPIRoutes(t routeTable, h *APIHandlers) {
	t.handle("GET /api/github", gateway.RequireScopes(domainauth.ProviderGitHub), h.GitHub)
	t.handle("GET /api/google/drive",
		gateway.RequireScopes(domainauth.ProviderGoogle, domainauth.ScopeGoogleDrive), h.GoogleDrive)
	t.handle("GET /api/upload", gateway.RequireNothing(), h.UploadPage)
	t.handle("POST /api/upload", gateway.RequireNothing(), h.Upload)
}
