package adapthttp

import (
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"bolus/internal/app"
	"bolus/internal/metrics"
)

// OIDCConfig carries the single sign-on provider. SSO routes answer 404
// unless Enabled is set.
type OIDCConfig struct {
	Enabled      bool
	Provider     *oidc.Provider
	OAuth2Config *oauth2.Config
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	dose       *app.DoseService
	history    *app.HistoryService
	reports    *app.ReportService
	authSvc    *app.AuthService
	oidcConfig OIDCConfig
	webDir     string
	log        logrus.FieldLogger
	now        func() time.Time

	disableAuth bool
}

// New creates a Server wired to the given application services.
func New(ds *app.DoseService, hs *app.HistoryService, rs *app.ReportService, as *app.AuthService, webDir string, log logrus.FieldLogger) *Server {
	return &Server{
		dose:    ds,
		history: hs,
		reports: rs,
		authSvc: as,
		webDir:  webDir,
		log:     log,
		now:     time.Now,
	}
}

// WithOIDC enables single sign-on.
func (s *Server) WithOIDC(cfg OIDCConfig) *Server {
	s.oidcConfig = cfg
	return s
}

// WithoutAuth disables authentication; every request acts as LocalUser.
func (s *Server) WithoutAuth() *Server {
	s.disableAuth = true
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	api.HandleFunc("/login", s.handleLogin)
	api.HandleFunc("/logout", s.handleLogout)
	api.HandleFunc("/setup", s.handleSetupUser)
	api.HandleFunc("/config", s.handleConfig)
	api.HandleFunc("/sso/login", s.handleSSOLogin)
	api.HandleFunc("/sso/callback", s.handleSSOCallback)

	protected := http.NewServeMux()
	protected.HandleFunc("/me", s.handleMe)
	protected.HandleFunc("/dose/calculate", s.handleDoseCalculate)
	protected.HandleFunc("/history", s.handleHistory)
	protected.HandleFunc("/history/delete", s.handleHistoryDelete)
	protected.HandleFunc("/history/export", s.handleHistoryExport)
	protected.HandleFunc("/history/restore", s.handleHistoryRestore)
	protected.HandleFunc("/report", s.handleReport)
	protected.HandleFunc("/charts/daily", s.handleChartsDaily)
	api.Handle("/", s.authMiddleware(protected))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("/metrics", metrics.Handler())
	root.Handle("/", spaFromDisk(s.webDir))

	return s.loggingMiddleware(withNoCache(root))
}
