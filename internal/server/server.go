package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"donationledger/internal/auth"
	"donationledger/internal/ledger"
	"donationledger/internal/metrics"
	"donationledger/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/go-playground/form/v4"
	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
)

var decoder = form.NewDecoder()

// Authenticator exchanges credentials for an access token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.Session, error)
}

// ImageStore keeps uploaded project and category images.
type ImageStore interface {
	Upload(ctx context.Context, prefix string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// Ledger groups the core components the handlers call.
type Ledger struct {
	Catalog    *ledger.Catalog
	Recorder   *ledger.Recorder
	Projector  *ledger.Projector
	Reconciler *ledger.Reconciler
}

type Service struct {
	logger *logrus.Logger
	config *types.Config

	catalog    *ledger.Catalog
	recorder   *ledger.Recorder
	projector  *ledger.Projector
	reconciler *ledger.Reconciler

	authenticator Authenticator
	verifier      auth.TokenVerifier
	images        ImageStore
	cookie        *securecookie.SecureCookie

	server *http.Server
}

func New(
	config *types.Config,
	logger *logrus.Logger,
	core Ledger,
	authenticator Authenticator,
	verifier auth.TokenVerifier,
	images ImageStore,
) (*Service, error) {
	mux := flow.New()

	hashKey, err := base64.StdEncoding.DecodeString(config.CookieHashKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cookie hash key: %w", err)
	}
	blockKey, err := base64.StdEncoding.DecodeString(config.CookieBlockKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cookie block key: %w", err)
	}
	if len(hashKey) == 0 {
		return nil, fmt.Errorf("set COOKIE_HASH_KEY")
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}

	s := &Service{
		logger: logger,
		config: config,

		catalog:    core.Catalog,
		recorder:   core.Recorder,
		projector:  core.Projector,
		reconciler: core.Reconciler,

		authenticator: authenticator,
		verifier:      verifier,
		images:        images,
		cookie:        securecookie.New(hashKey, blockKey).MaxAge(config.SessionMaxAgeSec),

		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}

	s.buildRouter(mux)

	return s, nil
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.StripTrailingSlash)
	r.Use(metrics.InstrumentHandler)
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)
	r.Handle("/metrics", metrics.Handler(), http.MethodGet)

	r.HandleFunc("/api/session", s.handlePostSession, http.MethodPost)
	r.HandleFunc("/api/session", s.handleDeleteSession, http.MethodDelete)
	r.HandleFunc("/api/webhooks/stripe", s.handleStripeWebhook, http.MethodPost)

	r.Group(func(r *flow.Mux) {
		r.Use(s.Authenticate)

		r.HandleFunc("/api/categories", s.handleListCategories, http.MethodGet)
		r.HandleFunc("/api/categories/:id", s.handleGetCategory, http.MethodGet)
		r.HandleFunc("/api/categories/:id/project-count", s.handleCategoryProjectCount, http.MethodGet)

		r.HandleFunc("/api/projects", s.handleListProjects, http.MethodGet)
		r.HandleFunc("/api/projects/:id", s.handleGetProject, http.MethodGet)
		r.HandleFunc("/api/projects/:id/progress", s.handleProjectProgress, http.MethodGet)
		r.HandleFunc("/api/needs/:id", s.handleGetNeed, http.MethodGet)

		r.Group(func(r *flow.Mux) {
			r.Use(s.RequireAuth)

			r.HandleFunc("/api/projects/:id/donations", s.handlePostDonation, http.MethodPost)
			r.HandleFunc("/api/donations", s.handleListDonations, http.MethodGet)
			r.HandleFunc("/api/donations/:id", s.handleGetDonation, http.MethodGet)
		})

		r.Group(func(r *flow.Mux) {
			r.Use(s.RequireAuth)
			r.Use(s.RequireAdmin)

			r.HandleFunc("/api/admin/organizations", s.handleListOrganizations, http.MethodGet)
			r.HandleFunc("/api/admin/organizations", s.handleCreateOrganization, http.MethodPost)
			r.HandleFunc("/api/admin/organizations/:id", s.handleGetOrganization, http.MethodGet)
			r.HandleFunc("/api/admin/organizations/:id", s.handleUpdateOrganization, http.MethodPut)
			r.HandleFunc("/api/admin/organizations/:id", s.handleDeleteOrganization, http.MethodDelete)

			r.HandleFunc("/api/admin/projects", s.handleCreateProject, http.MethodPost)
			r.HandleFunc("/api/admin/projects/:id", s.handleUpdateProject, http.MethodPut)
			r.HandleFunc("/api/admin/projects/:id", s.handleDeleteProject, http.MethodDelete)
			r.HandleFunc("/api/admin/projects/:id/transition", s.handleTransitionProject, http.MethodPost)
			r.HandleFunc("/api/admin/projects/:id/image", s.handlePutProjectImage, http.MethodPut)
			r.HandleFunc("/api/admin/projects/:id/image", s.handleDeleteProjectImage, http.MethodDelete)
			r.HandleFunc("/api/admin/projects/:id/needs", s.handleCreateNeed, http.MethodPost)

			r.HandleFunc("/api/admin/needs/:id", s.handleUpdateNeed, http.MethodPut)
			r.HandleFunc("/api/admin/needs/:id", s.handleDeleteNeed, http.MethodDelete)

			r.HandleFunc("/api/admin/categories/:id", s.handlePutCategory, http.MethodPut)
			r.HandleFunc("/api/admin/categories/:id", s.handleDeleteCategory, http.MethodDelete)

			r.HandleFunc("/api/admin/donations/:id/transition", s.handleTransitionDonation, http.MethodPost)
			r.HandleFunc("/api/admin/reconcile", s.handleReconcile, http.MethodPost)
		})
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestContext bounds the storage work a single handler may do.
func (s *Service) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := time.Duration(s.config.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}
