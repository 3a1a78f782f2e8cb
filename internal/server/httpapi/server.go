// Package httpapi exposes the workflow over a JSON HTTP API.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"docflow/internal/httpx"
	"docflow/internal/logging"
	"docflow/internal/server/auth"
	"docflow/internal/server/config"
	"docflow/internal/server/services"
)

type contextKey string

const personIDKey contextKey = "person_id"

// PersonID returns the authenticated person ID stored by the auth
// middleware, or "" when the request was not authenticated.
func PersonID(ctx context.Context) string {
	id, _ := ctx.Value(personIDKey).(string)
	return id
}

// Server routes HTTP requests to the workflow services.
type Server struct {
	workflow  *services.WorkflowService
	directory *services.DirectoryService
	access    *services.AccessService
	stamps    *services.StampService
	cfg       *config.Config
	logger    logging.Logger
}

// NewServer constructs a Server.
func NewServer(workflow *services.WorkflowService, directory *services.DirectoryService, access *services.AccessService, stamps *services.StampService, cfg *config.Config, logger logging.Logger) *Server {
	return &Server{
		workflow:  workflow,
		directory: directory,
		access:    access,
		stamps:    stamps,
		cfg:       cfg,
		logger:    logger.With("module", "httpapi"),
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/api", func(api chi.Router) {
		api.Use(s.authMiddleware)

		api.Route("/documents", func(docs chi.Router) {
			docs.Post("/", s.handleCreateDocument)
			docs.Route("/{documentID}", func(doc chi.Router) {
				doc.Get("/", s.handleGetDocument)
				doc.Delete("/", s.handleDeleteDocument)
				doc.Post("/decisions", s.handleSubmitDecision)
				doc.Post("/advance", s.handleAdvancePhase)
				doc.Post("/distribution", s.handleSetDistribution)
				doc.Post("/complete", s.handleComplete)
				doc.Post("/stamps", s.handlePlaceStamp)
				doc.Delete("/stamps/{stampID}", s.handleRemoveStamp)
				doc.Get("/artifact", s.handleArtifactURL)
			})
		})

		api.Route("/signers", func(signers chi.Router) {
			signers.Post("/", s.handleAppointSigner)
			signers.Get("/", s.handleListSigners)
			signers.Delete("/{signerID}", s.handleDeactivateSigner)
		})
	})

	return r
}

// authMiddleware decodes the bearer token into a person identity. Identity
// management itself lives outside this service; the token only carries who
// is acting.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}

		personID, err := auth.GetPersonIDFromToken(token, []byte(s.cfg.SecretKey))
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), personIDKey, personID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
