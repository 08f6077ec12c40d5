package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"modelbridge/internal/catalog"
	"modelbridge/internal/gateway"
	"modelbridge/pkg/types"
)

// SnapshotSource provides point-in-time views of the local server. Refresh
// coalesces with any fetch already in flight.
type SnapshotSource interface {
	Refresh(ctx context.Context) types.Snapshot
	Last() (types.Snapshot, bool)
}

// ModelGateway is the mutation subset of the gateway client.
type ModelGateway interface {
	Load(ctx context.Context, modelKey string, opts gateway.LoadOptions) (types.LoadedModel, error)
	Unload(ctx context.Context, identifier string) error
}

// Embedder produces embedding vectors through the local server.
type Embedder interface {
	Embed(ctx context.Context, text, modelKey string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, modelKey string) ([][]float32, error)
	DefaultModel() string
}

// ServerConfig wires the collaborators behind the HTTP boundary.
type ServerConfig struct {
	Snapshots SnapshotSource
	Gateway   ModelGateway
	Embedder  Embedder
	Sessions  *SessionStore
	// Static catalog served to entitled users.
	Catalog []catalog.ChatModel
	// TTL applied to loads that do not request one; zero means none.
	DefaultTTLSeconds int
}

// NewMux builds the router: the authenticated model API plus health, metrics
// and swagger infrastructure routes.
func NewMux(cfg ServerConfig) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	s := &server{cfg: cfg}

	r.Post("/api/session", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(RequireSession(cfg.Sessions))
		r.Get("/api/models", s.handleSnapshot)
		r.Post("/api/models/load", s.handleLoad)
		r.Post("/api/models/unload", s.handleUnload)
		r.Get("/api/models/catalog", s.handleCatalog)
		r.Post("/api/embed", s.handleEmbed)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", s.handleReady)

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

type server struct {
	cfg ServerConfig
}

// handleLogin exchanges a configured access token for a session token.
//
// @Summary  Open a session
// @Accept   json
// @Produce  json
// @Param    request body types.SessionRequest true "Access token"
// @Success  200 {object} types.SessionResponse
// @Failure  401 {object} types.ErrorResponse
// @Router   /api/session [post]
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess, ok := s.cfg.Sessions.Login(strings.TrimSpace(req.AccessToken))
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "invalid access token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, types.SessionResponse{Token: sess.Token, UserType: string(sess.UserType)})
}

// handleSnapshot serves the aggregate local-server view. The payload is
// always a full Snapshot; 503 signals "server offline" without withholding
// data, so callers treat the status as informational.
//
// @Summary  Local model snapshot
// @Produce  json
// @Success  200 {object} types.Snapshot
// @Failure  503 {object} types.Snapshot
// @Router   /api/models [get]
func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.Snapshots.Refresh(r.Context())
	status := http.StatusOK
	if !snap.IsAvailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}

// handleLoad validates the payload (JSON shape first, then modelKey) before
// the gateway is ever touched, then resynchronizes the snapshot out-of-band.
//
// @Summary  Load a local model
// @Accept   json
// @Produce  json
// @Param    request body types.LoadRequest true "Model to load"
// @Success  200 {object} types.LoadResponse
// @Failure  400 {object} types.ErrorResponse
// @Failure  500 {object} types.ErrorResponse
// @Router   /api/models/load [post]
func (s *server) handleLoad(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ModelKey) == "" {
		writeJSONError(w, http.StatusBadRequest, "modelKey is required")
		return
	}
	ttl := req.TTLSeconds
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTLSeconds
	}
	start := time.Now()
	joined, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	model, err := s.cfg.Gateway.Load(joined, req.ModelKey, gateway.LoadOptions{TTLSeconds: ttl})
	ObserveMutation("load", err)
	if err != nil {
		s.writeMutationError(w, r, err)
		return
	}
	lvl := requestLogLevel(r)
	if lvl >= LevelInfo {
		z := zlog.Info().Str("model_key", req.ModelKey).Str("identifier", model.Identifier).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("model loaded")
	}
	// The mutation response does not reflect full server state; converge via
	// the next completed snapshot fetch.
	s.resync()
	writeJSON(w, http.StatusOK, types.LoadResponse{Model: model})
}

// handleUnload removes one in-memory instance by identifier. Unloading an
// identifier that no longer exists is a reported error, not a silent
// success; the caller is expected to refresh its snapshot.
//
// @Summary  Unload a local model instance
// @Accept   json
// @Produce  json
// @Param    request body types.UnloadRequest true "Instance to unload"
// @Success  200 {object} types.UnloadResponse
// @Failure  400 {object} types.ErrorResponse
// @Failure  500 {object} types.ErrorResponse
// @Router   /api/models/unload [post]
func (s *server) handleUnload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.UnloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Identifier) == "" {
		writeJSONError(w, http.StatusBadRequest, "identifier is required")
		return
	}
	joined, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	err := s.cfg.Gateway.Unload(joined, req.Identifier)
	ObserveMutation("unload", err)
	if err != nil {
		s.writeMutationError(w, r, err)
		return
	}
	s.resync()
	writeJSON(w, http.StatusOK, types.UnloadResponse{OK: true})
}

// handleCatalog merges the static catalog with loaded local instances for
// the session's entitlements. Without the local-models entitlement the
// snapshot subsystem is not consulted at all.
//
// @Summary  Unified model catalog
// @Produce  json
// @Success  200 {object} types.CatalogResponse
// @Router   /api/models/catalog [get]
func (s *server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	ent := catalog.EntitlementsFor(sess.UserType)

	resp := types.CatalogResponse{
		AvailableToLoad:   []types.DownloadedModel{},
		CanUseLocalModels: ent.CanUseLocalModels(),
	}
	var snap types.Snapshot
	if resp.CanUseLocalModels && s.cfg.Snapshots != nil {
		var ok bool
		if snap, ok = s.cfg.Snapshots.Last(); !ok {
			snap = s.cfg.Snapshots.Refresh(r.Context())
		}
		resp.AvailableToLoad = catalog.AvailableToLoad(snap)
	}
	resp.Models = catalog.Merge(s.cfg.Catalog, ent, snap)
	writeJSON(w, http.StatusOK, resp)
}

// handleEmbed produces embedding vectors for one text or a batch.
//
// @Summary  Embed text
// @Accept   json
// @Produce  json
// @Param    request body types.EmbedRequest true "Text or texts"
// @Success  200 {object} types.EmbedResponse
// @Failure  400 {object} types.ErrorResponse
// @Router   /api/embed [post]
func (s *server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Embedder == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "embedding is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req types.EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	hasText := strings.TrimSpace(req.Text) != ""
	hasTexts := len(req.Texts) > 0
	if !hasText && !hasTexts {
		writeJSONError(w, http.StatusBadRequest, "provide either text or a non-empty texts array")
		return
	}
	if hasText && hasTexts {
		writeJSONError(w, http.StatusBadRequest, "use either text or texts, not both")
		return
	}
	modelKey := req.ModelKey
	if modelKey == "" {
		modelKey = s.cfg.Embedder.DefaultModel()
	}
	joined, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if hasText {
		vec, err := s.cfg.Embedder.Embed(joined, req.Text, modelKey)
		if err != nil {
			s.writeMutationError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.EmbedResponse{
			Type: "single", ModelKey: modelKey, Embedding: vec, Dims: len(vec),
		})
		return
	}
	vecs, err := s.cfg.Embedder.EmbedBatch(joined, req.Texts, modelKey)
	if err != nil {
		s.writeMutationError(w, r, err)
		return
	}
	dims := 0
	if len(vecs) > 0 {
		dims = len(vecs[0])
	}
	writeJSON(w, http.StatusOK, types.EmbedResponse{
		Type: "batch", ModelKey: modelKey, Embeddings: vecs, Dims: dims, Count: len(vecs),
	})
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Snapshots != nil {
		if _, ok := s.cfg.Snapshots.Last(); !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("waiting for first snapshot"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// writeMutationError maps collaborator errors to HTTP responses, preserving
// the server's message verbatim; it is the only diagnostic a user can act on.
func (s *server) writeMutationError(w http.ResponseWriter, r *http.Request, err error) {
	lvl := requestLogLevel(r)
	if lvl >= LevelError {
		z := zlog.Error().Err(err)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("model operation failed")
	}
	if he, ok := err.(HTTPError); ok {
		writeJSONError(w, he.StatusCode(), he.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}

// resync schedules a snapshot refresh after a mutation, detached from the
// request lifetime.
func (s *server) resync() {
	if s.cfg.Snapshots == nil {
		return
	}
	go s.cfg.Snapshots.Refresh(serverBaseCtx)
}
