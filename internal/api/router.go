package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/danielkorkin/tiktok-depression-survey/internal/metrics"
	"github.com/danielkorkin/tiktok-depression-survey/internal/middleware"
	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

const (
	defaultMaxUploadBytes = 64 << 20
	readyTimeout          = 2 * time.Second
	internalErrorMsg      = "Internal Server Error."
)

// Options wires the router. Only Store is required; a nil Converter scores
// by sum, a nil Encryptor stores plaintext and nil Receipts turns the
// consent check off.
type Options struct {
	Store          Store
	Locker         services.Locker
	Converter      services.Converter
	Extractor      services.ExtractorConfig
	Encryptor      *services.ChunkEncryptor
	Receipts       *services.ReceiptIssuer
	Metrics        *metrics.Metrics
	ResearchHash   string
	AllowedOrigins []string
	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	HSTS           bool
	Logger         log.FieldLogger
}

type Router struct {
	store        Store
	participants *services.ParticipantService
	consents     *services.ConsentService
	submissions  *services.SubmissionService
	research     *services.ResearchService
	metrics      *metrics.Metrics
	limiter      *middleware.IPRateLimiter
	opts         Options
	log          log.FieldLogger
	handler      http.Handler
}

func NewRouter(opts Options) *Router {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}

	participants := services.NewParticipantService(opts.Store)
	participants.WithLogger(opts.Logger.WithField("prefix", "participant"))

	consents := services.NewConsentService(opts.Store, opts.Receipts)
	consents.WithLogger(opts.Logger.WithField("prefix", "consent"))

	submissions := services.NewSubmissionService(opts.Store, opts.Converter, services.NewExtractor(opts.Extractor))
	submissions.WithEncryptor(opts.Encryptor)
	submissions.WithReceipts(opts.Receipts)
	submissions.WithLocker(opts.Locker)
	submissions.WithRecorder(opts.Metrics)
	submissions.WithLogger(opts.Logger.WithField("prefix", "submission"))

	limiter := middleware.NewIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	limiter.OnReject(opts.Metrics.RateLimited)

	rt := &Router{
		store:        opts.Store,
		participants: participants,
		consents:     consents,
		submissions:  submissions,
		research:     services.NewResearchService(opts.Store),
		metrics:      opts.Metrics,
		limiter:      limiter,
		opts:         opts,
		log:          opts.Logger.WithField("prefix", "api"),
	}
	rt.handler = rt.routes()
	return rt
}

func (rt *Router) Handler() http.Handler { return rt.handler }

func (rt *Router) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(rt.opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(rt.metrics.Middleware)
	r.Use(middleware.SecureHeaders(rt.opts.HSTS))
	r.Use(middleware.CORS(rt.opts.AllowedOrigins))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found."})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed."})
	})

	r.Get("/health", rt.handleHealth)
	r.Get("/ready", rt.handleReady)
	r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoStore)

		r.Route("/users", func(r chi.Router) {
			r.Use(rt.limiter.Middleware)
			r.Post("/", rt.handleCreateParticipant)
			r.Post("/verify", rt.handleVerifyParticipant)
			r.Get("/{userKey}", rt.handleGetParticipant)
		})
		r.With(rt.limiter.Middleware).Post("/consent", rt.handleConsent)
		r.With(rt.limiter.Middleware).Post("/surveys", rt.handleSubmit)

		r.Route("/research", func(r chi.Router) {
			r.Use(middleware.RequireResearchSecret(rt.opts.ResearchHash))
			r.Get("/submissions", rt.handleListSubmissions)
			r.Get("/submissions.csv", rt.handleExportCSV)
			r.Get("/summary", rt.handleSummary)
		})
	})
	return r
}

// GET /health
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /ready reports whether the database answers.
func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := rt.store.Ping(ctx); err != nil {
		rt.log.WithError(err).Warn("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. Crypto, storage and
// unknown errors never reach the client beyond a generic message.
func (rt *Router) writeError(w http.ResponseWriter, err error) {
	se, ok := services.AsServiceError(err)
	if !ok {
		rt.log.WithError(err).Error("unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: internalErrorMsg})
		return
	}
	switch se.Code {
	case services.ErrorInvalid:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: se.Message, Fields: se.Fields})
	case services.ErrorNotFound:
		writeJSON(w, http.StatusNotFound, errorBody{Error: se.Message})
	case services.ErrorConflict:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: se.Message})
	case services.ErrorForbidden:
		writeJSON(w, http.StatusForbidden, errorBody{Error: se.Message})
	case services.ErrorTooManyRequests:
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: se.Message})
	default:
		rt.log.WithError(err).WithField("code", se.Code).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: internalErrorMsg})
	}
}

// readBody reads at most MaxUploadBytes. It writes the error response
// itself and returns false when the body cannot be used.
func (rt *Router) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes))
	if err != nil {
		rt.writeReadError(w, err)
		return nil, false
	}
	return body, true
}

func (rt *Router) writeReadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "Request body too large."})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "Could not read request body."})
}

// decodeJSON reads and unmarshals a JSON body into v.
func (rt *Router) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, ok := rt.readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Request body must be valid JSON."})
		return false
	}
	return true
}
