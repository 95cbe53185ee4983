package shortener

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sundayezeilo/linkusage/internal/errx"
	"github.com/sundayezeilo/linkusage/internal/httpx"
	"github.com/sundayezeilo/linkusage/internal/shorten"
)

// Query parameters of the status endpoint.
const (
	ParamFullInfo  = "full-info"
	ParamMaxResult = "max-result"
	ParamOffset    = "offset"
)

// CreateRequest is the body of POST /api/v1/url_shortener/.
type CreateRequest struct {
	InitialURL string `json:"initial_url"`
}

// MappingResponse is the JSON form of a Mapping.
type MappingResponse struct {
	ID         int64     `json:"id"`
	InitialURL string    `json:"initial_url"`
	ShortURL   string    `json:"short_url"`
	CreatedAt  time.Time `json:"created_at"`
	Active     bool      `json:"active"`
}

// RedirectResponse accompanies a 307 redirect.
type RedirectResponse struct {
	InitialURL string `json:"initial_url"`
}

// UsageResponse is the JSON form of a UsageEvent.
type UsageResponse struct {
	URLID         int64     `json:"url_id"`
	UsageDatetime time.Time `json:"usage_datetime"`
	ClientHost    string    `json:"client_host"`
	ClientPort    int       `json:"client_port"`
}

// PingResponse reports the store round-trip in seconds.
type PingResponse struct {
	PingTime float64 `json:"ping_time"`
}

func toMappingResponse(m Mapping) MappingResponse {
	return MappingResponse{
		ID:         m.ID,
		InitialURL: m.InitialURL,
		ShortURL:   m.ShortURL,
		CreatedAt:  m.CreatedAt,
		Active:     m.Active(),
	}
}

func toUsageResponses(events []UsageEvent) []UsageResponse {
	out := make([]UsageResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, UsageResponse{
			URLID:         ev.URLID,
			UsageDatetime: ev.UsageDatetime,
			ClientHost:    ev.ClientHost,
			ClientPort:    ev.ClientPort,
		})
	}
	return out
}

// Handler provides the HTTP handlers of the shortener API.
type Handler struct {
	service Service
	logger  *zap.Logger
	baseURL string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service Service
	Logger  *zap.Logger
	BaseURL string // prefix of locally issued short URLs, e.g. "https://sho.rt"
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		service: cfg.Service,
		logger:  logger,
		baseURL: cfg.BaseURL,
	}
}

// Register mounts the shortener routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/url_shortener", func(r chi.Router) {
			r.Post("/", h.Create)
			r.Get("/{url_id}", h.Redirect)
			r.Delete("/{url_id}", h.Delete)
			r.Get("/{url_id}/status", h.Status)
		})
		r.Get("/database/ping", h.Ping)
	})
	r.Get("/{slug}", h.ResolveSlug)
}

func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	return h.logger.With(
		zap.String("request_id", httpx.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

// Create handles POST /api/v1/url_shortener/. A new mapping answers 201, an
// existing one 200.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[CreateRequest](r)
	if err != nil {
		logger.Warn("failed to decode request", zap.Error(err))
		httpx.WriteErrorKind(w, err, errorMessage(err))
		return
	}
	if err := validateCreateRequest(req); err != nil {
		logger.Warn("request validation failed", zap.Error(err))
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
		return
	}

	m, created, err := h.service.Create(ctx, req.InitialURL)
	if err != nil {
		h.handleError(logger, w, err, "unable to shorten this url", zap.String("initial_url", req.InitialURL))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		logger.Info("mapping created", zap.Int64("url_id", m.ID), zap.String("short_url", m.ShortURL))
	}
	httpx.WriteJSON(w, status, toMappingResponse(m))
}

// Redirect handles GET /api/v1/url_shortener/{url_id}.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, err := urlIDParam(r)
	if err != nil {
		logger.Warn("invalid url id", zap.Error(err))
		httpx.WriteErrorKind(w, err, errorMessage(err))
		return
	}

	m, err := h.service.Resolve(ctx, id, clientOf(r))
	if err != nil {
		h.handleError(logger, w, err, "unable to resolve this url", zap.Int64("url_id", id))
		return
	}
	h.redirect(w, m)
}

// ResolveSlug handles GET /{slug} for short URLs issued under the service's
// own base URL.
func (h *Handler) ResolveSlug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	slug := chi.URLParam(r, "slug")
	if slug == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "slug is required", nil)
		return
	}

	shortURL, err := shorten.ShortURL(h.baseURL, slug)
	if err != nil {
		logger.Error("failed to build short url", zap.Error(err), zap.String("slug", slug))
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "unable to resolve this url", nil)
		return
	}

	m, err := h.service.ResolveShortURL(ctx, shortURL, clientOf(r))
	if err != nil {
		h.handleError(logger, w, err, "unable to resolve this url", zap.String("slug", slug))
		return
	}
	h.redirect(w, m)
}

func (h *Handler) redirect(w http.ResponseWriter, m Mapping) {
	w.Header().Set("Location", m.InitialURL)
	httpx.WriteJSON(w, http.StatusTemporaryRedirect, RedirectResponse{InitialURL: m.InitialURL})
}

// Delete handles DELETE /api/v1/url_shortener/{url_id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, err := urlIDParam(r)
	if err != nil {
		logger.Warn("invalid url id", zap.Error(err))
		httpx.WriteErrorKind(w, err, errorMessage(err))
		return
	}

	m, err := h.service.Delete(ctx, id)
	if err != nil {
		h.handleError(logger, w, err, "unable to delete this url", zap.Int64("url_id", id))
		return
	}

	logger.Info("mapping deleted", zap.Int64("url_id", id))
	httpx.WriteJSON(w, http.StatusOK, toMappingResponse(m))
}

// Status handles GET /api/v1/url_shortener/{url_id}/status. Without full-info
// the body is a bare count, otherwise a page of usage events.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, err := urlIDParam(r)
	if err != nil {
		logger.Warn("invalid url id", zap.Error(err))
		httpx.WriteErrorKind(w, err, errorMessage(err))
		return
	}

	fullInfo, page, err := parseStatusQuery(r.URL.Query())
	if err != nil {
		logger.Warn("invalid status query", zap.Error(err))
		httpx.WriteErrorKind(w, err, errorMessage(err))
		return
	}

	status, err := h.service.Status(ctx, id, fullInfo, page)
	if err != nil {
		h.handleError(logger, w, err, "unable to report usage", zap.Int64("url_id", id))
		return
	}

	if !status.FullInfo {
		httpx.WriteJSON(w, http.StatusOK, status.Count)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUsageResponses(status.Events))
}

// Ping handles GET /api/v1/database/ping.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	d, err := h.service.Ping(ctx)
	if err != nil {
		h.handleError(logger, w, err, "database is unavailable")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, PingResponse{PingTime: d.Seconds()})
}

// handleError logs err at a level matching its kind and writes the response.
func (h *Handler) handleError(logger *zap.Logger, w http.ResponseWriter, err error, fallback string, fields ...zap.Field) {
	kind := errx.KindOf(err)

	fields = append(fields,
		zap.Error(err),
		zap.Stringer("error_kind", kind),
		zap.String("operation", errx.OpOf(err)),
	)

	message := fallback
	switch kind {
	case errx.NotFound:
		logger.Warn("url mapping not found", fields...)
		message = "url mapping doesn't exist"

	case errx.AlreadyDeleted:
		logger.Warn("url mapping is deleted", fields...)
		message = "url mapping has been deleted"

	case errx.Invalid:
		logger.Warn("invalid request", fields...)
		message = errorMessage(err)

	case errx.ShorteningFailed:
		logger.Error("shortening provider failed", fields...)

	case errx.Unavailable:
		logger.Error("store unavailable", fields...)

	default:
		logger.Error("unexpected error", fields...)
	}

	httpx.WriteErrorKind(w, err, message)
}

// errorMessage returns the innermost message of an errx chain, without the op
// prefixes.
func errorMessage(err error) string {
	for {
		var e *errx.Error
		if !errors.As(err, &e) || e.Err == nil {
			return err.Error()
		}
		err = e.Err
	}
}

func validateCreateRequest(req CreateRequest) error {
	if strings.TrimSpace(req.InitialURL) == "" {
		return errors.New("initial_url is required")
	}
	return nil
}

func urlIDParam(r *http.Request) (int64, error) {
	const op = "shortener.urlIDParam"

	raw := chi.URLParam(r, "url_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errx.E(op, errx.Invalid, fmt.Errorf("url_id must be an integer, got %q", raw))
	}
	return id, nil
}

func clientOf(r *http.Request) Client {
	host, port := httpx.ClientAddr(r)
	return Client{Host: host, Port: port}
}

// parseStatusQuery reads full-info, max-result and offset. A bare full-info
// flag counts as true.
func parseStatusQuery(q url.Values) (bool, Pagination, error) {
	const op = "shortener.parseStatusQuery"

	page := DefaultPagination()

	fullInfo := false
	if values, ok := q[ParamFullInfo]; ok {
		fullInfo = true
		if v := values[0]; v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return false, page, errx.E(op, errx.Invalid, fmt.Errorf("%s must be a boolean, got %q", ParamFullInfo, v))
			}
			fullInfo = b
		}
	}

	intParam := func(name string, dst *int) error {
		v := q.Get(name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errx.E(op, errx.Invalid, fmt.Errorf("%s must be an integer, got %q", name, v))
		}
		*dst = n
		return nil
	}
	if err := intParam(ParamMaxResult, &page.MaxResult); err != nil {
		return false, page, err
	}
	if err := intParam(ParamOffset, &page.Offset); err != nil {
		return false, page, err
	}
	return fullInfo, page, nil
}
