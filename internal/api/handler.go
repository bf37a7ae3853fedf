package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BE-Provider-Connect/inbox/internal/domain"
	"github.com/BE-Provider-Connect/inbox/internal/events"
	"github.com/BE-Provider-Connect/inbox/internal/failure"
)

const source = "http"

// EventHandler consumes decoded domain events.
type EventHandler interface {
	HandleEnvelope(ctx context.Context, env events.Envelope) (bool, error)
}

// Queue accepts raw dispatch commands from other producers.
type Queue interface {
	Enqueue(ctx context.Context, cmd domain.DispatchCommand, priority domain.Priority) error
}

type MessageReader interface {
	FindMessage(ctx context.Context, id int64) (domain.Message, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type MetricsSink interface {
	EventReceived(source string, event string)
	EventDecodeError(source string)
}

type Handler struct {
	events   EventHandler
	queue    Queue
	messages MessageReader
	db       HealthChecker
	metrics  MetricsSink
	apiKey   []byte
	router   http.Handler
}

func NewHandler(events EventHandler, queue Queue, messages MessageReader) *Handler {
	h := &Handler{events: events, queue: queue, messages: messages}
	h.router = h.routes()
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) WithMetrics(m MetricsSink) *Handler {
	h.metrics = m
	return h
}

func (h *Handler) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Post("/events", h.postEvent)
		r.Post("/dispatches", h.postDispatch)
		r.Get("/messages/{id}", h.getMessage)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	return body, true
}

func (h *Handler) postEvent(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	env, err := events.Decode(body)
	if err != nil {
		if h.metrics != nil {
			h.metrics.EventDecodeError(source)
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.EventReceived(source, env.Event)
	}

	queued, err := h.events.HandleEnvelope(r.Context(), env)
	if err != nil {
		log.Printf("api: event=%s error: %v", env.Event, err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue event")
		return
	}

	writeJSON(w, http.StatusAccepted, EventResponse{Event: env.Event, Queued: queued})
}

func (h *Handler) postDispatch(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	var req DispatchRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	cmd, priority, err := validateDispatch(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.queue.Enqueue(r.Context(), cmd, priority); err != nil {
		log.Printf("api: kind=%s event=%s enqueue error: %v", cmd.Kind, cmd.Event(), err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue dispatch")
		return
	}

	writeJSON(w, http.StatusAccepted, DispatchResponse{Kind: string(cmd.Kind), Event: cmd.Event(), Priority: string(priority)})
}

func (h *Handler) getMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	msg, err := h.messages.FindMessage(r.Context(), id)
	if err != nil {
		if errors.Is(err, failure.ErrMessageNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		log.Printf("api: find message id=%d error: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load message")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		ID:            msg.ID,
		Status:        string(msg.Status),
		ExternalError: msg.ExternalError,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
