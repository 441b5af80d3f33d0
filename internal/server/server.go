// Package server is the gateway's HTTP boundary: it decodes requests,
// invokes the provenance service, and renders normalized results and
// errors. No business logic lives here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Hidas2004/duanmoihomnay/internal/idempotency"
	"github.com/Hidas2004/duanmoihomnay/internal/ledger"
	"github.com/Hidas2004/duanmoihomnay/internal/provenance"
	"github.com/Hidas2004/duanmoihomnay/internal/txqueue"
	"github.com/Hidas2004/duanmoihomnay/pkg/httpx"
)

// Provenance is the domain surface the HTTP layer drives.
type Provenance interface {
	CreateBatch(ctx context.Context, req provenance.CreateBatchRequest) (provenance.TxRef, error)
	RecordEvent(ctx context.Context, req provenance.RecordEventRequest) (provenance.TxRef, error)
	GetHistory(ctx context.Context, id string) ([]provenance.Event, error)
}

type Server struct {
	svc  Provenance
	idem idempotency.Store
	log  *slog.Logger
}

// New builds the router. idem may be nil, which disables replay.
func New(svc Provenance, idem idempotency.Store, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{svc: svc, idem: idem, log: log}

	r := chi.NewRouter()
	r.Use(s.recover)
	r.Use(s.logRequests)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Route("/api", func(api chi.Router) {
		api.Post("/batch/create", s.handleCreate)
		api.Post("/batch/scan", s.handleScan)
		api.Get("/history/{id}", s.handleHistory)
	})
	return r
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req provenance.CreateBatchRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	s.handleWrite(w, r, "/api/batch/create", func(ctx context.Context) (provenance.TxRef, error) {
		return s.svc.CreateBatch(ctx, req)
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req provenance.RecordEventRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
		return
	}
	s.handleWrite(w, r, "/api/batch/scan", func(ctx context.Context) (provenance.TxRef, error) {
		return s.svc.RecordEvent(ctx, req)
	})
}

// handleWrite wraps a write command with idempotent replay: a repeated
// Idempotency-Key returns the stored response without enqueueing a
// second transaction.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request, endpoint string, do func(context.Context) (provenance.TxRef, error)) {
	key := r.Header.Get("Idempotency-Key")
	if status, body, found, err := idempotency.Replay(r.Context(), s.idem, key, endpoint); err != nil {
		s.log.Error("idempotency lookup failed", "endpoint", endpoint, "error", err)
		httpx.WriteError(w, 500, "INTERNAL", "idempotency lookup failed", nil)
		return
	} else if found {
		w.Header().Set("content-type", "application/json")
		w.Header().Set("Idempotent-Replay", "true")
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	ref, err := do(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp := map[string]any{
		"request_id": httpx.NewRequestID(),
		"success":    true,
		"txRef":      ref.TxHash,
	}
	if ref.BlockNumber != 0 {
		resp["blockNumber"] = ref.BlockNumber
	}
	body, _ := json.Marshal(resp)
	if err := idempotency.Save(r.Context(), s.idem, key, endpoint, 201, body); err != nil {
		// The write itself succeeded; losing the replay record only
		// costs a future duplicate, so log and answer normally.
		s.log.Error("idempotency save failed", "endpoint", endpoint, "error", err)
	}
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(201)
	_, _ = w.Write(body)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	events, err := s.svc.GetHistory(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, 200, events)
}

// writeDomainError is the single mapping from the error taxonomy to
// HTTP. Raw ledger errors never leak; everything surfaces as a coded
// structured response.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var v *provenance.ValidationError
	switch {
	case errors.As(err, &v):
		httpx.WriteError(w, 400, "VALIDATION", v.Error(), map[string]any{"field": v.Field})
	case errors.Is(err, provenance.ErrBatchNotFound):
		httpx.WriteError(w, 404, "BATCH_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, provenance.ErrBatchAlreadyExists):
		httpx.WriteError(w, 409, "BATCH_EXISTS", err.Error(), nil)
	case errors.Is(err, provenance.ErrInvalidTransition):
		httpx.WriteError(w, 409, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, provenance.ErrCommandRejected):
		httpx.WriteError(w, 502, "COMMAND_REJECTED", err.Error(), nil)
	case errors.Is(err, ledger.ErrGasExceeded):
		httpx.WriteError(w, 502, "LEDGER_GAS_EXCEEDED", err.Error(), nil)
	case errors.Is(err, ledger.ErrDecode):
		httpx.WriteError(w, 502, "LEDGER_DECODE_ERROR", err.Error(), nil)
	case errors.Is(err, ledger.ErrUnavailable):
		// Ambiguous for writes: the transaction may still land. Callers
		// verify via history rather than blindly resubmitting.
		httpx.WriteError(w, 502, "LEDGER_UNAVAILABLE", err.Error(), nil)
	case errors.Is(err, txqueue.ErrClosed):
		httpx.WriteError(w, 503, "SHUTTING_DOWN", "gateway is shutting down", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(w, 504, "TIMEOUT", "request timed out; outcome unknown, verify via history", nil)
	default:
		s.log.Error("unclassified error", "error", err)
		httpx.WriteError(w, 500, "INTERNAL", "internal gateway error", nil)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start))
	})
}

func (s *Server) recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic", "path", r.URL.Path, "panic", rec)
				httpx.WriteError(w, 500, "INTERNAL", "internal gateway error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
