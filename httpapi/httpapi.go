// Package httpapi exposes the pipeline over HTTP: invoice submission, the
// pending review queue, checkpoint detail and decision submission.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finvela-ai/invoiceflow"
)

// Deps carries the server's dependencies.
type Deps struct {
	Engine *invoiceflow.Engine
	Logger *slog.Logger
}

// Handler builds the HTTP router.
func Handler(deps Deps) http.Handler {
	s := &server{engine: deps.Engine, logger: deps.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/invoices", s.handleProcessInvoice)
	r.Route("/reviews", func(r chi.Router) {
		r.Get("/pending", s.handleListPending)
		r.Post("/decision", s.handleDecision)
		r.Get("/{checkpointID}", s.handleCheckpointDetail)
	})
	return r
}

type server struct {
	engine *invoiceflow.Engine
	logger *slog.Logger
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleProcessInvoice(w http.ResponseWriter, r *http.Request) {
	var payload invoiceflow.InvoicePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	result, err := s.engine.ProcessDocument(r.Context(), &payload)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Status == invoiceflow.StatusPausedForReview {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (s *server) handleListPending(w http.ResponseWriter, r *http.Request) {
	items, err := s.engine.ListPendingReviews(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if items == nil {
		items = []*invoiceflow.ReviewItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending_reviews": items,
		"count":           len(items),
	})
}

func (s *server) handleCheckpointDetail(w http.ResponseWriter, r *http.Request) {
	checkpointID := chi.URLParam(r, "checkpointID")
	record, err := s.engine.GetCheckpoint(r.Context(), checkpointID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkpointView(record))
}

func (s *server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var sub invoiceflow.DecisionSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	receipt, err := s.engine.SubmitDecision(r.Context(), sub)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// checkpointView is the detail projection returned over HTTP. It includes
// the state blob (base64 JSON) so reviewers can inspect the suspended run.
func checkpointView(record *invoiceflow.CheckpointRecord) map[string]any {
	view := map[string]any{
		"checkpoint_id":   record.CheckpointID,
		"workflow_id":     record.WorkflowID,
		"invoice_id":      record.InvoiceID,
		"vendor_name":     record.VendorName,
		"amount":          record.Amount,
		"currency":        record.Currency,
		"created_at":      record.CreatedAt,
		"reason_for_hold": record.ReasonForHold,
		"review_url":      record.ReviewURL,
		"review_status":   record.ReviewStatus,
		"state_blob":      record.StateBlob,
	}
	if record.ReviewStatus == invoiceflow.ReviewDecided {
		view["decision"] = record.Decision
		view["reviewer_id"] = record.ReviewerID
		view["decision_notes"] = record.DecisionNotes
		view["decided_at"] = record.DecidedAt
	}
	return view
}

func (s *server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, invoiceflow.ErrCheckpointNotFound):
		writeError(w, http.StatusNotFound, "checkpoint not found")
	case errors.Is(err, invoiceflow.ErrAlreadyDecided):
		writeError(w, http.StatusConflict, "checkpoint already decided")
	case invoiceflow.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case invoiceflow.IsPersistenceError(err):
		s.logger.Error("persistence failure", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
