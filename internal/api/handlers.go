package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maltedev/amazon-pipeline/internal/jobs"
	"github.com/maltedev/amazon-pipeline/internal/pipeline"
)

// OutboxStats reports the relay backlog. *database.Relay implements it.
type OutboxStats interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	jobs            *jobs.Manager
	outbox          OutboxStats
	defaultHeadless bool
	validate        *validator.Validate
	logger          *slog.Logger
}

func NewHandlers(manager *jobs.Manager, outbox OutboxStats, defaultHeadless bool, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		jobs:            manager,
		outbox:          outbox,
		defaultHeadless: defaultHeadless,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		logger:          logger.With("component", "api"),
	}
}

// URLRunRequest starts a URL discovery run.
type URLRunRequest struct {
	SearchTerms      []string `json:"search_terms" validate:"required,min=1,dive,required"`
	TargetLinks      int      `json:"target_links" validate:"required,min=1,max=1000"`
	Headless         *bool    `json:"headless"`
	MaxPages         int      `json:"max_pages" validate:"omitempty,min=1,max=50"`
	IncludeSponsored bool     `json:"include_sponsored"`
	Priority         int      `json:"priority" validate:"min=0,max=10"`
}

// ProductRunRequest starts a product detail run over an existing URL file.
type ProductRunRequest struct {
	URLFilePath  string `json:"url_file_path" validate:"required"`
	Headless     *bool  `json:"headless"`
	Concurrency  int    `json:"concurrency" validate:"omitempty,min=1,max=16"`
	OutputFormat string `json:"output_format" validate:"omitempty,oneof=json csv"`
	Priority     int    `json:"priority" validate:"min=0,max=10"`
}

type CreateJobResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

// CreateURLRun queues a URL discovery job.
func (h *Handlers) CreateURLRun(w http.ResponseWriter, r *http.Request) {
	var req URLRunRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.submit(w, pipeline.NameURLs, pipeline.URLConfig{
		SearchTerms:      req.SearchTerms,
		TargetLinks:      req.TargetLinks,
		Headless:         h.headless(req.Headless),
		MaxPages:         req.MaxPages,
		IncludeSponsored: req.IncludeSponsored,
	}, req.Priority)
}

// CreateProductRun queues a product detail job.
func (h *Handlers) CreateProductRun(w http.ResponseWriter, r *http.Request) {
	var req ProductRunRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.submit(w, pipeline.NameProducts, pipeline.ProductConfig{
		URLFilePath:  req.URLFilePath,
		Headless:     h.headless(req.Headless),
		Concurrency:  req.Concurrency,
		OutputFormat: req.OutputFormat,
	}, req.Priority)
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.jobs.Get(jobID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.List())
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.Stats())
}

// Health reports ok, or degrades when the outbox backlog grows.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, perr := h.outbox.PendingCount(r.Context())
		dead, derr := h.outbox.DeadLetterCount(r.Context())
		health["outbox"] = map[string]any{
			"pending":     pending,
			"dead_letter": dead,
		}

		switch {
		case perr != nil || derr != nil:
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			status = http.StatusServiceUnavailable
		case dead > 100:
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		case pending > 1000:
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) submit(w http.ResponseWriter, kind string, params any, priority int) {
	job, err := h.jobs.Submit(kind, params, priority)
	if err != nil {
		h.logger.Error("failed to create job", "kind", kind, "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (h *Handlers) headless(v *bool) bool {
	if v == nil {
		return h.defaultHeadless
	}
	return *v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Namespace()+" failed on "+fe.Tag())
	}
	return strings.Join(msgs, "; ")
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
