package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pillguide/internal/analysis"
	"github.com/dvloznov/pillguide/internal/api/middleware"
	"github.com/dvloznov/pillguide/internal/domain"
	"github.com/dvloznov/pillguide/internal/jobs"
	"github.com/dvloznov/pillguide/internal/logger"
	"github.com/dvloznov/pillguide/internal/store"
)

// APIMessage is returned by GET /api/.
const APIMessage = "PillGuide API v2.0 - Multi-Language Prescription Adherence System"

// Analyzer runs the model-backed analyses.
type Analyzer interface {
	NewPrescriptionID() string
	AnalyzePrescription(ctx context.Context, prescriptionID string, upload domain.PrescriptionCreate) (*domain.Prescription, error)
	ExplainMedication(ctx context.Context, req domain.MedicationCreate) (*domain.Medication, error)
	CheckContraindications(ctx context.Context, req domain.ContraindicationCheck) (*domain.ContraindicationResult, error)
}

// ImageFetcher reads a stored prescription image back.
type ImageFetcher interface {
	FetchImage(ctx context.Context, uri string) ([]byte, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PrescriptionsHandler handles prescription-related endpoints.
type PrescriptionsHandler struct {
	analyzer  Analyzer
	repo      store.PrescriptionRepository
	publisher jobs.Publisher
	images    ImageFetcher
	log       zerolog.Logger
}

// NewPrescriptionsHandler creates a new prescriptions handler. publisher and
// images may be nil, disabling async uploads and image downloads.
func NewPrescriptionsHandler(analyzer Analyzer, repo store.PrescriptionRepository, publisher jobs.Publisher, images ImageFetcher, log zerolog.Logger) *PrescriptionsHandler {
	return &PrescriptionsHandler{
		analyzer:  analyzer,
		repo:      repo,
		publisher: publisher,
		images:    images,
		log:       log,
	}
}

// UploadPrescription handles POST /api/prescriptions/upload
func (h *PrescriptionsHandler) UploadPrescription(w http.ResponseWriter, r *http.Request) {
	var req domain.PrescriptionCreate
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()

	if req.Async {
		h.enqueue(w, r, req)
		return
	}

	prescription, err := h.analyzer.AnalyzePrescription(ctx, "", req)
	if err != nil {
		requestLog(r, h.log).Error().Err(err).Msg("Failed to analyze prescription")
		writeServiceError(w, err, "Failed to analyze prescription")
		return
	}

	if err := h.repo.InsertPrescription(ctx, prescription); err != nil {
		requestLog(r, h.log).Error().Err(err).Str("prescription_id", prescription.ID).Msg("Failed to save prescription")
		writeServiceError(w, err, "Failed to analyze prescription")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, prescription)
}

func (h *PrescriptionsHandler) enqueue(w http.ResponseWriter, r *http.Request, req domain.PrescriptionCreate) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Asynchronous analysis is not available")
		return
	}

	job := &jobs.AnalyzePrescriptionJob{
		PrescriptionID: h.analyzer.NewPrescriptionID(),
		Upload:         req,
	}
	if err := h.publisher.PublishAnalyzePrescription(r.Context(), job); err != nil {
		requestLog(r, h.log).Error().Err(err).Msg("Failed to enqueue analysis job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue analysis job")
		return
	}

	requestLog(r, h.log).Info().Str("job_id", job.JobID).Str("prescription_id", job.PrescriptionID).Msg("Analysis job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":          job.JobID,
		"prescription_id": job.PrescriptionID,
		"status":          string(job.Status),
	})
}

// ProcessJob is the jobs.JobHandler for queued uploads. It analyses the
// prescription under the ID reported to the client and stores it.
func (h *PrescriptionsHandler) ProcessJob(ctx context.Context, job jobs.Job) error {
	analyzeJob, ok := job.(*jobs.AnalyzePrescriptionJob)
	if !ok {
		return fmt.Errorf("ProcessJob: unexpected job type: %T", job)
	}

	jobLog := logger.WithFields(h.log, map[string]any{
		"job_id":          analyzeJob.JobID,
		"prescription_id": analyzeJob.PrescriptionID,
	})
	ctx = logger.WithContext(ctx, jobLog)

	prescription, err := h.analyzer.AnalyzePrescription(ctx, analyzeJob.PrescriptionID, analyzeJob.Upload)
	if err != nil {
		return fmt.Errorf("ProcessJob %s: %w", analyzeJob.JobID, err)
	}

	// A retry after a failed save may find the record already there.
	if _, err := h.repo.GetPrescription(ctx, prescription.ID); err == nil {
		jobLog.Debug().Msg("Prescription already stored")
		return nil
	}

	if err := h.repo.InsertPrescription(ctx, prescription); err != nil {
		return fmt.Errorf("ProcessJob %s: saving prescription: %w", analyzeJob.JobID, err)
	}

	jobLog.Info().Int("medications", len(prescription.Medications)).Msg("Prescription stored")
	return nil
}

// ListPrescriptions handles GET /api/prescriptions
func (h *PrescriptionsHandler) ListPrescriptions(w http.ResponseWriter, r *http.Request) {
	prescriptions, err := h.repo.ListPrescriptions(r.Context(), r.URL.Query().Get("patient_id"))
	if err != nil {
		requestLog(r, h.log).Error().Err(err).Msg("Failed to list prescriptions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list prescriptions")
		return
	}

	if prescriptions == nil {
		prescriptions = []domain.Prescription{}
	}
	middleware.WriteJSON(w, http.StatusOK, prescriptions)
}

// GetPrescription handles GET /api/prescriptions/{id}
func (h *PrescriptionsHandler) GetPrescription(w http.ResponseWriter, r *http.Request, id string) {
	prescription, err := h.repo.GetPrescription(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Prescription not found")
			return
		}
		requestLog(r, h.log).Error().Err(err).Str("prescription_id", id).Msg("Failed to get prescription")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get prescription")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, prescription)
}

// GetPrescriptionImage handles GET /api/prescriptions/{id}/image
func (h *PrescriptionsHandler) GetPrescriptionImage(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()

	prescription, err := h.repo.GetPrescription(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Prescription not found")
			return
		}
		requestLog(r, h.log).Error().Err(err).Str("prescription_id", id).Msg("Failed to get prescription")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get prescription")
		return
	}

	if h.images == nil || prescription.ImageURI == "" {
		middleware.WriteError(w, http.StatusNotFound, "Prescription image not stored")
		return
	}

	data, err := h.images.FetchImage(ctx, prescription.ImageURI)
	if err != nil {
		requestLog(r, h.log).Error().Err(err).Str("image_uri", prescription.ImageURI).Msg("Failed to fetch image")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch prescription image")
		return
	}

	w.Header().Set("Content-Type", analysis.DetectMIMEType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// MedicationsHandler handles medication-related endpoints.
type MedicationsHandler struct {
	analyzer Analyzer
	repo     store.MedicationRepository
	log      zerolog.Logger
}

// NewMedicationsHandler creates a new medications handler.
func NewMedicationsHandler(analyzer Analyzer, repo store.MedicationRepository, log zerolog.Logger) *MedicationsHandler {
	return &MedicationsHandler{
		analyzer: analyzer,
		repo:     repo,
		log:      log,
	}
}

// CreateMedication handles POST /api/medications
func (h *MedicationsHandler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	var req domain.MedicationCreate
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()

	medication, err := h.analyzer.ExplainMedication(ctx, req)
	if err != nil {
		requestLog(r, h.log).Error().Err(err).Str("name", req.Name).Msg("Failed to create medication")
		writeServiceError(w, err, "Failed to create medication")
		return
	}

	if err := h.repo.InsertMedication(ctx, medication); err != nil {
		requestLog(r, h.log).Error().Err(err).Str("medication_id", medication.ID).Msg("Failed to save medication")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create medication")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, medication)
}

// ListMedications handles GET /api/medications
func (h *MedicationsHandler) ListMedications(w http.ResponseWriter, r *http.Request) {
	medications, err := h.repo.ListMedications(r.Context())
	if err != nil {
		requestLog(r, h.log).Error().Err(err).Msg("Failed to list medications")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list medications")
		return
	}

	if medications == nil {
		medications = []domain.Medication{}
	}
	middleware.WriteJSON(w, http.StatusOK, medications)
}

// DeleteMedication handles DELETE /api/medications/{id}
func (h *MedicationsHandler) DeleteMedication(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.repo.DeleteMedication(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Medication not found")
			return
		}
		requestLog(r, h.log).Error().Err(err).Str("medication_id", id).Msg("Failed to delete medication")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete medication")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ContraindicationsHandler handles drug interaction checks.
type ContraindicationsHandler struct {
	analyzer Analyzer
	log      zerolog.Logger
}

// NewContraindicationsHandler creates a new contraindications handler.
func NewContraindicationsHandler(analyzer Analyzer, log zerolog.Logger) *ContraindicationsHandler {
	return &ContraindicationsHandler{analyzer: analyzer, log: log}
}

// CheckContraindications handles POST /api/contraindications/check
func (h *ContraindicationsHandler) CheckContraindications(w http.ResponseWriter, r *http.Request) {
	var req domain.ContraindicationCheck
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.analyzer.CheckContraindications(r.Context(), req)
	if err != nil {
		requestLog(r, h.log).Error().Err(err).Str("medication", req.MedicationName).Msg("Failed to check contraindications")
		writeServiceError(w, err, "Failed to check contraindications")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		requestLog(r, h.log).Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		PrescriptionID: query.Get("prescription_id"),
	}

	if s := query.Get("status"); s != "" {
		status, ok := jobs.ParseJobStatus(s)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid status")
			return
		}
		filter.Status = status
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		requestLog(r, h.log).Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Root handles GET /api/
func Root(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": APIMessage})
}

// Languages handles GET /api/languages
func Languages(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"languages": domain.SupportedLanguages,
	})
}

// Health returns the /health handler. db may be nil.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
					"time":   now,
				})
				return
			}
		}

		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   now,
		})
	}
}

// decodeBody decodes a JSON request body into v and writes the error
// response itself when that fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeServiceError maps service errors to status codes. Validation errors
// are reported as-is; everything else is prefixed with action.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, analysis.ErrInvalidImage):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	default:
		middleware.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", action, err))
	}
}

// requestLog returns the request logger set by the logging middleware, or
// the handler's own logger.
func requestLog(r *http.Request, fallback zerolog.Logger) zerolog.Logger {
	return logger.FromContextOr(r.Context(), fallback)
}
