package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/image2video-api/internal/animation"
	"github.com/maauso/image2video-api/internal/effect"
	"github.com/maauso/image2video-api/internal/job"
	"github.com/maauso/image2video-api/internal/media"
	"github.com/maauso/image2video-api/internal/render"
)

// Defaults mirrored by GET /effects.
const (
	DefaultEffect   = effect.ZoomIn
	DefaultDuration = 3
)

// videoBaseName is the download name of every video, before the extension.
const videoBaseName = "generated-video"

// JobService is the part of job.Service the handlers use.
type JobService interface {
	CreateJob(ctx context.Context, in job.CreateInput) (*job.Job, error)
	Submit(ctx context.Context, in job.CreateInput) (*job.Job, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context) ([]*job.Job, error)
	CancelJob(ctx context.Context, id string) (*job.Job, error)
	DeleteJob(ctx context.Context, id string) error
	OpenVideo(ctx context.Context, id string) (io.ReadCloser, *job.Job, error)
	Generate(ctx context.Context, image io.Reader, params animation.Params) (*media.Artifact, error)
}

// Compile-time check that job.Service satisfies JobService.
var _ JobService = (*job.Service)(nil)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            JobService
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	multipartMemory    int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMultipartMemory sets how much of a multipart upload is kept in
// memory before spilling to disk.
func WithMultipartMemory(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.multipartMemory = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service JobService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
		multipartMemory:    10 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Effects handles GET /effects requests.
func (h *Handlers) Effects(w http.ResponseWriter, _ *http.Request) {
	all := effect.All()
	names := make([]string, len(all))
	for i, e := range all {
		names[i] = string(e)
	}
	writeJSON(w, http.StatusOK, EffectsResponse{
		Effects:         names,
		DefaultEffect:   string(DefaultEffect),
		MinDuration:     animation.MinDuration,
		MaxDuration:     animation.MaxDuration,
		DefaultDuration: DefaultDuration,
		FrameRate:       animation.FrameRate,
	})
}

// GenerateVideo handles POST /api/generate-video. It renders synchronously
// and answers with the whole video as a data URL.
func (h *Handlers) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req GenerateVideoRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if !h.validate(w, req) {
		return
	}

	data, err := render.DataURLBytes(req.Image)
	if err != nil {
		h.logger.Warn("invalid image payload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "image must be a base64 data URL", "INVALID_IMAGE")
		return
	}

	params := animation.Params{Duration: req.Duration, Effect: effect.Effect(req.Effect)}
	art, err := h.service.Generate(r.Context(), bytes.NewReader(data), params)
	if err != nil {
		if animation.Classify(err) == animation.ClassInvalid {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("video generation failed",
			slog.String("effect", req.Effect),
			slog.Int("duration", req.Duration),
			slog.String("class", animation.Classify(err)),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: animation.UserMessage})
		return
	}

	h.logger.Info("video generated",
		slog.String("effect", req.Effect),
		slog.Int("frames", art.FrameCount),
		slog.Int("bytes", len(art.Data)),
	)
	writeJSON(w, http.StatusOK, GenerateVideoResponse{VideoURL: art.DataURL()})
}

// CreateJob handles POST /jobs requests, as multipart form or JSON.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	in, ok := h.parseCreateJob(w, r)
	if !ok {
		return
	}

	create := h.service.CreateJob
	if h.enableAsyncProcess {
		create = h.service.Submit
	}

	createdJob, err := create(r.Context(), in)
	// The upload is copied to temp storage before create returns.
	if c, ok := in.Image.(io.Closer); ok {
		_ = c.Close()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large", "PAYLOAD_TOO_LARGE")
		case animation.Classify(err) == animation.ClassInvalid, errors.Is(err, job.ErrMissingImage):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		default:
			h.logger.Error("failed to create job",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		}
		return
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("effect", string(createdJob.Effect)),
		slog.Int("duration", createdJob.DurationSec),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// parseCreateJob reads either request form into a job.CreateInput and
// writes the error response itself when it returns false.
func (h *Handlers) parseCreateJob(w http.ResponseWriter, r *http.Request) (job.CreateInput, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.parseMultipartJob(w, r)
	}

	var req CreateJobRequest
	if !h.decodeJSON(w, r, &req) {
		return job.CreateInput{}, false
	}
	if !h.validate(w, req) {
		return job.CreateInput{}, false
	}

	data, err := render.DataURLBytes(req.ImageBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image_base64 must be base64 or a data URL", "INVALID_IMAGE")
		return job.CreateInput{}, false
	}

	return job.CreateInput{
		Image:    bytes.NewReader(data),
		Duration: req.Duration,
		Effect:   effect.Effect(req.Effect),
		PushToS3: req.PushToS3,
	}, true
}

func (h *Handlers) parseMultipartJob(w http.ResponseWriter, r *http.Request) (job.CreateInput, bool) {
	if err := r.ParseMultipartForm(h.multipartMemory); err != nil {
		h.writeBodyError(w, err, "invalid multipart form", "INVALID_FORM")
		return job.CreateInput{}, false
	}

	var params JobParams
	if v := r.FormValue("duration"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "duration must be an integer", "VALIDATION_ERROR")
			return job.CreateInput{}, false
		}
		params.Duration = n
	}
	params.Effect = strings.TrimSpace(r.FormValue("effect"))
	if v := r.FormValue("push_to_s3"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "push_to_s3 must be a boolean", "VALIDATION_ERROR")
			return job.CreateInput{}, false
		}
		params.PushToS3 = b
	}
	if !h.validate(w, params) {
		return job.CreateInput{}, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required", "VALIDATION_ERROR")
		return job.CreateInput{}, false
	}
	return job.CreateInput{
		Image:     file,
		ImageName: header.Filename,
		Duration:  params.Duration,
		Effect:    effect.Effect(params.Effect),
		PushToS3:  params.PushToS3,
	}, true
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err, "failed to get job")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// GetJobVideo handles GET /jobs/{id}/video. The video is served as an
// attachment named generated-video.<ext>, or inline with ?inline=1.
func (h *Handlers) GetJobVideo(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	rc, foundJob, err := h.service.OpenVideo(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrVideoNotReady) {
			writeError(w, http.StatusConflict, "video not ready", "VIDEO_NOT_READY")
			return
		}
		h.writeJobError(w, jobID, err, "failed to open video")
		return
	}
	defer func() { _ = rc.Close() }()

	name := videoBaseName + "." + foundJob.Extension
	disposition := "attachment"
	if inline, _ := strconv.ParseBool(r.URL.Query().Get("inline")); inline {
		disposition = "inline"
	}

	w.Header().Set("Content-Type", foundJob.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, name, foundJob.CompletedAt, rs)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("video stream interrupted",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteJob handles DELETE /jobs/{id}. Active jobs are cancelled (202);
// finished jobs are deleted with their files (204).
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err, "failed to get job")
		return
	}

	if !foundJob.IsTerminal() {
		cancelled, err := h.service.CancelJob(r.Context(), jobID)
		if err == nil {
			h.logger.Info("job cancellation requested", slog.String("job_id", jobID))
			writeJSON(w, http.StatusAccepted, CreateJobResponse{ID: cancelled.ID, Status: string(cancelled.Status)})
			return
		}
		if !errors.Is(err, job.ErrJobFinished) {
			h.writeJobError(w, jobID, err, "failed to cancel job")
			return
		}
		// Finished in the meantime; fall through to delete.
	}

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		h.writeJobError(w, jobID, err, "failed to delete job")
		return
	}

	h.logger.Info("job deleted", slog.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:             j.ID,
		Status:         string(j.Status),
		Effect:         string(j.Effect),
		Duration:       j.DurationSec,
		Progress:       j.Progress,
		FrameCount:     j.FrameCount,
		FramesRendered: j.FramesRendered,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	if j.VideoReady() {
		resp.Width = j.Width
		resp.Height = j.Height
		resp.MIMEType = j.MIMEType
		resp.VideoURL = j.VideoURL
		resp.DownloadURL = fmt.Sprintf("/jobs/%s/video", j.ID)
	}
	return resp
}

// decodeJSON decodes the request body into dst and writes a 400 (or 413)
// on failure.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		h.writeBodyError(w, err, "invalid JSON body", "INVALID_JSON")
		return false
	}
	return true
}

func (h *Handlers) validate(w http.ResponseWriter, v any) bool {
	if err := h.validator.Struct(v); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *Handlers) writeBodyError(w http.ResponseWriter, err error, message, code string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), "PAYLOAD_TOO_LARGE")
		return
	}
	writeError(w, http.StatusBadRequest, message, code)
}

func (h *Handlers) writeJobError(w http.ResponseWriter, jobID string, err error, message string) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrJobActive):
		writeError(w, http.StatusConflict, "job is still active", "JOB_ACTIVE")
	default:
		h.logger.Error(message,
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, message, "INTERNAL_ERROR")
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
