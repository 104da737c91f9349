package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/maauso/image2video-api/internal/animation"
	"github.com/maauso/image2video-api/internal/effect"
	"github.com/maauso/image2video-api/internal/media"
	"github.com/maauso/image2video-api/internal/storage"
)

var (
	// ErrJobNotQueued is returned when processing a job that already left IN_QUEUE.
	ErrJobNotQueued = errors.New("job is not queued")
	// ErrJobActive is returned when deleting a job that is still queued or running.
	ErrJobActive = errors.New("job is still active")
	// ErrJobFinished is returned when cancelling a job in a terminal state.
	ErrJobFinished = errors.New("job already finished")
	// ErrVideoNotReady is returned when the video of a job is requested before completion.
	ErrVideoNotReady = errors.New("video not ready")
	// ErrMissingImage is returned when a job is created without image data.
	ErrMissingImage = errors.New("image is required")
	// ErrServiceClosed is returned when a job is claimed after Shutdown.
	ErrServiceClosed = errors.New("job service is shut down")
)

// EncoderFactory returns a fresh encoder for one generation run.
type EncoderFactory func() media.Encoder

// CreateInput contains the parameters of a new job.
type CreateInput struct {
	// Image is the encoded source image.
	Image io.Reader
	// ImageName is the uploaded file name; only its extension is used.
	ImageName string
	// Duration is the video length in seconds.
	Duration int
	// Effect is the animation effect.
	Effect effect.Effect
	// PushToS3 publishes the finished video to S3.
	PushToS3 bool
}

// Params returns the animation parameters of the input.
func (in CreateInput) Params() animation.Params {
	return animation.Params{Duration: in.Duration, Effect: in.Effect}
}

// Service creates, runs, cancels and deletes generation jobs.
// Every job gets its own animation.Driver; a weighted semaphore bounds how
// many drivers render at the same time.
type Service struct {
	repo       Repository
	storage    storage.Storage
	newEncoder EncoderFactory
	logger     *slog.Logger
	driverOpts []animation.Option
	sem        *semaphore.Weighted

	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
	closing bool
	wg      sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxConcurrentJobs limits how many jobs render simultaneously.
func WithMaxConcurrentJobs(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithDriverOptions passes options to every driver the service creates.
func WithDriverOptions(opts ...animation.Option) ServiceOption {
	return func(s *Service) {
		s.driverOpts = append(s.driverOpts, opts...)
	}
}

// NewService creates a Service. Defaults to two concurrent jobs.
func NewService(repo Repository, store storage.Storage, newEncoder EncoderFactory, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:       repo,
		storage:    store,
		newEncoder: newEncoder,
		logger:     logger,
		sem:        semaphore.NewWeighted(2),
		cancels:    make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates the input, stores the image and persists a new
// IN_QUEUE job. It does not start processing.
func (s *Service) CreateJob(ctx context.Context, in CreateInput) (*Job, error) {
	if in.Image == nil {
		return nil, ErrMissingImage
	}
	params := in.Params()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	imagePath, err := s.storage.SaveTemp(ctx, "input"+imageExt(in.ImageName), in.Image)
	if err != nil {
		return nil, fmt.Errorf("save input image: %w", err)
	}

	job := New()
	job.Effect = params.Effect
	job.DurationSec = params.Duration
	job.FrameCount = animation.TotalFrames(params.Duration, animation.FrameRate)
	job.InputImagePath = imagePath
	job.PushToS3 = in.PushToS3

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("effect", string(job.Effect)),
		slog.Int("duration", job.DurationSec),
		slog.Bool("push_to_s3", job.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		_ = s.storage.CleanupTemp(ctx, []string{imagePath})
		return nil, err
	}

	return job.Clone(), nil
}

// Submit creates a job and processes it in the background. The background
// run is detached from ctx; use CancelJob to stop it.
func (s *Service) Submit(ctx context.Context, in CreateInput) (*Job, error) {
	job, err := s.CreateJob(ctx, in)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func(ctx context.Context, jobID string) {
		defer s.wg.Done()
		if _, err := s.ProcessExistingJob(ctx, jobID); err != nil {
			s.logger.Error("background processing failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}(context.WithoutCancel(ctx), job.ID)

	return job, nil
}

// ProcessExistingJob runs a queued job to a terminal state and returns the
// final job. Generation failures are recorded on the job, not returned;
// the error is non-nil only when the job could not be run at all.
func (s *Service) ProcessExistingJob(ctx context.Context, jobID string) (*Job, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	job, err := s.claim(ctx, jobID, cancel)
	if err != nil {
		return nil, err
	}
	defer s.release(jobID)

	logger := s.logger.With(slog.String("job_id", jobID))

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.finish(job, logger, nil, err), nil
	}
	defer s.sem.Release(1)

	if err := job.Start(); err != nil {
		return nil, err
	}
	s.save(job, logger)
	logger.Info("job started",
		slog.String("effect", string(job.Effect)),
		slog.Int("frames", job.FrameCount),
	)

	art, err := s.render(ctx, job, logger)
	return s.finish(job, logger, art, err), nil
}

// claim registers cancel for a queued job so CancelJob can reach it.
func (s *Service) claim(ctx context.Context, jobID string, cancel context.CancelCauseFunc) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.GetStatus() != StatusInQueue {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotQueued, jobID, job.GetStatus())
	}
	if _, running := s.cancels[jobID]; running {
		return nil, fmt.Errorf("%w: %s", ErrJobNotQueued, jobID)
	}
	if s.closing {
		if err := job.Cancel(); err == nil {
			s.save(job, s.logger)
			_ = s.storage.CleanupTemp(context.Background(), []string{job.InputImagePath})
		}
		return nil, ErrServiceClosed
	}
	s.cancels[jobID] = cancel
	return job, nil
}

func (s *Service) release(jobID string) {
	s.mu.Lock()
	delete(s.cancels, jobID)
	s.mu.Unlock()
}

// render drives one generation for job and stores the resulting video.
func (s *Service) render(ctx context.Context, job *Job, logger *slog.Logger) (*media.Artifact, error) {
	src, err := s.storage.LoadTemp(ctx, job.InputImagePath)
	if err != nil {
		return nil, fmt.Errorf("load input image: %w", err)
	}
	defer func() { _ = src.Close() }()

	progress := animation.WithProgress(func(done, total int) {
		if job.RecordFrames(done, total) {
			s.save(job, logger)
		}
	})
	driver := animation.NewDriver(s.newEncoder, logger, append(slices.Clip(s.driverOpts), progress)...)

	art, err := driver.Generate(ctx, src, animation.Params{Duration: job.DurationSec, Effect: job.Effect})
	if err != nil {
		return nil, err
	}

	videoPath, err := s.storage.SaveTemp(ctx, "video."+art.Extension, bytes.NewReader(art.Data))
	if err != nil {
		return nil, fmt.Errorf("save video: %w", err)
	}
	job.SetOutput(videoPath, art.MIMEType, art.Extension, art.Width, art.Height)

	if job.PushToS3 {
		url, err := s.storage.Publish(ctx, job.ID+"."+art.Extension, art.MIMEType, bytes.NewReader(art.Data))
		if err != nil {
			return nil, fmt.Errorf("publish video: %w", err)
		}
		job.SetVideoURL(url)
	}

	return art, nil
}

// finish moves job to its terminal state based on the run outcome.
func (s *Service) finish(job *Job, logger *slog.Logger, art *media.Artifact, runErr error) *Job {
	switch {
	case runErr == nil:
		if err := job.Complete(); err != nil {
			logger.Error("failed to complete job", slog.String("error", err.Error()))
		}
		logger.Info("job completed",
			slog.Int("frames", art.FrameCount),
			slog.Int("bytes", len(art.Data)),
			slog.String("mime_type", art.MIMEType),
		)
	case errors.Is(runErr, context.Canceled):
		// A partially written video is never kept.
		s.discardOutput(job, logger)
		if err := job.Cancel(); err != nil {
			logger.Error("failed to cancel job", slog.String("error", err.Error()))
		}
		logger.Info("job cancelled")
	default:
		s.discardOutput(job, logger)
		if err := job.Fail(animation.UserMessage); err != nil {
			logger.Error("failed to mark job failed", slog.String("error", err.Error()))
		}
		logger.Error("job failed",
			slog.String("class", animation.Classify(runErr)),
			slog.String("error", runErr.Error()),
		)
	}

	s.save(job, logger)
	return job.Clone()
}

func (s *Service) discardOutput(job *Job, logger *slog.Logger) {
	snapshot := job.Clone()
	if snapshot.OutputVideoPath == "" {
		return
	}
	if err := s.storage.CleanupTemp(context.Background(), []string{snapshot.OutputVideoPath}); err != nil {
		logger.Warn("failed to remove partial video", slog.String("error", err.Error()))
	}
	job.ClearOutput()
}

// save persists job even when the run context is already cancelled.
func (s *Service) save(job *Job, logger *slog.Logger) {
	if err := s.repo.Save(context.Background(), job); err != nil {
		logger.Error("failed to save job", slog.String("error", err.Error()))
	}
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// CancelJob stops a queued or running job. A running job is cancelled
// asynchronously; its status becomes CANCELLED once the driver stops.
func (s *Service) CancelJob(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, ErrJobFinished
	}

	if cancel, ok := s.cancels[id]; ok {
		cancel(context.Canceled)
		s.logger.Info("job cancellation requested", slog.String("job_id", id))
		return job, nil
	}

	// Queued and never claimed.
	if err := job.Cancel(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}
	_ = s.storage.CleanupTemp(ctx, []string{job.InputImagePath})
	s.logger.Info("queued job cancelled", slog.String("job_id", id))
	return job, nil
}

// DeleteJob removes a finished job and its temp files.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return ErrJobActive
	}

	if err := s.storage.CleanupTemp(ctx, job.TempPaths()); err != nil {
		s.logger.Warn("failed to remove job files",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
	}
	return s.repo.Delete(ctx, id)
}

// OpenVideo returns the rendered video of a completed job. The caller must
// close the reader.
func (s *Service) OpenVideo(ctx context.Context, id string) (io.ReadCloser, *Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !job.VideoReady() {
		return nil, job, ErrVideoNotReady
	}

	rc, err := s.storage.LoadTemp(ctx, job.OutputVideoPath)
	if err != nil {
		return nil, job, fmt.Errorf("open video: %w", err)
	}
	return rc, job, nil
}

// Generate runs one generation synchronously, without a job record.
// It shares the concurrency limit with background jobs.
func (s *Service) Generate(ctx context.Context, image io.Reader, params animation.Params) (*media.Artifact, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	driver := animation.NewDriver(s.newEncoder, s.logger, s.driverOpts...)
	return driver.Generate(ctx, image, params)
}

// Shutdown cancels every active job and waits for background runs to
// record their final state, or for ctx to expire.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, cancel := range s.cancels {
		cancel(context.Canceled)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// imageExt keeps a short, lower-case extension of an uploaded file name.
func imageExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 5 {
		return ""
	}
	return ext
}
