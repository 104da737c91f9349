// Package job tracks asynchronous image-to-video generation requests.
// It holds the Job aggregate and its state machine, the repository port
// with an in-memory implementation, and the Service that runs jobs.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/image2video-api/internal/effect"
	"github.com/maauso/image2video-api/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job waits for a free generation slot.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates frames are being rendered and encoded.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the video is ready.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates generation failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled by the caller.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Job is one generation request: an uploaded image, an effect, a duration
// and, once completed, the rendered video.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Effect is the animation applied to the image.
	Effect effect.Effect
	// DurationSec is the requested video length in seconds.
	DurationSec int
	// FrameCount is the number of frames the video will contain.
	FrameCount int
	// FramesRendered counts frames captured so far.
	FramesRendered int
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains the user-facing message if the job failed.
	Error string
	// InputImagePath is the temp path of the uploaded image.
	InputImagePath string
	// OutputVideoPath is the temp path of the rendered video.
	OutputVideoPath string
	// MIMEType is the container type of the rendered video.
	MIMEType string
	// Extension is the file extension of the rendered video, without dot.
	Extension string
	// Width is the rendered video width.
	Width int
	// Height is the rendered video height.
	Height int
	// PushToS3 indicates whether to publish the result to S3.
	PushToS3 bool
	// VideoURL is the S3 URL if PushToS3 was true.
	VideoURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED and sets progress to 100.
func (j *Job) Complete() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED with a user-facing message.
// The message is only recorded if the transition is allowed.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// RecordFrames stores how many of total frames were captured and derives
// the percentage. It reports whether the percentage changed.
func (j *Job) RecordFrames(done, total int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	done = max(0, min(done, total))
	j.FramesRendered = done
	j.FrameCount = total

	progress := 0
	if total > 0 {
		progress = done * 100 / total
	}
	// 100 is reserved for Complete.
	progress = min(progress, 99)

	changed := progress != j.Progress
	j.Progress = progress
	j.UpdatedAt = time.Now()
	return changed
}

// SetOutput records the rendered video.
func (j *Job) SetOutput(videoPath, mimeType, ext string, width, height int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputVideoPath = videoPath
	j.MIMEType = mimeType
	j.Extension = ext
	j.Width = width
	j.Height = height
	j.UpdatedAt = time.Now()
}

// SetVideoURL records the published URL of the video.
func (j *Job) SetVideoURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.VideoURL = url
	j.UpdatedAt = time.Now()
}

// ClearOutput forgets the rendered video.
func (j *Job) ClearOutput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputVideoPath = ""
	j.VideoURL = ""
	j.UpdatedAt = time.Now()
}

// TempPaths lists the job's files in temp storage.
func (j *Job) TempPaths() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var paths []string
	for _, p := range []string{j.InputImagePath, j.OutputVideoPath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// VideoReady reports whether the job has a downloadable video.
func (j *Job) VideoReady() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted && j.OutputVideoPath != ""
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:              j.ID,
		Status:          j.Status,
		Effect:          j.Effect,
		DurationSec:     j.DurationSec,
		FrameCount:      j.FrameCount,
		FramesRendered:  j.FramesRendered,
		Progress:        j.Progress,
		Error:           j.Error,
		InputImagePath:  j.InputImagePath,
		OutputVideoPath: j.OutputVideoPath,
		MIMEType:        j.MIMEType,
		Extension:       j.Extension,
		Width:           j.Width,
		Height:          j.Height,
		PushToS3:        j.PushToS3,
		VideoURL:        j.VideoURL,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}
