// Package server provides the HTTP API of the image-to-video service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// GenerateVideoRequest is the body of POST /api/generate-video.
type GenerateVideoRequest struct {
	// Image is a data URL or a bare base64 payload.
	Image string `json:"image" validate:"required"`
	// Duration is the video length in seconds.
	Duration int `json:"duration" validate:"required,min=1,max=10"`
	// Effect is the animation effect identifier.
	Effect string `json:"effect" validate:"required,oneof=zoom-in zoom-out pan-left pan-right pan-up pan-down rotate fade"`
}

// GenerateVideoResponse is the response of POST /api/generate-video.
type GenerateVideoResponse struct {
	// VideoURL is a data URL holding the whole video.
	VideoURL string `json:"videoUrl"`
}

// JobParams are the animation settings shared by both forms of POST /jobs.
type JobParams struct {
	// Duration is the video length in seconds.
	Duration int `json:"duration" validate:"required,min=1,max=10"`
	// Effect is the animation effect identifier.
	Effect string `json:"effect" validate:"required,oneof=zoom-in zoom-out pan-left pan-right pan-up pan-down rotate fade"`
	// PushToS3 indicates whether to upload the final video to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobRequest is the JSON form of POST /jobs. The multipart form
// carries the JobParams fields with the image as a file part named "image".
type CreateJobRequest struct {
	// ImageBase64 is the base64-encoded source image or a data URL.
	ImageBase64 string `json:"image_base64" validate:"required"`
	JobParams
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	Effect         string     `json:"effect"`
	Duration       int        `json:"duration"`
	Progress       int        `json:"progress"`
	FrameCount     int        `json:"frame_count"`
	FramesRendered int        `json:"frames_rendered"`
	Error          string     `json:"error,omitempty"`
	Width          int        `json:"width,omitempty"`
	Height         int        `json:"height,omitempty"`
	MIMEType       string     `json:"mime_type,omitempty"`
	// VideoURL is the S3 URL of the output video (if push_to_s3=true and completed).
	VideoURL string `json:"video_url,omitempty"`
	// DownloadURL is the API path serving the video once completed.
	DownloadURL string     `json:"download_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse is the HTTP response of GET /jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// EffectsResponse describes what POST /jobs and /api/generate-video accept.
type EffectsResponse struct {
	Effects         []string `json:"effects"`
	DefaultEffect   string   `json:"default_effect"`
	MinDuration     int      `json:"min_duration"`
	MaxDuration     int      `json:"max_duration"`
	DefaultDuration int      `json:"default_duration"`
	FrameRate       int      `json:"frame_rate"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
