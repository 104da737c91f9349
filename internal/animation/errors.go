package animation

import (
	"context"
	"errors"

	"github.com/maauso/image2video-api/internal/effect"
	"github.com/maauso/image2video-api/internal/media"
	"github.com/maauso/image2video-api/internal/render"
)

// UserMessage is the single message shown to users for any failed run.
const UserMessage = "Failed to generate video"

// Failure classes reported by Classify.
const (
	ClassDecode     = "decode"
	ClassCapability = "capability"
	ClassCancelled  = "cancelled"
	ClassInvalid    = "invalid"
	ClassBusy       = "busy"
	ClassGeneric    = "generic"
)

// Classify names the failure class of err for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, render.ErrDecode):
		return ClassDecode
	case media.IsCapabilityError(err):
		return ClassCapability
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCancelled
	case errors.Is(err, ErrInvalidDuration), errors.Is(err, effect.ErrUnknownEffect):
		return ClassInvalid
	case errors.Is(err, ErrBusy):
		return ClassBusy
	default:
		return ClassGeneric
	}
}
