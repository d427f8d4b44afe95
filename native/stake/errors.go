package stake

import (
	"errors"

	coreerrors "dlanstake/core/errors"
	"dlanstake/native/common"
)

var (
	ErrZeroDaysRequested       = errors.New("stake: zero days requested")
	ErrInsufficientElapsedDays = errors.New("stake: insufficient elapsed days")
	ErrInvalidTrack            = errors.New("stake: invalid track")

	errNilState = errors.New("stake: state not configured")
)

// Kind maps program and host errors onto their taxonomy names. Unknown errors
// yield "Internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrZeroDaysRequested):
		return "ZeroDaysRequested"
	case errors.Is(err, ErrInsufficientElapsedDays):
		return "InsufficientElapsedDays"
	case errors.Is(err, ErrInvalidTrack):
		return "InvalidTrack"
	case errors.Is(err, common.ErrModulePaused):
		return "ModulePaused"
	}
	if kind := coreerrors.Kind(err); kind != "" {
		return kind
	}
	return "Internal"
}
