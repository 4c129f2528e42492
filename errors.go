package detectstream

import "github.com/pkg/errors"

// Sentinel errors classifying pipeline failures.  Concrete errors are wrapped
// around these so callers can test with errors.Is
var (
	// ErrLoad is a missing or invalid model or label asset, or a model whose
	// input shape could not be resolved.  It is fatal and disables the
	// orchestrator
	ErrLoad = errors.New("load error")
	// ErrSchedule is the backend rejecting an input tensor
	ErrSchedule = errors.New("schedule error")
	// ErrPostprocess is a missing or mismatched output tensor or a backend
	// failure during readback.  It degrades to an empty detection list
	ErrPostprocess = errors.New("postprocess error")
	// ErrRemap is a missing display target or invalid dimensions while
	// mapping detections into display space.  The remap is skipped for that
	// cycle only
	ErrRemap = errors.New("remap error")
)

// LoadError wraps err as an ErrLoad
func LoadError(err error, msg string) error {
	return wrapKind(ErrLoad, err, msg)
}

// PostprocessError wraps err as an ErrPostprocess
func PostprocessError(err error, msg string) error {
	return wrapKind(ErrPostprocess, err, msg)
}

// RemapError wraps err as an ErrRemap
func RemapError(err error, msg string) error {
	return wrapKind(ErrRemap, err, msg)
}

// ScheduleError wraps err as an ErrSchedule
func ScheduleError(err error, msg string) error {
	return wrapKind(ErrSchedule, err, msg)
}

// kindError attaches a sentinel kind to an underlying cause
type kindError struct {
	kind  error
	cause error
	msg   string
}

func (e *kindError) Error() string {

	if e.cause == nil {
		return e.kind.Error() + ": " + e.msg
	}

	return e.kind.Error() + ": " + e.msg + ": " + e.cause.Error()
}

// Is reports whether target is the error kind
func (e *kindError) Is(target error) bool {
	return target == e.kind
}

// Unwrap returns the underlying cause
func (e *kindError) Unwrap() error {
	return e.cause
}

func wrapKind(kind, err error, msg string) error {
	return errors.WithStack(&kindError{kind: kind, cause: err, msg: msg})
}
