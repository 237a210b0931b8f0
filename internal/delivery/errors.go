package delivery

import "errors"

// Repository errors.
var (
	ErrRecordNotFound = errors.New("delivery record not found")
	ErrStaleStatus    = errors.New("delivery record status changed concurrently")
)

// ChannelError wraps a provider error with its permanence. Transient
// errors are retried with backoff; permanent ones (invalid recipient,
// unsubscribed) are not.
type ChannelError struct {
	Err       error
	Permanent bool
}

func (e *ChannelError) Error() string {
	return e.Err.Error()
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// NewTransientError creates an error the pipeline will retry.
func NewTransientError(err error) *ChannelError {
	return &ChannelError{Err: err}
}

// NewPermanentError creates an error the pipeline will not retry.
func NewPermanentError(err error) *ChannelError {
	return &ChannelError{Err: err, Permanent: true}
}

// IsPermanent reports whether an error is a permanent channel failure.
// Unknown errors default to transient so they get retried.
func IsPermanent(err error) bool {
	var chErr *ChannelError
	if errors.As(err, &chErr) {
		return chErr.Permanent
	}
	return false
}
