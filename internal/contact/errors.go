package contact

import (
	"errors"
	"fmt"
)

var (
	ErrAdmissionDenied = errors.New("too many requests")
	ErrCaptchaFailed   = errors.New("captcha verification failed")
	ErrStoreFailed     = errors.New("failed to store submission")
)

// DeniedError reports a submission refused by the admission controller.
type DeniedError struct {
	Key        string
	RetryAfter int // seconds
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%v: retry after %ds", ErrAdmissionDenied, e.RetryAfter)
}

func (e *DeniedError) Unwrap() error {
	return ErrAdmissionDenied
}
