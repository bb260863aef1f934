package outfeed

import "fmt"

// ValidationError reports input rejected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is enables errors.Is matching on ValidationError.
func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	if ok {
		return true
	}
	_, ok = target.(*ValidationError)
	return ok
}

// ErrValidation is the sentinel error for rejected input.
var ErrValidation = ValidationError{}

// NetworkError reports a transport failure or a non-success HTTP status
// while fetching.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status code: %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e NetworkError) Unwrap() error { return e.Err }

// Is enables errors.Is matching on NetworkError.
func (e NetworkError) Is(target error) bool {
	_, ok := target.(NetworkError)
	if ok {
		return true
	}
	_, ok = target.(*NetworkError)
	return ok
}

// ErrNetwork is the sentinel error for transport failures.
var ErrNetwork = NetworkError{}

// DecodeError reports a response body that could not be parsed into the
// expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to decode response: %v", e.Op, e.Err)
}

func (e DecodeError) Unwrap() error { return e.Err }

// Is enables errors.Is matching on DecodeError.
func (e DecodeError) Is(target error) bool {
	_, ok := target.(DecodeError)
	if ok {
		return true
	}
	_, ok = target.(*DecodeError)
	return ok
}

// ErrDecode is the sentinel error for malformed responses.
var ErrDecode = DecodeError{}

// SubmissionError reports a submission the backend rejected, carrying a
// human-readable message.
type SubmissionError struct {
	Status  int
	Message string
}

func (e SubmissionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("submission failed with status %d", e.Status)
	}
	return fmt.Sprintf("submission failed: %s", e.Message)
}

// Is enables errors.Is matching on SubmissionError.
func (e SubmissionError) Is(target error) bool {
	_, ok := target.(SubmissionError)
	if ok {
		return true
	}
	_, ok = target.(*SubmissionError)
	return ok
}

// ErrSubmission is the sentinel error for rejected submissions.
var ErrSubmission = SubmissionError{}
