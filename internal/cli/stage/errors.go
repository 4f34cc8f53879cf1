package stage

import "fmt"

// FetchReason classifies a staging failure.
type FetchReason string

const (
	ReasonNetwork   FetchReason = "network"
	ReasonFormat    FetchReason = "format"
	ReasonIntegrity FetchReason = "integrity"
)

// FetchError reports a failure to download, verify or extract an artifact.
type FetchError struct {
	Reason FetchReason
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Reason, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func fetchError(reason FetchReason, url string, err error) *FetchError {
	return &FetchError{Reason: reason, URL: url, Err: err}
}
