package buildx

import "fmt"

type BuildReason string

const (
	ReasonUnsupportedArch BuildReason = "unsupported_arch"
	ReasonStageFailed     BuildReason = "stage_failed"
)

// BuildError reports a failed image build. Stage is empty when the build
// never started, e.g. when no builder can target the platform.
type BuildError struct {
	Reason   BuildReason
	Stage    string
	Platform string
	Err      error
}

func (e *BuildError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("build for %s failed (%s): %v", e.Platform, e.Reason, e.Err)
	}
	return fmt.Sprintf("build for %s failed at stage %s (%s): %v", e.Platform, e.Stage, e.Reason, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
