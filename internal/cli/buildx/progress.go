package buildx

import (
	"bytes"
	"regexp"
	"sync"
)

var (
	stepStagePattern = regexp.MustCompile(`^#(\d+) \[([A-Za-z0-9_.-]+) \d+/\d+\]`)
	stepErrorPattern = regexp.MustCompile(`^#(\d+) ERROR`)
	// buildkit repeats the failing step in its summary as " > [ndk 1/1] COPY ndk /:".
	summaryPattern = regexp.MustCompile(`^\s*> \[([A-Za-z0-9_.-]+) \d+/\d+\]`)
)

// stageTracker watches `--progress plain` output for the stage whose step
// failed.
type stageTracker struct {
	mu      sync.Mutex
	pending []byte
	steps   map[string]string
	failed  string
	last    string
}

func newStageTracker() *stageTracker {
	return &stageTracker{steps: map[string]string{}}
}

func (t *stageTracker) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, p...)
	for {
		i := bytes.IndexByte(t.pending, '\n')
		if i < 0 {
			break
		}
		t.line(string(bytes.TrimRight(t.pending[:i], "\r")))
		t.pending = t.pending[i+1:]
	}
	return len(p), nil
}

func (t *stageTracker) line(s string) {
	if m := stepStagePattern.FindStringSubmatch(s); m != nil {
		t.steps[m[1]] = m[2]
		t.last = m[2]
		return
	}
	if m := stepErrorPattern.FindStringSubmatch(s); m != nil {
		if stage, ok := t.steps[m[1]]; ok && t.failed == "" {
			t.failed = stage
		}
		return
	}
	if m := summaryPattern.FindStringSubmatch(s); m != nil && t.failed == "" {
		t.failed = m[1]
	}
}

// FailedStage returns the stage of the first failed step, falling back to
// the last stage that produced output.
func (t *stageTracker) FailedStage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) > 0 {
		t.line(string(t.pending))
		t.pending = nil
	}
	if t.failed != "" {
		return t.failed
	}
	return t.last
}
