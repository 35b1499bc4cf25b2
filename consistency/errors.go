package consistency

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized Applier 尚未初始化
	ErrNotInitialized = errors.New("consistency applier not initialized")

	// ErrInvalidSegment 未知的视频分段
	ErrInvalidSegment = errors.New("invalid segment")
)

// MalformedStateError reports a snapshot that failed schema validation.
type MalformedStateError struct {
	Key    string
	Reason string
}

func (e *MalformedStateError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("malformed visual state: %s", e.Reason)
	}
	return fmt.Sprintf("malformed visual state: key %q: %s", e.Key, e.Reason)
}

func malformed(key, format string, args ...any) *MalformedStateError {
	return &MalformedStateError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// ExtractionStage identifies where style extraction failed.
type ExtractionStage string

const (
	StageFetch   ExtractionStage = "fetch"
	StageAnalyze ExtractionStage = "analyze"
	StageDecode  ExtractionStage = "decode"
)

// ExtractionFailure is a soft failure during style extraction. It is logged
// and the extractor returns empty attributes.
type ExtractionFailure struct {
	Stage    ExtractionStage
	ImageURL string
	Err      error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("style extraction failed at %s for %s: %v", e.Stage, e.ImageURL, e.Err)
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }

// StateLoadFailure means a persisted snapshot could not be loaded. Callers on
// the opportunistic path fall back to a fresh default state.
type StateLoadFailure struct {
	Key string
	Err error
}

func (e *StateLoadFailure) Error() string {
	return fmt.Sprintf("failed to load visual state %s: %v", e.Key, e.Err)
}

func (e *StateLoadFailure) Unwrap() error { return e.Err }
