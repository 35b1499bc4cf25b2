package consistency

// Recorder receives outcome counts from the consistency components. The
// metrics collector implements it.
type Recorder interface {
	// RecordExtraction outcome: analyzed, fallback, fetch, analyze, decode.
	RecordExtraction(outcome string)
	// RecordEnhancement is called once per EnhancePrompt call.
	RecordEnhancement(segment string, enhanced bool)
	// RecordStateLoad outcome: loaded, missing, malformed, error.
	RecordStateLoad(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordExtraction(string)        {}
func (nopRecorder) RecordEnhancement(string, bool) {}
func (nopRecorder) RecordStateLoad(string)         {}
