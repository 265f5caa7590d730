// Package transcriber adapts the Whisper ASR engine (via whisper.cpp's Go
// bindings) to the pipeline's Transcriber seam: load a model, warm it up,
// and transcribe 16 kHz mono buffers with an optional context prompt.
package transcriber

import (
	"time"

	"github.com/murmurhq/murmur/internal/errors"
)

// Segment is one transcribed span of text.
type Segment struct {
	Text         string
	StartMs      int
	EndMs        int
	NoSpeechProb float64 // -1 when unavailable
	AvgTokenProb float64 // -1 when unavailable
}

// Result is the outcome of one transcribe call (or, after Chunker.Split, of
// a merged run across several chunks).
type Result struct {
	Segments        []Segment
	AudioDurationMs int
	WallTimeMs      int
	ModelName       string
}

// SamplingStrategy is a tagged variant over Whisper's two decoding
// strategies, each carrying its own integer parameter.
type SamplingStrategy struct {
	Greedy *GreedyStrategy
	Beam   *BeamStrategy
}

// GreedyStrategy decodes greedily, optionally sampling BestOf candidates.
type GreedyStrategy struct {
	BestOf int
}

// BeamStrategy decodes with beam search of the given width.
type BeamStrategy struct {
	BeamSize int
}

// Settings configures a Transcriber beyond the model path.
type Settings struct {
	Language         string
	InitialPrompt    string
	UseGPU           bool
	Threads          int
	Sampling         SamplingStrategy
}

// DefaultSettings returns typical tuning values.
func DefaultSettings() Settings {
	return Settings{
		Language: "en",
		Threads:  4,
		Sampling: SamplingStrategy{Greedy: &GreedyStrategy{BestOf: 1}},
	}
}

// Backend is the narrow surface the whisper.cpp binding must satisfy, kept
// separate from Transcriber so tests can substitute a fake. settings is
// passed through on every call (not just at construction) so a Backend can
// map language/threads/GPU/sampling-strategy onto the engine per call, the
// way whisper.cpp's context-based API requires.
type Backend interface {
	Transcribe(samples []float32, settings Settings, prompt string) ([]Segment, error)
	Close()
}

// Transcriber wraps a Backend with the warmup/load lifecycle and error
// mapping the pipeline expects. All calls are guarded by the caller's own
// mutex (the pipeline's single-flight invariant); this type does not lock
// internally.
type Transcriber struct {
	backend   Backend
	modelName string
	settings  Settings
}

// New constructs a Transcriber from an already-opened Backend (produced by
// LoadWhisper or a test fake) and the model name used for reporting.
func New(backend Backend, modelName string, settings Settings) *Transcriber {
	return &Transcriber{backend: backend, modelName: modelName, settings: settings}
}

// Warmup forces kernel compilation / memory pinning by running one
// transcribe call over 1s of synthetic silence.
func (t *Transcriber) Warmup() error {
	silence := make([]float32, 16000)
	_, err := t.Transcribe(silence, "")
	return err
}

// Transcribe runs one ASR call over a 16 kHz mono buffer. On backend
// failure it returns a TranscribeFailed AppError with the partial wall
// time so the Pipeline can record it even though there is nothing to
// output.
func (t *Transcriber) Transcribe(samples []float32, contextPrompt string) (Result, error) {
	start := time.Now()

	prompt := t.settings.InitialPrompt
	if contextPrompt != "" {
		prompt = contextPrompt
	}

	segments, err := t.backend.Transcribe(samples, t.settings, prompt)
	wallMs := int(time.Since(start).Milliseconds())

	if err != nil {
		return Result{AudioDurationMs: len(samples) * 1000 / 16000, WallTimeMs: wallMs, ModelName: t.modelName},
			errors.Wrap(err, errors.TranscribeFailed, "transcribe call failed")
	}

	return Result{
		Segments:        segments,
		AudioDurationMs: len(samples) * 1000 / 16000,
		WallTimeMs:      wallMs,
		ModelName:       t.modelName,
	}, nil
}

// ModelName returns the name this Transcriber was constructed with.
func (t *Transcriber) ModelName() string {
	return t.modelName
}

// Close releases backend resources.
func (t *Transcriber) Close() {
	if t.backend != nil {
		t.backend.Close()
	}
}
