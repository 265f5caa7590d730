package transcriber

import (
	"errors"
	"testing"

	appErrors "github.com/murmurhq/murmur/internal/errors"
)

type fakeBackend struct {
	segments []Segment
	err      error
	closed   bool
	lastPrompt   string
	lastSettings Settings
}

func (f *fakeBackend) Transcribe(samples []float32, settings Settings, prompt string) ([]Segment, error) {
	f.lastPrompt = prompt
	f.lastSettings = settings
	return f.segments, f.err
}

func (f *fakeBackend) Close() { f.closed = true }

func TestTranscribeSuccess(t *testing.T) {
	fb := &fakeBackend{segments: []Segment{{Text: "hello"}}}
	tr := New(fb, "tiny.en", DefaultSettings())

	result, err := tr.Transcribe(make([]float32, 16000), "")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if len(result.Segments) != 1 || result.Segments[0].Text != "hello" {
		t.Errorf("unexpected segments: %+v", result.Segments)
	}
	if result.ModelName != "tiny.en" {
		t.Errorf("ModelName = %q, want tiny.en", result.ModelName)
	}
}

func TestTranscribeFailureWrapsAppError(t *testing.T) {
	fb := &fakeBackend{err: errors.New("boom")}
	tr := New(fb, "tiny.en", DefaultSettings())

	_, err := tr.Transcribe(make([]float32, 16000), "")
	if !appErrors.IsCode(err, appErrors.TranscribeFailed) {
		t.Errorf("expected TranscribeFailed AppError, got %v", err)
	}
}

func TestContextPromptOverridesInitial(t *testing.T) {
	fb := &fakeBackend{}
	settings := DefaultSettings()
	settings.InitialPrompt = "initial"
	tr := New(fb, "tiny.en", settings)

	tr.Transcribe(make([]float32, 1600), "rolling context")
	if fb.lastPrompt != "rolling context" {
		t.Errorf("lastPrompt = %q, want rolling context to override initial", fb.lastPrompt)
	}

	tr.Transcribe(make([]float32, 1600), "")
	if fb.lastPrompt != "initial" {
		t.Errorf("lastPrompt = %q, want fallback to initial prompt when no context given", fb.lastPrompt)
	}
}

func TestWarmupRunsSilence(t *testing.T) {
	fb := &fakeBackend{}
	tr := New(fb, "tiny.en", DefaultSettings())
	if err := tr.Warmup(); err != nil {
		t.Errorf("Warmup() error = %v", err)
	}
}

func TestTranscribePassesSettingsToBackend(t *testing.T) {
	fb := &fakeBackend{}
	settings := DefaultSettings()
	settings.Threads = 8
	settings.Sampling = SamplingStrategy{Beam: &BeamStrategy{BeamSize: 5}}
	tr := New(fb, "tiny.en", settings)

	if _, err := tr.Transcribe(make([]float32, 1600), ""); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if fb.lastSettings.Threads != 8 {
		t.Errorf("lastSettings.Threads = %d, want 8", fb.lastSettings.Threads)
	}
	if fb.lastSettings.Sampling.Beam == nil || fb.lastSettings.Sampling.Beam.BeamSize != 5 {
		t.Errorf("lastSettings.Sampling = %+v, want beam size 5", fb.lastSettings.Sampling)
	}
}

func TestClose(t *testing.T) {
	fb := &fakeBackend{}
	tr := New(fb, "tiny.en", DefaultSettings())
	tr.Close()
	if !fb.closed {
		t.Errorf("Close() did not close backend")
	}
}
