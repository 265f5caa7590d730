// Package transcriber — whisper.cpp binding.
package transcriber

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/murmurhq/murmur/internal/errors"
)

// whisperBackend adapts whisper.cpp's Go bindings to the Backend
// interface. Context configuration (language, threads, sampling strategy,
// split-on-word, token timestamps) happens once per Transcribe call since
// the underlying context is not safe for concurrent reconfiguration.
type whisperBackend struct {
	model whisper.Model

	gpuWarnOnce sync.Once
}

// LoadWhisper opens a GGML model file and returns a Backend. Returns a
// ModelLoadFailed AppError on failure.
func LoadWhisper(modelPath string) (Backend, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ModelLoadFailed, fmt.Sprintf("load model %q", modelPath))
	}
	return &whisperBackend{model: model}, nil
}

func (w *whisperBackend) Transcribe(samples []float32, settings Settings, prompt string) ([]Segment, error) {
	ctx, err := w.model.NewContext()
	if err != nil {
		return nil, err
	}

	if settings.Language != "" {
		_ = ctx.SetLanguage(settings.Language)
	}
	threads := settings.Threads
	if threads <= 0 {
		threads = 4
	}
	ctx.SetThreads(uint(threads))
	ctx.SetSplitOnWord(true)
	ctx.SetTokenTimestamps(true)
	if beam := settings.Sampling.Beam; beam != nil && beam.BeamSize > 0 {
		ctx.SetBeamSize(beam.BeamSize)
	}
	if settings.UseGPU {
		// No corpus-grounded binding exposes a per-context or per-load GPU
		// toggle (whisper.New takes only a model path everywhere it's
		// used); warn once rather than silently ignoring the setting.
		w.gpuWarnOnce.Do(func() {
			slog.Warn("transcriber: GPU requested but this whisper.cpp binding has no runtime GPU switch; build with CUDA/Metal support to get GPU acceleration")
		})
	}
	if prompt != "" {
		ctx.SetInitialPrompt(prompt)
	}

	if err := ctx.Process(samples, nil, nil); err != nil {
		return nil, err
	}

	var segments []Segment
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			break
		}
		segments = append(segments, Segment{
			Text:         seg.Text,
			StartMs:      int(seg.Start.Milliseconds()),
			EndMs:        int(seg.End.Milliseconds()),
			NoSpeechProb: -1,
			AvgTokenProb: avgTokenProb(seg),
		})
	}
	return segments, nil
}

func (w *whisperBackend) Close() {
	w.model.Close()
}

// avgTokenProb averages per-token probabilities when the binding surfaces
// them; returns -1 when unavailable so HallucinationFilter's confidence
// rule treats the segment as "no confidence data" rather than zero
// confidence.
func avgTokenProb(seg whisper.Segment) float64 {
	if len(seg.Tokens) == 0 {
		return -1
	}
	var sum float64
	for _, tok := range seg.Tokens {
		sum += float64(tok.P)
	}
	return sum / float64(len(seg.Tokens))
}
