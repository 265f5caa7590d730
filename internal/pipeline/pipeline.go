// Package pipeline is the controller: it owns AudioCapture, VAD
// configuration, the active Transcriber, the output mode, and drives both
// the buffered (transcribe-on-release) and continuous (pause-driven)
// modes.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/murmurhq/murmur/internal/audio"
	"github.com/murmurhq/murmur/internal/chunker"
	"github.com/murmurhq/murmur/internal/errors"
	"github.com/murmurhq/murmur/internal/hallucination"
	"github.com/murmurhq/murmur/internal/inject"
	"github.com/murmurhq/murmur/internal/resilience"
	"github.com/murmurhq/murmur/internal/syncx"
	"github.com/murmurhq/murmur/internal/trace"
	"github.com/murmurhq/murmur/internal/transcriber"
	"github.com/murmurhq/murmur/internal/vad"
)

// DriveMode selects the controller's transcription strategy.
type DriveMode int

const (
	Buffered DriveMode = iota
	Continuous
)

func (m DriveMode) String() string {
	if m == Continuous {
		return "continuous"
	}
	return "buffered"
}

const (
	// MinSamples is the smallest 16kHz buffer worth transcribing at all.
	MinSamples = 8000
	// ContinuousMinSamples is the smallest 16kHz buffer a continuous-mode
	// tick will schedule a transcribe for.
	ContinuousMinSamples = 24000

	// MonitorTickInterval is how often the continuous drive loop wakes.
	MonitorTickInterval = 150 * time.Millisecond
	// BufferFullSeconds is the raw (hardware-rate) buffered duration past
	// which continuous mode forces a drain regardless of pause state.
	BufferFullSeconds = 25.0
	// PauseFrames is the number of consecutive silent monitor ticks
	// (≈450ms) that declare a pause.
	PauseFrames = 3

	// LastContextCap is the hard cap on PipelineState.last_context_text.
	LastContextCap = 500
	// LastContextKeep is how much of the tail is retained when the cap is
	// exceeded.
	LastContextKeep = 300
	// PromptSuffixChars is how much of last_context_text is handed to the
	// Transcriber as a rolling initial_prompt.
	PromptSuffixChars = 200
)

// Config holds the knobs the Pipeline re-derives on Settings changes.
type Config struct {
	Drive             DriveMode
	Vad               vad.Config
	CaptureRate       int
	Gain              float64
	ReleaseDelayMs    int
	SendReturnDelayMs int
	KeepMicWarm       bool
}

// DefaultConfig returns typical tuning values.
func DefaultConfig() Config {
	return Config{
		Drive:             Buffered,
		Vad:               vad.DefaultConfig(),
		CaptureRate:       48000,
		Gain:              1.0,
		ReleaseDelayMs:    300,
		SendReturnDelayMs: 200,
		KeepMicWarm:       false,
	}
}

// EventKind classifies an Event emitted on the Pipeline's event channel.
type EventKind int

const (
	EventTranscript EventKind = iota
	EventState
	EventLevel
)

// Event is a unit the control surface fans out to connected watchers.
type Event struct {
	Kind  EventKind
	Text  string
	State string
	Level float64
}

type runtimeState struct {
	recording         bool
	transcribing      bool
	didOutput         bool
	lastContextText   string
	silenceFrameCount int
}

// Pipeline drives the pipeline described in the package doc comment.
type Pipeline struct {
	capture  *audio.Capture
	injector *inject.Injector
	breaker  *resilience.Breaker

	cfg *syncx.RWGuard[Config]
	st  *syncx.RWGuard[runtimeState]

	// transcriberMu serializes Transcriber access: the single-flight
	// invariant for the one actor (monitor tick or buffered stop) that may
	// be transcribing at any moment.
	transcriberMu sync.Mutex
	asr           *transcriber.Transcriber

	events chan Event

	monitorStop chan struct{}
	monitorDone chan struct{}
}

// New builds a Pipeline. No Transcriber is loaded yet; call LoadModel or
// LoadFirstAvailable before starting.
func New(cfg Config, injector *inject.Injector) *Pipeline {
	return &Pipeline{
		capture:  audio.New(cfg.CaptureRate, cfg.Vad, cfg.Gain),
		injector: injector,
		breaker:  resilience.New(resilience.FastConfig()),
		cfg:      syncx.NewGuard(cfg),
		st:       syncx.NewGuard(runtimeState{}),
		events:   make(chan Event, 64),
	}
}

// Events returns the channel the control surface fans out to watchers.
// Never closed by the Pipeline; callers select on it for the process
// lifetime.
func (p *Pipeline) Events() <-chan Event {
	return p.events
}

func (p *Pipeline) emit(e Event) {
	select {
	case p.events <- e:
	default: // drop rather than block the capture/monitor path
	}
}

// ApplyVadSettings re-derives the VAD config from a new Settings value.
// Idempotent: applying the same Config twice leaves VAD state equivalent,
// since Detector.SetConfig only swaps thresholds, not buffered state.
func (p *Pipeline) ApplyVadSettings(cfg vad.Config) {
	p.cfg.Write(func(c *Config) { c.Vad = cfg })
	p.capture.SetVadConfig(cfg)
}

// SetConfig replaces the full Config. Used by the control surface's
// "reload" command.
func (p *Pipeline) SetConfig(cfg Config) {
	p.cfg.Set(cfg)
	p.capture.SetVadConfig(cfg.Vad)
}

// AudioLevel returns the live input RMS level, for the UI's meter.
func (p *Pipeline) AudioLevel() float64 {
	return p.capture.AudioLevel()
}

// IsRecording reports PipelineState.recording.
func (p *Pipeline) IsRecording() bool {
	return p.st.Get().recording
}

// IsTranscribing reports PipelineState.transcribing.
func (p *Pipeline) IsTranscribing() bool {
	return p.st.Get().transcribing
}

// StartRecording resets did_output and last_context_text, starts capture,
// and — in Continuous mode — spawns the monitor loop.
func (p *Pipeline) StartRecording() error {
	if err := p.capture.StartRecording(); err != nil {
		return err
	}

	p.st.Write(func(s *runtimeState) {
		s.recording = true
		s.didOutput = false
		s.lastContextText = ""
		s.silenceFrameCount = 0
	})
	p.emit(Event{Kind: EventState, State: "recording"})

	if p.cfg.Get().Drive == Continuous {
		p.monitorStop = make(chan struct{})
		p.monitorDone = make(chan struct{})
		go p.monitorLoop(p.monitorStop, p.monitorDone)
	}
	return nil
}

// StopRecordingAndTranscribe stops the monitor (if running), drains
// remaining audio, performs a final transcription of the remainder if it
// meets MinSamples, dispatches output, and — if isSend and output was
// produced — schedules the Send-Return variant.
func (p *Pipeline) StopRecordingAndTranscribe(isSend bool) (*transcriber.Result, error) {
	if p.monitorStop != nil {
		close(p.monitorStop)
		<-p.monitorDone
		p.monitorStop = nil
		p.monitorDone = nil
	}

	if cfg := p.cfg.Get(); cfg.ReleaseDelayMs > 0 {
		time.Sleep(time.Duration(cfg.ReleaseDelayMs) * time.Millisecond)
	}

	samples := p.capture.StopRecording()
	if !p.cfg.Get().KeepMicWarm {
		p.capture.Release()
	}

	p.st.Write(func(s *runtimeState) { s.recording = false })
	p.emit(Event{Kind: EventState, State: "idle"})

	if !meetsMinSamples(len(samples)) {
		return nil, nil
	}

	result, text, err := p.transcribeBuffered(samples)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return &result, nil
	}

	p.dispatch(text)
	p.st.Write(func(s *runtimeState) { s.didOutput = true })
	p.emit(Event{Kind: EventTranscript, Text: text})

	if isSend {
		p.sendReturn()
	}
	return &result, nil
}

// transcribeBuffered runs the Chunker if needed (long audio) or a single
// Transcriber call, then filters segments by confidence and joins the
// survivors, applying the length/phrase/trigram rules to the join.
func (p *Pipeline) transcribeBuffered(samples []float32) (transcriber.Result, string, error) {
	result, err := p.callTranscribe(samples, "")
	if err != nil {
		return transcriber.Result{}, "", err
	}

	var kept []string
	for _, seg := range result.Segments {
		if hallucination.AcceptSegment(seg) && seg.Text != "" {
			kept = append(kept, seg.Text)
		}
	}
	text := joinWords(kept)
	if !hallucination.Accept(text) {
		return result, "", nil
	}
	return result, text, nil
}

// callTranscribe runs samples through the Chunker when they exceed
// chunker.MaxChunkSamples, else a single breaker-guarded Transcriber call.
func (p *Pipeline) callTranscribe(samples []float32, prompt string) (transcriber.Result, error) {
	if len(samples) > chunker.MaxChunkSamples {
		return chunker.Split(samples, func(sub []float32, subPrompt string) (transcriber.Result, error) {
			if subPrompt == "" {
				subPrompt = prompt
			}
			return p.transcribeOnce(sub, subPrompt)
		})
	}
	return p.transcribeOnce(samples, prompt)
}

// transcribeOnce is the single point where the Transcriber mutex is held
// and the circuit breaker guards the call. The mutex is held for the
// entire call, not just the pointer read: this is what makes "one
// transcribe in flight" an actual invariant rather than a race, since it
// also blocks a concurrent LoadModel swap and makes Shutdown/
// StopRecordingAndTranscribe wait for an in-flight continuous-mode
// transcribe to finish before starting another. Retried with
// TranscriberRetryConfig.
func (p *Pipeline) transcribeOnce(samples []float32, prompt string) (transcriber.Result, error) {
	p.transcriberMu.Lock()
	defer p.transcriberMu.Unlock()

	asr := p.asr
	if asr == nil {
		return transcriber.Result{}, errors.New(errors.ModelLoadFailed, "no transcriber loaded")
	}

	ctx, span := trace.StartSpan(context.Background(), "transcribe")
	defer span.End()
	span.SetAttr("samples", len(samples))

	var result transcriber.Result
	berr := p.breaker.Execute(func() error {
		return resilience.Retry(ctx, resilience.TranscriberRetryConfig(), func() error {
			var err error
			result, err = asr.Transcribe(samples, prompt)
			return err
		})
	})
	if berr != nil {
		span.SetAttr("error", berr.Error())
		return result, berr
	}
	return result, nil
}

func (p *Pipeline) dispatch(text string) {
	if err := p.injector.Inject(text); err != nil {
		trace.Logger(context.Background()).Debug("injection failed", "error", err)
	}
}

func (p *Pipeline) sendReturn() {
	delay := time.Duration(p.cfg.Get().SendReturnDelayMs) * time.Millisecond
	time.Sleep(delay)
	if err := p.injector.PressReturn(); err != nil {
		trace.Logger(context.Background()).Debug("return injection failed", "error", err)
	}
}

// meetsMinSamples is the inclusive MinSamples boundary check: exactly
// MinSamples is transcribed, MinSamples-1 is not.
func meetsMinSamples(n int) bool {
	return n >= MinSamples
}

func joinWords(parts []string) string {
	out := ""
	for _, s := range parts {
		if s == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += s
	}
	return out
}
