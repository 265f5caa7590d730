// Package vad implements a streaming, RMS-gated voice activity detector.
//
// The detector is a four-state machine operating on frames at the active
// sample rate (not resampled to 16 kHz — that happens later, at drain
// time). It decides, frame by frame, whether to emit or suppress samples,
// and stitches symmetric padding around detected speech so that onsets and
// offsets are not clipped.
package vad

import "math"

// State is one of the four VAD states.
type State int

const (
	Silence State = iota
	SpeechOnset
	Speaking
	SpeechOffset
)

func (s State) String() string {
	switch s {
	case Silence:
		return "silence"
	case SpeechOnset:
		return "speech_onset"
	case Speaking:
		return "speaking"
	case SpeechOffset:
		return "speech_offset"
	default:
		return "unknown"
	}
}

// Config holds the thresholds and timing parameters for one VAD instance.
// SpeechThreshold must be >= SilenceThreshold (hysteresis).
type Config struct {
	SpeechThreshold  float64
	SilenceThreshold float64
	MinSpeechMs      int
	MinSilenceMs     int
	PrePadMs         int
	PostPadMs        int
	Enabled          bool
}

// DefaultConfig returns typical tuning values from the spec.
func DefaultConfig() Config {
	return Config{
		SpeechThreshold:  0.02,
		SilenceThreshold: 0.01,
		MinSpeechMs:      60,
		MinSilenceMs:     600,
		PrePadMs:         200,
		PostPadMs:        250,
		Enabled:          true,
	}
}

// Detector is a single VAD instance. It is not safe for concurrent use: the
// spec's ownership model has exactly one actor (the capture thread) driving
// it, with Reset serialized by the capture's collecting gate.
type Detector struct {
	cfg      Config
	rate     int
	state    State
	isSpeaking bool

	prePad []float32 // bounded-by-samples ring of pre-speech audio

	onset        []float32
	speechSamples int

	post          []float32
	silenceSamples int
}

// New creates a Detector for samples arriving at sampleRate Hz.
func New(cfg Config, sampleRate int) *Detector {
	return &Detector{cfg: cfg, rate: sampleRate, state: Silence}
}

// SetConfig swaps in a new Config. Reapplying the same Config twice leaves
// VAD state equivalent (idempotent): it only changes thresholds/timings, not
// buffered contents or current state.
func (d *Detector) SetConfig(cfg Config) {
	d.cfg = cfg
}

// SetSampleRate updates the active sample rate used to convert ms to sample
// counts. Callers should Reset after changing this.
func (d *Detector) SetSampleRate(rate int) {
	d.rate = rate
}

// IsSpeaking reports whether the detector currently considers the stream to
// be in a speech region. It remains true across SpeechOffset until the
// offset commits to Silence.
func (d *Detector) IsSpeaking() bool {
	return d.isSpeaking
}

// State returns the current state.
func (d *Detector) State() State {
	return d.state
}

// Reset clears all internal buffers and counters and returns to Silence.
func (d *Detector) Reset() {
	d.state = Silence
	d.isSpeaking = false
	d.prePad = d.prePad[:0]
	d.onset = d.onset[:0]
	d.speechSamples = 0
	d.post = d.post[:0]
	d.silenceSamples = 0
}

func (d *Detector) msToSamples(ms int) int {
	return ms * d.rate / 1000
}

// Process runs one frame through the state machine and returns the samples
// that should be appended to the RingBuffer (possibly empty, possibly
// including padding carried from prior frames). Frame length may be
// anything, including shorter than the nominal 30ms tuning assumption — it
// is processed with its true length. If the detector is disabled, the
// frame is returned unchanged.
func (d *Detector) Process(frame []float32) []float32 {
	if !d.cfg.Enabled {
		return frame
	}

	rms := rms(frame)

	switch d.state {
	case Silence:
		if rms >= d.cfg.SpeechThreshold {
			d.onset = append(d.onset[:0], frame...)
			d.speechSamples = len(frame)
			d.state = SpeechOnset
			return nil
		}
		d.pushPrePad(frame)
		return nil

	case SpeechOnset:
		if rms >= d.cfg.SpeechThreshold {
			d.onset = append(d.onset, frame...)
			d.speechSamples += len(frame)
			if d.speechSamples >= d.msToSamples(d.cfg.MinSpeechMs) {
				out := make([]float32, 0, len(d.prePad)+len(d.onset))
				out = append(out, d.prePad...)
				out = append(out, d.onset...)
				d.prePad = d.prePad[:0]
				d.onset = d.onset[:0]
				d.isSpeaking = true
				d.state = Speaking
				return out
			}
			return nil
		}
		// demote: spill onset back into pre-pad, discard onset state
		d.pushPrePad(d.onset)
		d.onset = d.onset[:0]
		d.speechSamples = 0
		d.state = Silence
		d.pushPrePad(frame)
		return nil

	case Speaking:
		if rms < d.cfg.SilenceThreshold {
			d.post = append(d.post[:0], frame...)
			d.silenceSamples = len(frame)
			d.state = SpeechOffset
			return nil
		}
		return frame

	case SpeechOffset:
		if rms < d.cfg.SilenceThreshold {
			d.post = append(d.post, frame...)
			d.silenceSamples += len(frame)
			if d.silenceSamples >= d.msToSamples(d.cfg.MinSilenceMs) {
				postPadSamples := d.msToSamples(d.cfg.PostPadMs)
				out := d.post
				if len(out) > postPadSamples {
					out = out[:postPadSamples]
				}
				d.post = d.post[:0]
				d.silenceSamples = 0
				d.isSpeaking = false
				d.state = Silence
				return out
			}
			return nil
		}
		// speech resumed: emit buffered post + current frame, back to Speaking
		out := make([]float32, 0, len(d.post)+len(frame))
		out = append(out, d.post...)
		out = append(out, frame...)
		d.post = d.post[:0]
		d.silenceSamples = 0
		d.state = Speaking
		return out
	}

	return nil
}

// pushPrePad appends samples to the pre-speech ring, truncating the oldest
// samples from the head when it exceeds PrePadMs worth of samples. The ring
// is bounded by samples, not frames.
func (d *Detector) pushPrePad(samples []float32) {
	d.prePad = append(d.prePad, samples...)
	cap := d.msToSamples(d.cfg.PrePadMs)
	if len(d.prePad) > cap {
		d.prePad = d.prePad[len(d.prePad)-cap:]
	}
}

func rms(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
