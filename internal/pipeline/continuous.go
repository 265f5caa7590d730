package pipeline

import (
	"strings"
	"time"

	"github.com/murmurhq/murmur/internal/hallucination"
)

// monitorLoop is the continuous drive mode's dedicated actor: it wakes
// every MonitorTickInterval, decides whether a pause or a full buffer calls
// for a drain, and — respecting the single-flight invariant — schedules at
// most one transcribe at a time. A pause that arrives while a transcribe is
// already in flight is ignored; the next tick observes whatever has
// accumulated since.
func (p *Pipeline) monitorLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(MonitorTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.monitorTick()
		}
	}
}

func (p *Pipeline) monitorTick() {
	speaking := p.capture.IsSpeaking()
	bufferedCount := p.capture.BufferedSampleCount()
	bufferedSeconds := float64(bufferedCount) / float64(p.capture.HardwareRate())
	full := bufferedSeconds > BufferFullSeconds

	var pause, alreadyTranscribing bool
	p.st.Write(func(s *runtimeState) {
		if speaking {
			s.silenceFrameCount = 0
		} else {
			s.silenceFrameCount++
		}
		alreadyTranscribing = s.transcribing
		pause = bufferedCount > 0 && s.silenceFrameCount >= PauseFrames
	})

	if alreadyTranscribing || !(pause || full) {
		return
	}

	samples := p.capture.Drain()
	if len(samples) < ContinuousMinSamples {
		return
	}

	p.st.Write(func(s *runtimeState) { s.transcribing = true })
	go p.continuousTranscribe(samples)
}

// continuousTranscribe runs one transcribe call with a rolling prompt built
// from last_context_text, applies the full HallucinationFilter (including
// prompt-echo), and on acceptance dispatches the text and extends the
// rolling context.
func (p *Pipeline) continuousTranscribe(samples []float32) {
	defer p.st.Write(func(s *runtimeState) { s.transcribing = false })

	lastContext := p.st.Get().lastContextText
	prompt := lastChars(lastContext, PromptSuffixChars)

	result, err := p.callTranscribe(samples, prompt)
	if err != nil {
		return
	}

	var kept []string
	for _, seg := range result.Segments {
		if hallucination.AcceptSegment(seg) && seg.Text != "" {
			kept = append(kept, seg.Text)
		}
	}
	text := joinWords(kept)
	if text == "" {
		return
	}

	if !hallucination.AcceptContinuous(text, lastContext) {
		return
	}

	p.dispatch(text + " ")
	p.st.Write(func(s *runtimeState) {
		s.didOutput = true
		s.lastContextText = appendContext(s.lastContextText, text)
	})
	p.emit(Event{Kind: EventTranscript, Text: text})
}

// appendContext grows last_context_text by " "+text, truncating from the
// head to LastContextKeep once the cap is exceeded.
func appendContext(existing, text string) string {
	next := existing
	if next != "" {
		next += " "
	}
	next += text
	if len(next) > LastContextCap {
		r := []rune(next)
		if len(r) > LastContextKeep {
			next = string(r[len(r)-LastContextKeep:])
		}
	}
	return next
}

func lastChars(s string, n int) string {
	trimmed := strings.TrimSpace(s)
	r := []rune(trimmed)
	if len(r) <= n {
		return trimmed
	}
	return string(r[len(r)-n:])
}
