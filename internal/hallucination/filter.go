// Package hallucination rejects text that Whisper commonly parrots out on
// silence, music, or background noise rather than real speech.
package hallucination

import (
	"strings"

	"github.com/murmurhq/murmur/internal/transcriber"
)

// parrotPhrases are well-known Whisper hallucinations on silence/music.
// Matched against the full text, lowercased and trimmed, both as-is and
// with trailing sentence punctuation (".", "!", "?", ",") removed.
var parrotPhrases = map[string]struct{}{
	"thank you":                               {},
	"thanks for watching":                     {},
	"thank you for watching":                  {},
	"please subscribe":                        {},
	"don't forget to subscribe":               {},
	"like and subscribe":                      {},
	"subscribe to my channel":                 {},
	"subtitles by the amara.org community":    {},
	"thanks for watching!":                    {},
	"bye.":                                    {},
	"bye bye":                                 {},
	"goodbye":                                 {},
	"thank you very much":                     {},
	"thank you so much for watching":          {},
	"i'll see you in the next video":          {},
	"see you in the next video":               {},
	"see you next time":                       {},
	"okay bye":                                {},
	"music":                                   {},
	"[music]":                                 {},
	"[applause]":                              {},
	"(music)":                                 {},
	"silence":                                 {},
	"[silence]":                               {},
	"[blank_audio]":                           {},
	"you":                                     {},
	"the end":                                 {},
	"for more information visit":              {},
	"www.youtube.com":                         {},
	"transcription by":                        {},
	"translation by":                          {},
	"captions by":                             {},
	"mbc 뉴스 이덕영입니다":                            {},
	"thank you for listening":                 {},
	"that's it for today":                     {},
	"i hope you enjoyed this video":           {},
	"please like and subscribe to my channel": {},
	"stay tuned":                              {},
	"more to come":                            {},
	"to be continued":                         {},
	"thanks":                                  {},
	"okay":                                    {},
	"um":                                      {},
}

// MinTextLength is the minimum number of non-whitespace characters a
// transcription must have to be considered real speech.
const MinTextLength = 3

// PromptEchoMinLength is the minimum length of new text before it is
// checked against last_context_text for a prompt echo.
const PromptEchoMinLength = 10

// trigramRepeatThreshold: a 3-word window occurring this many times or more
// rejects the text as repetitive.
const trigramRepeatThreshold = 3

// AcceptSegment applies rule 1 (segment confidence drop) used in buffered
// mode's per-segment filtered view: a segment is dropped if it is both
// very likely non-speech and low-confidence. Segments whose probabilities
// are unavailable (reported as -1) are never dropped by this rule.
func AcceptSegment(seg transcriber.Segment) bool {
	if seg.NoSpeechProb < 0 || seg.AvgTokenProb < 0 {
		return true
	}
	if seg.NoSpeechProb > 0.60 && seg.AvgTokenProb < 0.30 {
		return false
	}
	return true
}

// Accept applies rules 2-4 (length, literal phrase match, repetitive
// trigram) to already-joined text. lastContextText is only consulted by
// AcceptContinuous (rule 5), which continuous mode calls in addition to
// this.
func Accept(text string) bool {
	trimmed := strings.TrimSpace(text)
	if nonWhitespaceLen(trimmed) < MinTextLength {
		return false
	}

	lower := strings.ToLower(trimmed)
	if _, known := parrotPhrases[lower]; known {
		return false
	}
	if _, known := parrotPhrases[strings.TrimRight(lower, ".!?,")]; known {
		return false
	}

	if hasRepeatedTrigram(lower) {
		return false
	}

	return true
}

// AcceptContinuous applies the full rule set including rule 5 (prompt
// echo), used in continuous mode.
func AcceptContinuous(text, lastContextText string) bool {
	if !Accept(text) {
		return false
	}
	trimmed := strings.TrimSpace(text)
	if len(trimmed) >= PromptEchoMinLength {
		if strings.Contains(strings.ToLower(lastContextText), strings.ToLower(trimmed)) {
			return false
		}
	}
	return true
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !isSpace(r) {
			n++
		}
	}
	return n
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func hasRepeatedTrigram(lower string) bool {
	words := strings.Fields(lower)
	if len(words) < 3 {
		return false
	}
	counts := make(map[string]int)
	for i := 0; i+3 <= len(words); i++ {
		key := strings.Join(words[i:i+3], " ")
		counts[key]++
		if counts[key] >= trigramRepeatThreshold {
			return true
		}
	}
	return false
}
