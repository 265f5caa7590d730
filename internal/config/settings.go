package config

import (
	"fmt"
	"os"

	"golang.design/x/hotkey"
	"gopkg.in/yaml.v3"

	"github.com/murmurhq/murmur/internal/errors"
	"github.com/murmurhq/murmur/internal/inject"
	"github.com/murmurhq/murmur/internal/pipeline"
	"github.com/murmurhq/murmur/internal/transcriber"
	"github.com/murmurhq/murmur/internal/vad"
)

// Settings is the single persisted blob: VAD thresholds, sampling
// strategy, GPU flag, language, initial prompt, output mode, hotkeys,
// transcription mode, release/return delays, keep-mic-warm, and typing
// speed. Unknown keys are ignored on load; defaults fill gaps (callers
// should start from Default() and Unmarshal over it).
type Settings struct {
	Vad struct {
		SpeechThreshold  float64 `yaml:"speech_threshold"`
		SilenceThreshold float64 `yaml:"silence_threshold"`
		MinSpeechMs      int     `yaml:"min_speech_ms"`
		MinSilenceMs     int     `yaml:"min_silence_ms"`
		PrePadMs         int     `yaml:"pre_pad_ms"`
		PostPadMs        int     `yaml:"post_pad_ms"`
		Enabled          bool    `yaml:"enabled"`
	} `yaml:"vad"`

	Sampling struct {
		Strategy string `yaml:"strategy"` // "greedy" or "beam"
		BestOf   int    `yaml:"best_of"`
		BeamSize int    `yaml:"beam_size"`
	} `yaml:"sampling"`

	GPU           bool   `yaml:"gpu"`
	Language      string `yaml:"language"`
	InitialPrompt string `yaml:"initial_prompt"`
	Threads       int    `yaml:"threads"`

	OutputMode string `yaml:"output_mode"` // "type" or "paste"
	TypeSpeedMs int   `yaml:"type_speed_ms"`
	RestoreClipboard bool `yaml:"restore_clipboard"`

	Hotkeys struct {
		Primary string `yaml:"primary"`
		Send    string `yaml:"send"`
	} `yaml:"hotkeys"`

	TranscriptionMode string  `yaml:"transcription_mode"` // "buffered" or "continuous"
	ReleaseDelayMs    int     `yaml:"release_delay_ms"`
	SendReturnDelayMs int     `yaml:"send_return_delay_ms"`
	KeepMicWarm       bool    `yaml:"keep_mic_warm"`
	CaptureRateHz     int     `yaml:"capture_rate_hz"`
	Gain              float64 `yaml:"gain"`
}

// Default returns the built-in tuning values from the component specs.
func Default() Settings {
	var s Settings
	s.Vad.SpeechThreshold = 0.02
	s.Vad.SilenceThreshold = 0.01
	s.Vad.MinSpeechMs = 60
	s.Vad.MinSilenceMs = 600
	s.Vad.PrePadMs = 200
	s.Vad.PostPadMs = 250
	s.Vad.Enabled = true

	s.Sampling.Strategy = "greedy"
	s.Sampling.BestOf = 1
	s.Sampling.BeamSize = 5

	s.Language = "en"
	s.Threads = 4

	s.OutputMode = "type"
	s.TypeSpeedMs = 10
	s.RestoreClipboard = true

	s.Hotkeys.Primary = "F13"
	s.Hotkeys.Send = "F14"

	s.TranscriptionMode = "buffered"
	s.ReleaseDelayMs = 300
	s.SendReturnDelayMs = 200
	s.CaptureRateHz = 48000
	s.Gain = 1.0
	return s
}

// LoadSettings reads Settings from path, starting from Default() so any
// keys missing or unrecognized in the file fall back to built-in tuning
// rather than zero values.
func LoadSettings(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, errors.Wrap(err, errors.Internal, "read settings file "+path)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, errors.Wrap(err, errors.InvalidArgument, "parse settings file "+path)
	}
	return s, nil
}

// SaveSettings writes Settings to path as YAML.
func SaveSettings(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.Internal, "marshal settings")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.Internal, "write settings file "+path)
	}
	return nil
}

// VadConfig derives a vad.Config from Settings.
func (s Settings) VadConfig() vad.Config {
	return vad.Config{
		SpeechThreshold:  s.Vad.SpeechThreshold,
		SilenceThreshold: s.Vad.SilenceThreshold,
		MinSpeechMs:      s.Vad.MinSpeechMs,
		MinSilenceMs:     s.Vad.MinSilenceMs,
		PrePadMs:         s.Vad.PrePadMs,
		PostPadMs:        s.Vad.PostPadMs,
		Enabled:          s.Vad.Enabled,
	}
}

// TranscriberSettings derives transcriber.Settings, mapping the sampling
// strategy's tagged variant onto whichever of Greedy/Beam was selected.
func (s Settings) TranscriberSettings() transcriber.Settings {
	strategy := transcriber.SamplingStrategy{}
	if s.Sampling.Strategy == "beam" {
		strategy.Beam = &transcriber.BeamStrategy{BeamSize: s.Sampling.BeamSize}
	} else {
		strategy.Greedy = &transcriber.GreedyStrategy{BestOf: s.Sampling.BestOf}
	}
	return transcriber.Settings{
		Language:      s.Language,
		InitialPrompt: s.InitialPrompt,
		UseGPU:        s.GPU,
		Threads:       s.Threads,
		Sampling:      strategy,
	}
}

// PipelineConfig derives a pipeline.Config from Settings.
func (s Settings) PipelineConfig() pipeline.Config {
	drive := pipeline.Buffered
	if s.TranscriptionMode == "continuous" {
		drive = pipeline.Continuous
	}
	return pipeline.Config{
		Drive:             drive,
		Vad:               s.VadConfig(),
		CaptureRate:       s.CaptureRateHz,
		Gain:              s.Gain,
		ReleaseDelayMs:    s.ReleaseDelayMs,
		SendReturnDelayMs: s.SendReturnDelayMs,
		KeepMicWarm:       s.KeepMicWarm,
	}
}

// InjectorMode derives the inject.Mode Settings selects.
func (s Settings) InjectorMode() inject.Mode {
	if s.OutputMode == "paste" {
		return inject.ModePaste
	}
	return inject.ModeType
}

// NewInjector builds an inject.Injector from Settings.
func (s Settings) NewInjector() *inject.Injector {
	return inject.New(s.InjectorMode(), s.TypeSpeedMs, s.RestoreClipboard)
}

// HotkeyCodes parses the configured primary/send key names into hotkey.Key
// values. An empty Send name is returned as 0 (no send key configured).
func (s Settings) HotkeyCodes() (primary, send hotkey.Key, err error) {
	primary, err = parseKey(s.Hotkeys.Primary)
	if err != nil {
		return 0, 0, err
	}
	if s.Hotkeys.Send == "" {
		return primary, 0, nil
	}
	send, err = parseKey(s.Hotkeys.Send)
	if err != nil {
		return 0, 0, err
	}
	return primary, send, nil
}

var keyByName = map[string]hotkey.Key{
	"F1": hotkey.KeyF1, "F2": hotkey.KeyF2, "F3": hotkey.KeyF3, "F4": hotkey.KeyF4,
	"F5": hotkey.KeyF5, "F6": hotkey.KeyF6, "F7": hotkey.KeyF7, "F8": hotkey.KeyF8,
	"F9": hotkey.KeyF9, "F10": hotkey.KeyF10, "F11": hotkey.KeyF11, "F12": hotkey.KeyF12,
	"F13": hotkey.KeyF13, "F14": hotkey.KeyF14, "F15": hotkey.KeyF15, "F16": hotkey.KeyF16,
	"F17": hotkey.KeyF17, "F18": hotkey.KeyF18, "F19": hotkey.KeyF19, "F20": hotkey.KeyF20,
	"Space": hotkey.KeySpace,
	"A": hotkey.KeyA, "B": hotkey.KeyB, "C": hotkey.KeyC, "D": hotkey.KeyD, "E": hotkey.KeyE,
	"F": hotkey.KeyF, "G": hotkey.KeyG, "H": hotkey.KeyH, "I": hotkey.KeyI, "J": hotkey.KeyJ,
	"K": hotkey.KeyK, "L": hotkey.KeyL, "M": hotkey.KeyM, "N": hotkey.KeyN, "O": hotkey.KeyO,
	"P": hotkey.KeyP, "Q": hotkey.KeyQ, "R": hotkey.KeyR, "S": hotkey.KeyS, "T": hotkey.KeyT,
	"U": hotkey.KeyU, "V": hotkey.KeyV, "W": hotkey.KeyW, "X": hotkey.KeyX, "Y": hotkey.KeyY,
	"Z": hotkey.KeyZ,
}

func parseKey(name string) (hotkey.Key, error) {
	if k, ok := keyByName[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown hotkey name %q", name)
}
