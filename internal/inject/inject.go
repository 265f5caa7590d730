// Package inject implements the TextInjector contract: type simulated
// keystrokes or paste via clipboard, and synthesize a Return keystroke.
package inject

import (
	"time"

	"github.com/atotto/clipboard"
	"github.com/go-vgo/robotgo"

	"github.com/murmurhq/murmur/internal/errors"
)

// Mode selects how text reaches the focused application.
type Mode int

const (
	ModeType Mode = iota
	ModePaste
)

const (
	minTypeSpeedMs   = 1
	pasteRestoreDelay = 500 * time.Millisecond
	returnPreDelay    = 50 * time.Millisecond
	returnIntraGap    = 10 * time.Millisecond
)

// Injector dispatches text to the focused application's input.
type Injector struct {
	Mode             Mode
	TypeSpeedMs      int
	RestoreClipboard bool
}

// New creates an Injector with the given mode and per-character typing
// delay (clamped to a minimum of 1ms).
func New(mode Mode, typeSpeedMs int, restoreClipboard bool) *Injector {
	if typeSpeedMs < minTypeSpeedMs {
		typeSpeedMs = minTypeSpeedMs
	}
	return &Injector{Mode: mode, TypeSpeedMs: typeSpeedMs, RestoreClipboard: restoreClipboard}
}

// Inject dispatches text according to Mode. Failures are wrapped as
// InjectionFailed and are the caller's responsibility to log and swallow
// per the pipeline's error policy — Inject itself never panics.
func (inj *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}
	switch inj.Mode {
	case ModePaste:
		return inj.paste(text)
	default:
		return inj.typeText(text)
	}
}

// typeText emits synthetic key events carrying each character's Unicode
// payload, empty modifier mask, paced TypeSpeedMs apart.
func (inj *Injector) typeText(text string) error {
	for _, r := range text {
		if err := safeRobotgo(func() error {
			robotgo.TypeStr(string(r))
			return nil
		}); err != nil {
			return errors.Wrap(err, errors.InjectionFailed, "type character")
		}
		time.Sleep(time.Duration(inj.TypeSpeedMs) * time.Millisecond)
	}
	return nil
}

// paste saves the current clipboard (if RestoreClipboard), sets the
// clipboard to text, emits the platform paste chord, and restores the
// prior clipboard contents after a fixed delay.
func (inj *Injector) paste(text string) error {
	var saved string
	haveSaved := false
	if inj.RestoreClipboard {
		if prior, err := clipboard.ReadAll(); err == nil {
			saved = prior
			haveSaved = true
		}
	}

	if err := clipboard.WriteAll(text); err != nil {
		return errors.Wrap(err, errors.InjectionFailed, "set clipboard")
	}

	if err := safeRobotgo(func() error {
		robotgo.KeyTap("v", pasteModifier())
		return nil
	}); err != nil {
		return errors.Wrap(err, errors.InjectionFailed, "paste chord")
	}

	if haveSaved {
		go func() {
			time.Sleep(pasteRestoreDelay)
			_ = clipboard.WriteAll(saved)
		}()
	}
	return nil
}

// PressReturn synthesizes a Return key press-and-release after a 50ms
// pre-delay with a small intra-press gap.
func (inj *Injector) PressReturn() error {
	time.Sleep(returnPreDelay)
	if err := safeRobotgo(func() error {
		robotgo.KeyTap("enter")
		return nil
	}); err != nil {
		return errors.Wrap(err, errors.InjectionFailed, "press return")
	}
	time.Sleep(returnIntraGap)
	return nil
}

// pasteModifier returns the platform paste chord's modifier key.
func pasteModifier() string {
	return platformPasteModifier
}

// safeRobotgo recovers a panic from robotgo (which panics rather than
// returning an error on some platform failures) and turns it into a plain
// error so Inject/PressReturn never panic across the pipeline boundary.
func safeRobotgo(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.InjectionFailed, "robotgo panicked: %v", r)
		}
	}()
	return fn()
}
