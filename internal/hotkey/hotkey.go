// Package hotkey adapts golang.design/x/hotkey to the pipeline's InputHook
// seam: global primary/send key registration with autorepeat dedup.
package hotkey

import (
	"sync"
	"sync/atomic"

	"golang.design/x/hotkey"

	"github.com/murmurhq/murmur/internal/errors"
)

// KeyCode identifies a physical key the OS delivers hotkey events for.
type KeyCode = hotkey.Key

// Hook registers a primary talk key and an optional send ("talk + send")
// key, deduplicating autorepeat so a key-down while already down is
// ignored, and so key-up reports the key that was actually held down most
// recently.
type Hook struct {
	mu      sync.Mutex
	primary *hotkey.Hotkey
	send    *hotkey.Hotkey

	down     atomic.Bool
	downWasSend atomic.Bool

	onDown func(isSend bool)
	onUp   func(isSend bool)

	stopCh chan struct{}
}

// New creates a Hook. Callbacks are invoked on the hotkey library's own
// goroutine; callers should not block inside them for long.
func New(onDown func(isSend bool), onUp func(isSend bool)) *Hook {
	return &Hook{onDown: onDown, onUp: onUp}
}

// SetKeyCodes configures the primary and send key codes. Must be called
// before Start.
func (h *Hook) SetKeyCodes(primary, send KeyCode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.primary = hotkey.New(nil, primary)
	if send != 0 {
		h.send = hotkey.New(nil, send)
	}
}

// Start registers the hotkeys with the OS and begins listening. Returns a
// HotkeyPermissionDenied AppError if registration is refused (commonly an
// OS accessibility/input-monitoring permission prompt).
func (h *Hook) Start() error {
	h.mu.Lock()
	primary, send := h.primary, h.send
	h.mu.Unlock()

	if primary == nil {
		return errors.New(errors.InvalidArgument, "no primary key configured")
	}
	if err := primary.Register(); err != nil {
		return errors.Wrap(err, errors.HotkeyPermissionDenied, "register primary hotkey")
	}
	if send != nil {
		if err := send.Register(); err != nil {
			primary.Unregister()
			return errors.Wrap(err, errors.HotkeyPermissionDenied, "register send hotkey")
		}
	}

	h.stopCh = make(chan struct{})
	go h.listen(primary, send)
	return nil
}

func (h *Hook) listen(primary, send *hotkey.Hotkey) {
	for {
		select {
		case <-h.stopCh:
			return
		case <-primary.Keydown():
			h.handleDown(false)
		case <-primary.Keyup():
			h.handleUp(false)
		case <-keydownOrNever(send):
			h.handleDown(true)
		case <-keyupOrNever(send):
			h.handleUp(true)
		}
	}
}

func keydownOrNever(hk *hotkey.Hotkey) <-chan hotkey.Event {
	if hk == nil {
		return nil
	}
	return hk.Keydown()
}

func keyupOrNever(hk *hotkey.Hotkey) <-chan hotkey.Event {
	if hk == nil {
		return nil
	}
	return hk.Keyup()
}

// handleDown ignores a key-down while a key is already held, and remembers
// which key (primary or send) triggered this press for the matching
// key-up.
func (h *Hook) handleDown(isSend bool) {
	if !h.down.CompareAndSwap(false, true) {
		return // autorepeat: already down, ignore
	}
	h.downWasSend.Store(isSend)
	if h.onDown != nil {
		h.onDown(isSend)
	}
}

// handleUp reflects the key used at the most recent key-down, regardless
// of which registered hotkey's channel actually fired the up event (OSes
// can deliver key-up on either registration depending on modifier state).
func (h *Hook) handleUp(_ bool) {
	if !h.down.CompareAndSwap(true, false) {
		return
	}
	wasSend := h.downWasSend.Load()
	if h.onUp != nil {
		h.onUp(wasSend)
	}
}

// Stop unregisters the hotkeys and stops listening.
func (h *Hook) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh != nil {
		close(h.stopCh)
		h.stopCh = nil
	}
	if h.primary != nil {
		h.primary.Unregister()
	}
	if h.send != nil {
		h.send.Unregister()
	}
}
