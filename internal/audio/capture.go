// Package audio opens the input device and drives samples through the VAD
// into a RingBuffer.
package audio

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/murmurhq/murmur/internal/errors"
	"github.com/murmurhq/murmur/internal/ring"
	"github.com/murmurhq/murmur/internal/vad"
)

// Capture owns the device handle, the capture thread, the VAD instance, and
// the RingBuffer. It is the exclusive writer of VAD state.
type Capture struct {
	mu sync.Mutex

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	prepared bool

	rate       uint32
	gain       float64
	deviceName string

	detector *vad.Detector
	buf      *ring.Buffer

	collecting atomic.Bool
	level      atomic.Uint64 // math.Float64bits of the live RMS level, clamped [0,1]
}

// New builds a Capture with the given native sample rate (Hz), VAD config,
// and input gain (clamped to [0.5, 3.0] per spec).
func New(rate int, vadCfg vad.Config, gain float64) *Capture {
	if gain < 0.5 {
		gain = 0.5
	}
	if gain > 3.0 {
		gain = 3.0
	}
	return &Capture{
		rate:     uint32(rate),
		gain:     gain,
		detector: vad.New(vadCfg, rate),
		buf:      ring.New(rate * 2),
	}
}

// SetVadConfig swaps the VAD configuration in place.
func (c *Capture) SetVadConfig(cfg vad.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detector.SetConfig(cfg)
}

// AudioLevel returns the most recent per-frame RMS, clamped to [0, 1].
func (c *Capture) AudioLevel() float64 {
	return math.Float64frombits(c.level.Load())
}

// Prepare opens the first enumerated capture device and starts the OS audio
// callback. It is idempotent: calling it again while already prepared is a
// no-op. Returns a NoInputDevice AppError if no device is available.
func (c *Capture) Prepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prepared {
		return nil
	}

	if c.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return errors.Wrap(err, errors.NoInputDevice, "initialize audio context")
		}
		c.malgoCtx = ctx
	}

	devices, err := c.malgoCtx.Devices(malgo.Capture)
	if err != nil || len(devices) == 0 {
		return errors.Wrap(err, errors.NoInputDevice, "enumerate capture devices")
	}

	info := devices[0]
	c.deviceName = info.Name()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = c.rate
	deviceConfig.Capture.DeviceID = info.ID.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pSamples []byte, frameCount uint32) {
			c.onFrame(pSamples)
		},
	}

	device, err := malgo.InitDevice(c.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return errors.Wrap(err, errors.NoInputDevice, "open capture device "+info.Name())
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return errors.Wrap(err, errors.NoInputDevice, "start capture device "+info.Name())
	}

	c.device = device
	c.prepared = true
	slog.Info("audio capture prepared", "device", info.Name(), "rate", c.rate)
	return nil
}

// onFrame is the malgo data callback. It must never block or allocate a
// large buffer: it computes the level, optionally applies gain, and — only
// while collecting — runs the frame through the VAD and appends the result
// to the RingBuffer.
func (c *Capture) onFrame(raw []byte) {
	samples := bytesToFloat32(raw)
	if len(samples) == 0 {
		return
	}

	level := rms(samples)
	if level > 1 {
		level = 1
	}
	if level < 0 {
		level = 0
	}
	c.level.Store(math.Float64bits(level))

	if c.gain != 1.0 {
		for i := range samples {
			v := samples[i] * float32(c.gain)
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			samples[i] = v
		}
	}

	if !c.collecting.Load() {
		return
	}

	c.mu.Lock()
	emitted := c.detector.Process(samples)
	c.mu.Unlock()
	if len(emitted) > 0 {
		c.buf.Append(emitted)
	}
}

// StartRecording prepares the device if needed, resets the VAD, drains any
// stale buffer contents, and begins collecting.
func (c *Capture) StartRecording() error {
	if err := c.Prepare(); err != nil {
		return err
	}
	c.mu.Lock()
	c.detector.Reset()
	c.mu.Unlock()
	c.buf.Reset()
	c.collecting.Store(true)
	return nil
}

// StopRecording stops collecting, drains the buffer, resets the VAD, and
// resamples the drained samples to 16 kHz.
func (c *Capture) StopRecording() []float32 {
	c.collecting.Store(false)
	raw := c.buf.Drain()
	c.mu.Lock()
	c.detector.Reset()
	rate := c.rate
	c.mu.Unlock()
	return Resample(raw, int(rate), 16000)
}

// Drain drains and resamples whatever has accumulated so far without
// stopping collection or touching VAD state. Used by the continuous drive
// loop's monitor tick, which drains on pause/buffer-full while the key is
// still held.
func (c *Capture) Drain() []float32 {
	raw := c.buf.Drain()
	c.mu.Lock()
	rate := c.rate
	c.mu.Unlock()
	return Resample(raw, int(rate), 16000)
}

// IsSpeaking reports the VAD's current is_speaking flag.
func (c *Capture) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detector.IsSpeaking()
}

// BufferedSampleCount returns the number of hardware-rate samples currently
// sitting in the RingBuffer, without draining it.
func (c *Capture) BufferedSampleCount() int {
	return c.buf.Count()
}

// HardwareRate returns the native capture rate in Hz.
func (c *Capture) HardwareRate() int {
	return int(c.rate)
}

// Release stops the capture thread and closes the device. Used when "keep
// mic warm" is off.
func (c *Capture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		if c.device.IsStarted() {
			_ = c.device.Stop()
		}
		c.device.Uninit()
		c.device = nil
	}
	if c.malgoCtx != nil {
		_ = c.malgoCtx.Uninit()
		c.malgoCtx.Free()
		c.malgoCtx = nil
	}
	c.prepared = false
}

// Resample converts samples from srcRate to dstRate using piecewise-linear
// interpolation. Output length equals floor(len(samples) * dstRate /
// srcRate); the first output sample equals the first input sample.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if len(samples) == 0 || srcRate == dstRate {
		return samples
	}
	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) * float64(dstRate) / float64(srcRate))
	if outLen <= 0 {
		return nil
	}
	out := make([]float32, outLen)
	lastIdx := len(samples) - 1
	for i := 0; i < outLen; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		if idx >= lastIdx {
			out[i] = samples[lastIdx]
			continue
		}
		a, b := samples[idx], samples[idx+1]
		out[i] = a + float32(frac)*(b-a)
	}
	return out
}

const float32ByteSize = 4

func bytesToFloat32(b []byte) []float32 {
	if len(b)%float32ByteSize != 0 {
		return nil
	}
	samples := make([]float32, len(b)/float32ByteSize)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(b[i*float32ByteSize:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
