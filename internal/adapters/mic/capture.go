// Package mic implements core.AudioSource with a malgo capture device
// feeding a local PCMU track. Capture is audio-only by construction; there
// is no video path to disable.
package mic

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/barkeep/voicelink/internal/core"
)

const periodMillis = 20

type Config struct {
	SampleRate int
	Channels   int
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 8000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	return c
}

// Acquirer opens capture devices. One Acquire per session attempt.
type Acquirer struct {
	cfg Config
}

func NewAcquirer(cfg Config) *Acquirer {
	return &Acquirer{cfg: cfg.withDefaults()}
}

// Acquire requests an audio-only capture stream and verifies the device
// actually started. Echo cancellation, noise suppression and gain control
// are left to the OS capture pipeline (best-effort).
func (a *Acquirer) Acquire(ctx context.Context) (core.AudioSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.Fault(core.FaultDevice, "acquire canceled", err)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return nil, core.Fault(core.FaultDevice, "init audio context", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypePCMU,
			ClockRate: uint32(a.cfg.SampleRate),
			Channels:  uint16(a.cfg.Channels),
		},
		"audio", "voicelink-mic",
	)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, core.Fault(core.FaultDevice, "create local track", err)
	}

	src := &Capture{
		mctx:   mctx,
		track:  track,
		events: make(chan core.AudioEvent, 4),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(a.cfg.Channels)
	deviceConfig.SampleRate = uint32(a.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = periodMillis

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pcm []byte, _ uint32) {
			src.onSamples(pcm)
		},
		Stop: func() {
			src.onDeviceStopped()
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, classifyDeviceErr("init capture device", err)
	}
	src.dev = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, classifyDeviceErr("start capture device", err)
	}
	if !dev.IsStarted() {
		src.Close()
		return nil, core.Fault(core.FaultDevice, "capture device did not start", nil)
	}
	src.enabled.Store(true)

	log.Info().Str("module", "mic").
		Int("sample_rate", a.cfg.SampleRate).
		Int("channels", a.cfg.Channels).
		Msg("capture started")
	return src, nil
}

// classifyDeviceErr separates "the OS said no" from "there is no device".
func classifyDeviceErr(msg string, err error) error {
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "access denied") {
		return core.Fault(core.FaultPermission, msg, err)
	}
	return core.Fault(core.FaultDevice, msg, err)
}

// Capture is a live microphone stream. Close releases the device exactly
// once regardless of how many paths reach it.
type Capture struct {
	mctx  *malgo.AllocatedContext
	dev   *malgo.Device
	track *webrtc.TrackLocalStaticSample

	enabled   atomic.Bool
	energy    atomic.Uint64 // float64 bits
	events    chan core.AudioEvent
	closeOnce sync.Once
	closing   atomic.Bool
}

func (c *Capture) onSamples(pcm []byte) {
	c.energy.Store(math.Float64bits(rms(pcm)))

	sample := media.Sample{
		Data:     encodeMuLaw(pcm),
		Duration: periodMillis * time.Millisecond,
	}
	if err := c.track.WriteSample(sample); err != nil {
		log.Warn().Err(err).Str("module", "mic").Msg("write sample")
	}
}

func (c *Capture) onDeviceStopped() {
	c.enabled.Store(false)
	if c.closing.Load() {
		return
	}
	select {
	case c.events <- core.AudioEnded:
	default:
	}
}

func (c *Capture) Track() webrtc.TrackLocal { return c.track }

func (c *Capture) Enabled() bool { return c.enabled.Load() }

func (c *Capture) Energy() float64 {
	return math.Float64frombits(c.energy.Load())
}

func (c *Capture) Events() <-chan core.AudioEvent { return c.events }

func (c *Capture) Close() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.enabled.Store(false)
		if c.dev != nil {
			c.dev.Uninit()
		}
		if c.mctx != nil {
			if err := c.mctx.Uninit(); err != nil {
				log.Error().Err(err).Str("module", "mic").Msg("context uninit")
			}
			c.mctx.Free()
		}
		close(c.events)
		log.Info().Str("module", "mic").Msg("capture released")
	})
}

// rms computes the normalized root-mean-square of little-endian S16 PCM.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(pcm[2*i]) | int16(pcm[2*i+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / 32768
}

var _ core.AudioSource = (*Capture)(nil)
