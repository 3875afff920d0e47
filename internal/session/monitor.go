package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/barkeep/voicelink/internal/core"
)

// energyFloor is the RMS level below which a capture window counts as
// silence. Real rooms carry noise well above this.
const energyFloor = 1e-4

// silentSamples is how many consecutive quiet samples trigger a report.
const silentSamples = 3

// Report is one health sample of the outbound audio path.
type Report struct {
	At          time.Time
	PacketsSent uint32
	Energy      float64
	Silent      bool
}

// Monitor watches for the "packets flowing but carrying silence" failure:
// the track is enabled yet the capture energy is flat, which usually means
// an OS-level mute the audio APIs never surfaced. Diagnostic only: it logs
// and never touches session state.
type Monitor struct {
	transport core.Transport
	source    core.AudioSource
	interval  time.Duration

	stop chan struct{}
	once sync.Once

	mu   sync.Mutex
	last Report
}

func NewMonitor(transport core.Transport, source core.AudioSource, interval time.Duration) *Monitor {
	return &Monitor{
		transport: transport,
		source:    source,
		interval:  interval,
		stop:      make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var lastPackets uint32
	quiet := 0
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			stats := m.transport.Stats()
			sending := stats.AudioPacketsSent > lastPackets
			lastPackets = stats.AudioPacketsSent
			energy := m.source.Energy()

			if m.source.Enabled() && sending && energy < energyFloor {
				quiet++
			} else {
				quiet = 0
			}
			silent := quiet >= silentSamples
			if quiet == silentSamples {
				log.Warn().
					Str("module", "session.monitor").
					Uint32("packets_sent", stats.AudioPacketsSent).
					Float64("energy", energy).
					Msg("microphone sends packets but carries silence (OS-level mute?)")
			}

			m.mu.Lock()
			m.last = Report{
				At:          time.Now(),
				PacketsSent: stats.AudioPacketsSent,
				Energy:      energy,
				Silent:      silent,
			}
			m.mu.Unlock()
		}
	}
}

func (m *Monitor) LastReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stop) })
}
