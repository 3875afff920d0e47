package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorFlagsSilentMicrophone(t *testing.T) {
	source := newFakeSource()
	source.setEnergy(0) // enabled but flat: the OS-mute symptom
	transport := &fakeTransport{channel: newFakeChannel()}

	m := NewMonitor(transport, source, 5*time.Millisecond)
	m.Start()
	defer m.Stop()

	go func() {
		for i := 0; i < 200; i++ {
			transport.bumpPackets(10)
			time.Sleep(2 * time.Millisecond)
		}
	}()

	require.Eventually(t, func() bool { return m.LastReport().Silent },
		2*time.Second, 5*time.Millisecond)
}

func TestMonitorStaysQuietWithRealAudio(t *testing.T) {
	source := newFakeSource()
	source.setEnergy(0.2)
	transport := &fakeTransport{channel: newFakeChannel()}

	m := NewMonitor(transport, source, 5*time.Millisecond)
	m.Start()
	defer m.Stop()

	for i := 0; i < 10; i++ {
		transport.bumpPackets(10)
		time.Sleep(5 * time.Millisecond)
	}
	assert.False(t, m.LastReport().Silent)
}

func TestMonitorIgnoresStalledSender(t *testing.T) {
	// No packets flowing: silence is expected, not a mute symptom.
	source := newFakeSource()
	source.setEnergy(0)
	transport := &fakeTransport{channel: newFakeChannel()}

	m := NewMonitor(transport, source, 5*time.Millisecond)
	m.Start()
	defer m.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, m.LastReport().Silent)
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	m := NewMonitor(&fakeTransport{channel: newFakeChannel()}, newFakeSource(), time.Millisecond)
	m.Start()
	m.Stop()
	m.Stop()
}
