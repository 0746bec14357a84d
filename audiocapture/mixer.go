package audiocapture

import "sync"

// Gain staging for the two sources. The remote party's voice is typically
// quieter than local mic pickup and is the primary transcription target, so
// the system source gets a fixed boost.
const (
	UnityGain          = 1.0
	DefaultSystemBoost = 1.7

	// DefaultBlockSize is the tap size in samples; one block becomes one
	// transport frame.
	DefaultBlockSize = 4096
)

// maxPendingBlocks bounds the system FIFO if the microphone clock stalls.
const maxPendingBlocks = 10

// Mixer sums the microphone and system sources into one mono stream and
// emits fixed-size blocks of the mixed signal.
//
// The microphone is the clock: each batch of mic samples pulls the same
// number of system samples from a FIFO (zero-filled when the FIFO runs
// short, which also covers mic-only sessions) and the sum is accumulated
// into the outgoing block. Lifecycle is bound 1:1 to the session.
type Mixer struct {
	mu          sync.Mutex
	systemBoost float32
	blockSize   int
	system      []float32 // pending system samples
	block       []float32 // accumulating mixed block
	onBlock     func([]float32)
}

// NewMixer creates a mixer emitting blockSize-sample blocks to onBlock.
// onBlock is invoked on the microphone reader's goroutine and receives a
// fresh slice each time.
func NewMixer(blockSize int, systemBoost float64, onBlock func([]float32)) *Mixer {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if systemBoost <= 0 {
		systemBoost = DefaultSystemBoost
	}
	return &Mixer{
		systemBoost: float32(systemBoost),
		blockSize:   blockSize,
		block:       make([]float32, 0, blockSize),
		onBlock:     onBlock,
	}
}

// PushMic feeds microphone samples and advances the mix. Full blocks are
// emitted before PushMic returns.
func (m *Mixer) PushMic(samples []float32) {
	var full [][]float32

	m.mu.Lock()
	for _, s := range samples {
		v := s * UnityGain
		if len(m.system) > 0 {
			v += m.system[0] * m.systemBoost
			m.system = m.system[1:]
		}
		m.block = append(m.block, v)
		if len(m.block) == m.blockSize {
			out := make([]float32, m.blockSize)
			copy(out, m.block)
			full = append(full, out)
			m.block = m.block[:0]
		}
	}
	m.mu.Unlock()

	for _, b := range full {
		m.onBlock(b)
	}
}

// PushSystem queues system-source samples for mixing. Arrival cadence is
// independent of the mic; excess backlog beyond a bounded window is dropped
// oldest-first.
func (m *Mixer) PushSystem(samples []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.system = append(m.system, samples...)
	if max := m.blockSize * maxPendingBlocks; len(m.system) > max {
		m.system = m.system[len(m.system)-max:]
	}
}

// Pending returns the number of queued system samples. Diagnostic only.
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.system)
}

// Reset discards buffered state. Called on session teardown; safe on an
// already-reset mixer.
func (m *Mixer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = nil
	m.block = m.block[:0]
}
