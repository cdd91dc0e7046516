// Package providertest implements a configurable in-memory
// provider.Bridge for exercising the codec state machine without a
// real network fetch or native decoder — the same role
// References/orion-prototipe/internal/stream's MockStream plays for
// stream-capture's StreamProvider, adapted from continuous frame
// generation to one-shot request/callback delivery.
package providertest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/orion-imagecodec/internal/imagetypes"
	"github.com/e7canasta/orion-imagecodec/internal/provider"
)

// DecodeFunc decides what a Decode call returns for a given image and
// frame index. The default (nil) behavior is a decode failure.
type DecodeFunc func(image *imagetypes.PlatformImage, frameIndex int) (*imagetypes.Bitmap, error)

// Mock is a test double for provider.Bridge. Zero value is usable;
// configure fields before first use. All exported methods are safe
// for concurrent use.
type Mock struct {
	mu sync.Mutex

	// AutoDeliverImage, when non-nil, is delivered automatically (in a
	// new goroutine, after AutoDeliverDelay) to every Request's
	// callback. Leave nil to take manual control via Deliver.
	AutoDeliverImage *imagetypes.PlatformImage
	AutoDeliverDelay time.Duration

	// DecodeFn implements the provider's synchronous decode step. If
	// nil, every Decode call fails (returns a nil-pixels Bitmap).
	DecodeFn DecodeFunc

	ShouldEvaluate bool
	EvalCPU        uint32
	EvalMem        uint64

	pending map[uint32]pendingRequest

	requestCount int
	cancelCount  int
	cancels      map[uint32]int

	releaseCount    int
	releasedHandles []uintptr

	logs []logLine
}

type pendingRequest struct {
	info     imagetypes.RequestInfo
	callback provider.FetchCallback
}

type logLine struct {
	level slog.Level
	msg   string
}

// NewMock constructs a ready-to-use Mock provider.
func NewMock() *Mock {
	return &Mock{
		pending: make(map[uint32]pendingRequest),
		cancels: make(map[uint32]int),
	}
}

// Request records the pending callback under id and, if
// AutoDeliverImage is set, delivers it asynchronously.
func (m *Mock) Request(id uint32, info imagetypes.RequestInfo, callback provider.FetchCallback) {
	m.mu.Lock()
	m.requestCount++
	m.pending[id] = pendingRequest{info: info, callback: callback}
	auto := m.AutoDeliverImage
	delay := m.AutoDeliverDelay
	m.mu.Unlock()

	if auto != nil {
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			m.Deliver(id, auto)
		}()
	}
}

// Deliver simulates the provider's async callback firing for id, on
// whatever goroutine calls Deliver (matching "callback invoked on any
// thread"). Safe to call even if id was never requested (a no-op
// callback path outside the mock).
func (m *Mock) Deliver(id uint32, image *imagetypes.PlatformImage) {
	m.mu.Lock()
	req, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if ok {
		req.callback(image)
	}
}

// Cancel records a best-effort cancellation. It does not prevent a
// concurrent Deliver from still firing — that race is the registry's
// job to resolve, not this mock's.
func (m *Mock) Cancel(id uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCount++
	m.cancels[id]++
}

// Decode implements the provider's synchronous decode call.
func (m *Mock) Decode(image *imagetypes.PlatformImage, frameIndex int) (*imagetypes.Bitmap, error) {
	m.mu.Lock()
	fn := m.DecodeFn
	m.mu.Unlock()
	if fn == nil {
		return &imagetypes.Bitmap{}, nil
	}
	return fn(image, frameIndex)
}

// ShouldEvaluateDeviceStatus implements capacity.Evaluator.
func (m *Mock) ShouldEvaluateDeviceStatus() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ShouldEvaluate
}

// EvaluateDeviceStatus implements capacity.Evaluator.
func (m *Mock) EvaluateDeviceStatus() (uint32, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.EvalCPU, m.EvalMem
}

// Log records a diagnostic line for later assertion and forwards it
// to the default slog logger.
func (m *Mock) Log(level slog.Level, message string) {
	m.mu.Lock()
	m.logs = append(m.logs, logLine{level: level, msg: message})
	m.mu.Unlock()
	slog.Default().Log(context.Background(), level, message)
}

// NewImage builds a PlatformImage whose Release callback increments
// this mock's release bookkeeping exactly once, for asserting the
// at-most-one-release invariant across a test.
func (m *Mock) NewImage(handle uintptr, width, height, frameCount, repetitionCount, durationMs int) *imagetypes.PlatformImage {
	img := &imagetypes.PlatformImage{
		Handle:          handle,
		Width:           width,
		Height:          height,
		FrameCount:      frameCount,
		RepetitionCount: repetitionCount,
		DurationInMs:    durationMs,
	}
	img.Release = func() {
		m.mu.Lock()
		m.releaseCount++
		m.releasedHandles = append(m.releasedHandles, handle)
		m.mu.Unlock()
	}
	return img
}

// RequestCount returns how many Request calls the mock has observed.
func (m *Mock) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// CancelCount returns how many Cancel calls the mock has observed.
func (m *Mock) CancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelCount
}

// ReleaseCount returns how many PlatformImages minted by NewImage had
// their Release callback invoked.
func (m *Mock) ReleaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releaseCount
}

// ReleasedHandles returns the handles released, in call order. A
// handle appearing twice is a violation of the at-most-one-release
// invariant.
func (m *Mock) ReleasedHandles() []uintptr {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uintptr, len(m.releasedHandles))
	copy(out, m.releasedHandles)
	return out
}

// PendingCount returns how many Request calls have not yet been
// Delivered.
func (m *Mock) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// PendingIDs returns the RequestIds currently awaiting delivery, in no
// particular order. Test-only convenience for callers that don't track
// the id a Request call allocated internally.
func (m *Mock) PendingIDs() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint32, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	return ids
}
