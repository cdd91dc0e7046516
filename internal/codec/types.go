// Package codec implements the per-request codec state machine
// (spec.md §4.4): descriptor -> platform image -> bitmap -> GPU
// texture -> UI callback, fanning out single- vs multi-frame paths,
// while preserving single ownership of the platform image handle and
// guaranteeing at-most-once release under any cancellation race.
package codec

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-imagecodec/internal/capacity"
	"github.com/e7canasta/orion-imagecodec/internal/coordinator"
	"github.com/e7canasta/orion-imagecodec/internal/imagetypes"
	"github.com/e7canasta/orion-imagecodec/internal/provider"
	"github.com/e7canasta/orion-imagecodec/internal/registry"
	"github.com/e7canasta/orion-imagecodec/internal/runner"
)

// State is one of the three codec lifecycle states from spec.md §3.
type State int

const (
	StateNew State = iota
	StateDownloading
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateDownloading:
		return "downloading"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// FrameCallback receives the result of a getNextFrame call: a frame on
// success, or nil on cancellation, fetch failure, decode failure, or
// upload failure.
type FrameCallback func(frame *imagetypes.FrameInfo)

// InfoCallback receives the result of a getImageInfo call.
type InfoCallback func(info imagetypes.InfoList)

// Manager owns the collaborators shared by every codec instance: the
// process-wide RequestId counter, the pending-codec registry, the
// decode coordinator, the device-capacity signal, the three runners,
// and the provider bridge. spec.md §9's "global singletons" design
// note maps this onto an explicit, per-process (or per-test) value
// instead of package-level state.
type Manager struct {
	Provider    provider.Bridge
	RequestIDs  *provider.RequestIDs
	Registry    *registry.Registry
	Coordinator *coordinator.DecodeCoordinator
	Device      *capacity.Device
	UI          runner.Runner
	IO          runner.Runner
	Uploader    Uploader
	Log         *slog.Logger
}

// NewCodec validates descriptor, re-evaluates device capacity if
// requested by the provider, and constructs a fresh Codec bound to
// this manager's collaborators. Returns an argument error (spec.md
// §7) without constructing a codec if descriptor is invalid.
func (m *Manager) NewCodec(descriptor imagetypes.RequestInfo) (*Codec, error) {
	if err := descriptor.Validate(); err != nil {
		if m.Log != nil {
			m.Log.Error("imagecodec: rejecting invalid descriptor", "error", err)
		}
		return nil, err
	}

	if m.Device != nil && m.Provider != nil {
		m.Device.MaybeEvaluate(deviceEvaluator{m.Provider}, m.Coordinator)
	}

	log := m.Log
	if log == nil {
		log = slog.Default()
	}

	return &Codec{
		id:           uuid.New(),
		descriptor:   descriptor,
		manager:      m,
		log:          log,
		nextFrameIdx: 0,
	}, nil
}

// deviceEvaluator adapts provider.Bridge to capacity.Evaluator.
type deviceEvaluator struct{ p provider.Bridge }

func (d deviceEvaluator) ShouldEvaluateDeviceStatus() bool { return d.p.ShouldEvaluateDeviceStatus() }
func (d deviceEvaluator) EvaluateDeviceStatus() (uint32, uint64) {
	return d.p.EvaluateDeviceStatus()
}

// Codec is the per-request state machine. Its state, callback queues,
// and cached frame are read/written only by code that runs on
// manager.UI (spec.md §5): either a direct call from the embedding
// UI runtime, or a closure this package posts to manager.UI. canceled
// and the platform-image slot are the only fields touched from other
// runners, and are guarded accordingly.
type Codec struct {
	id         uuid.UUID
	descriptor imagetypes.RequestInfo
	manager    *Manager
	log        *slog.Logger

	// UI-runner-only fields (see doc comment above).
	state               State
	requestID           uint32
	infoRequestID       uint32
	requestingImageInfo bool
	pendingFrame        []FrameCallback
	pendingInfo         []InfoCallback
	cachedFrame         *imagetypes.FrameInfo
	nextFrameIdx        int
	// animated is set once a fetch delivers frameCount > 1 and never
	// cleared, so a getNextFrame arriving after the animation has
	// terminated (platform handle released) still routes into
	// getNextMultiframe's fail-the-callback path instead of the
	// "neither cached nor multi-frame" anomaly reset.
	animated bool

	// Cross-runner fields.
	canceled atomic.Bool

	imgMu   sync.Mutex
	image   *imagetypes.PlatformImage

	destroyed atomic.Bool
	// OnDestroy, if set, is invoked exactly once when the final
	// registry-held reference is dropped on the UI runner. Test-only
	// observation hook; production callers have no need for it since
	// Go codecs are garbage collected, not manually destructed — this
	// exists to make the UI-thread-destruction invariant (spec.md §8
	// property 5) assertable.
	OnDestroy func()
}

// destroyLocal fires OnDestroy at most once. Callers must already be
// running on manager.UI (spec.md §4.3's destruction rule: "final
// destruction of a codec happens on the UI runner").
func (c *Codec) destroyLocal() {
	if c.destroyed.CompareAndSwap(false, true) && c.OnDestroy != nil {
		c.OnDestroy()
	}
}

// scheduleDestroy marshals destroyLocal to manager.UI from a
// worker/IO-runner call site, per spec.md §9's "drop shim" strategy:
// the closure posted here owns no state but the codec reference
// itself, so the reference's last drop happens on the UI runner.
func (c *Codec) scheduleDestroy() {
	c.manager.postUI(c.destroyLocal)
}

// logf forwards to both the local slog logger and the provider's Log
// side channel (spec.md §7: "the provider's log is the only side
// channel for diagnostic detail").
func (c *Codec) logf(level slog.Level, msg string, args ...any) {
	tagged := make([]any, 0, len(args)+2)
	tagged = append(tagged, args...)
	tagged = append(tagged, "codec_id", c.id.String())
	c.log.Log(context.Background(), level, msg, tagged...)
	if c.manager.Provider != nil {
		c.manager.Provider.Log(level, msg)
	}
}
