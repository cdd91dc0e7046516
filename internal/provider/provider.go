// Package provider defines the contract the core consumes from an
// external platform image provider (spec.md §6): network fetch,
// best-effort cancellation, synchronous native decode, and the
// device-capacity signal. It also owns the process-wide RequestId
// counter.
package provider

import (
	"log/slog"
	"sync/atomic"

	"github.com/e7canasta/orion-imagecodec/internal/imagetypes"
)

// FetchCallback is invoked by the provider on completion of a Request,
// on any thread, exactly once per non-canceled request.
type FetchCallback func(image *imagetypes.PlatformImage)

// Bridge is the thin contract the core consumes. Network fetch,
// platform-native decode, and device-pressure signals live entirely
// on the other side of this interface; the core never assumes
// anything about how they are implemented.
//
// Contract (spec.md §6):
//   - Request is async; callback fires on any thread exactly once for
//     a non-canceled request.
//   - Cancel is best-effort: the provider may still invoke the
//     callback after Cancel returns (the registry's take-or-empty
//     resolves that race, not this interface).
//   - Decode is synchronous and callable from worker threads; it
//     returns a Bitmap with Pixels == nil on failure.
//   - ShouldEvaluateDeviceStatus/EvaluateDeviceStatus back
//     internal/capacity.Evaluator.
//   - Log is the only side channel for diagnostic detail; core errors
//     never cross runner boundaries as exceptions.
type Bridge interface {
	Request(id uint32, info imagetypes.RequestInfo, callback FetchCallback)
	Cancel(id uint32)
	Decode(image *imagetypes.PlatformImage, frameIndex int) (*imagetypes.Bitmap, error)

	ShouldEvaluateDeviceStatus() bool
	EvaluateDeviceStatus() (cpuCoreCount uint32, maxMemoryInFlight uint64)

	Log(level slog.Level, message string)
}

// RequestIDs is the process-wide monotonically increasing RequestId
// counter, owned by the manager per spec.md §6. Wrap-around is not
// expected during a process's lifetime.
type RequestIDs struct {
	next atomic.Uint32
}

// NewRequestIDs constructs a counter starting at 1 (0 is reserved as
// "no request" in call sites that need a sentinel).
func NewRequestIDs() *RequestIDs {
	ids := &RequestIDs{}
	ids.next.Store(0)
	return ids
}

// Next allocates the next RequestId.
func (r *RequestIDs) Next() uint32 {
	return r.next.Add(1)
}
