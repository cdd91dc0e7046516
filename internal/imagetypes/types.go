// Package imagetypes defines the data model shared by the codec,
// coordinator, registry, and provider packages: the descriptor a UI
// runtime asks for, the opaque native handle a provider delivers, and
// the raw pixel buffer decoding produces.
package imagetypes

import "fmt"

// RequestInfo is the immutable descriptor identifying what to fetch and
// decode. Parameters affect pixel output and are part of the logical
// identity of the request; ExtraInfo never affects pixels and exists
// only for provider-side bookkeeping (analytics headers, cache keys on
// the provider's own side, etc).
type RequestInfo struct {
	URL           string
	TargetWidth   int
	TargetHeight  int
	Parameters    map[string]string
	ExtraInfo     map[string]string
}

// Validate checks the fail-fast argument-error conditions from the
// instantiate-from-descriptor surface: an empty URL or negative target
// dimensions are rejected before a codec is ever constructed.
func (r RequestInfo) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("imagetypes: url must not be empty")
	}
	if r.TargetWidth < 0 || r.TargetHeight < 0 {
		return fmt.Errorf("imagetypes: target dimensions must not be negative (got %dx%d)", r.TargetWidth, r.TargetHeight)
	}
	return nil
}

// ReleaseImageCallback releases a PlatformImage's native resources.
// Must be safe to call from any thread; must be invoked at most once
// per PlatformImage.
type ReleaseImageCallback func()

// PlatformImage is an opaque native image handle delivered by a
// provider. Handle == 0 means "no image" (e.g. a failed fetch). Release
// itself does not modify Handle; once the codec has invoked Release it
// drops the image from its platform-image slot, so the slot never
// holds an already-released image.
type PlatformImage struct {
	Handle          uintptr
	Width           int
	Height          int
	FrameCount      int // >= 1
	RepetitionCount int // -1 = infinite
	DurationInMs    int // total duration across all frames, for animations
	UserData        any // provider-private, opaque to the core

	Release ReleaseImageCallback
}

// Valid reports whether the image still owns a live native handle.
func (p *PlatformImage) Valid() bool {
	return p != nil && p.Handle != 0
}

// AlphaType describes how a Bitmap's alpha channel combines with color.
type AlphaType int

const (
	AlphaOpaque AlphaType = iota
	AlphaPremul
	AlphaUnpremul
)

func (a AlphaType) String() string {
	switch a {
	case AlphaOpaque:
		return "opaque"
	case AlphaPremul:
		return "premul"
	case AlphaUnpremul:
		return "unpremul"
	default:
		return "unknown"
	}
}

// ColorType describes a Bitmap's pixel layout.
type ColorType int

const (
	ColorRGBA8888 ColorType = iota
	ColorBGRA8888
	ColorRGB565
	ColorARGB4444
	ColorAlpha8
)

func (c ColorType) String() string {
	switch c {
	case ColorRGBA8888:
		return "rgba8888"
	case ColorBGRA8888:
		return "bgra8888"
	case ColorRGB565:
		return "rgb565"
	case ColorARGB4444:
		return "argb4444"
	case ColorAlpha8:
		return "alpha8"
	default:
		return "unknown"
	}
}

// ReleaseBitmapCallback releases a Bitmap's pixel buffer (a no-op if
// PixelsCopied is false and ownership was never transferred).
type ReleaseBitmapCallback func()

// Bitmap is a raw CPU pixel buffer produced by decoding a
// PlatformImage. If PixelsCopied is true, the core owns Pixels
// independently of the originating PlatformImage; if false, Pixels is
// only a view into the platform image's own memory and stays valid
// only while that PlatformImage is retained.
type Bitmap struct {
	Pixels       []byte
	PixelsCopied bool
	Width        int
	Height       int
	BytesPerRow  int
	AlphaType    AlphaType
	ColorType    ColorType
	UserData     any

	Release ReleaseBitmapCallback
}

// Failed reports whether decoding produced no usable pixel buffer.
func (b *Bitmap) Failed() bool {
	return b == nil || b.Pixels == nil
}

// GPUImage is an opaque handle to a texture uploaded to the GPU
// resource manager, or the zero value for "none" (upload failure).
type GPUImage struct {
	handle uintptr
}

// NewGPUImage wraps a non-zero native texture handle.
func NewGPUImage(handle uintptr) GPUImage { return GPUImage{handle: handle} }

// None is the zero GPUImage, representing an upload failure.
var None = GPUImage{}

// Valid reports whether the GPU image represents a real uploaded texture.
func (g GPUImage) Valid() bool { return g.handle != 0 }

// Handle returns the raw native texture handle (0 for None).
func (g GPUImage) Handle() uintptr { return g.handle }

// FrameInfo pairs an uploaded GPU image with its per-frame display
// duration, handed to the UI runtime's getNextFrame callback.
type FrameInfo struct {
	Image       GPUImage
	DurationMs  int
	RequestID   uint32 // informational only, for telemetry attribution
}

// InfoList is the fixed 5-element ordered sequence the runtime-binding
// surface returns from getImageInfo:
// [width, height, frameCount, durationInMs, repetitionCount].
type InfoList [5]int

// NewInfoList builds an InfoList from the given values, in the order
// above. It applies no defaults; ZeroInfoList is the all-zero list.
func NewInfoList(width, height, frameCount, durationInMs, repetitionCount int) InfoList {
	return InfoList{width, height, frameCount, durationInMs, repetitionCount}
}

// ZeroInfoList is returned for a canceled codec's getImageInfo call.
func ZeroInfoList() InfoList {
	return InfoList{0, 0, 0, 0, 0}
}
