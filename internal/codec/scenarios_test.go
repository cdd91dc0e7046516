package codec

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e7canasta/orion-imagecodec/internal/imagetypes"
)

// TestUploadFailureFlushesNilSingleFrame exercises spec.md §7's upload
// failure taxonomy for the single-frame path.
func TestUploadFailureFlushesNilSingleFrame(t *testing.T) {
	h := newTestHarness(t)
	h.uploader.fail = true
	c, _ := h.manager.NewCodec(validDescriptor())

	h.provider.DecodeFn = func(image *imagetypes.PlatformImage, frameIndex int) (*imagetypes.Bitmap, error) {
		return &imagetypes.Bitmap{Pixels: []byte{1, 2, 3, 4}, PixelsCopied: true, Width: 1, Height: 1, BytesPerRow: 4}, nil
	}

	var got *imagetypes.FrameInfo
	var invoked int32
	h.onUI(func() {
		c.GetNextFrame(func(frame *imagetypes.FrameInfo) {
			got = frame
			atomic.AddInt32(&invoked, 1)
		})
	})
	img := h.provider.NewImage(21, 1, 1, 1, 1, 0)
	waitFor(t, time.Second, func() bool { return h.provider.PendingCount() == 1 })
	h.provider.Deliver(h.requestIDFor(c), img)

	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&invoked) == 1 })
	if got != nil {
		t.Fatal("upload failure must deliver a nil frame")
	}
}

// TestMultiFrameDecodeFailureTerminatesAnimation verifies that once a
// mid-animation decode fails, the platform image is released and
// subsequent getNextFrame calls observe the terminated animation
// instead of looping forever or re-fetching.
func TestMultiFrameDecodeFailureTerminatesAnimation(t *testing.T) {
	h := newTestHarness(t)
	c, _ := h.manager.NewCodec(validDescriptor())

	var calls int32
	h.provider.DecodeFn = func(image *imagetypes.PlatformImage, frameIndex int) (*imagetypes.Bitmap, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return &imagetypes.Bitmap{Pixels: []byte{0, 0, 0, 0}, PixelsCopied: true, Width: 1, Height: 1, BytesPerRow: 4}, nil
		}
		return &imagetypes.Bitmap{}, nil // second frame fails to decode
	}

	var frame0 *imagetypes.FrameInfo
	h.onUI(func() {
		c.GetNextFrame(func(frame *imagetypes.FrameInfo) { frame0 = frame })
	})
	img := h.provider.NewImage(31, 1, 1, 3, -1, 300)
	waitFor(t, time.Second, func() bool { return h.provider.PendingCount() == 1 })
	h.provider.Deliver(h.requestIDFor(c), img)
	waitFor(t, time.Second, func() bool { return frame0 != nil })

	var frame1 *imagetypes.FrameInfo
	var frame1Invoked int32
	h.onUI(func() {
		c.GetNextFrame(func(frame *imagetypes.FrameInfo) {
			frame1 = frame
			atomic.AddInt32(&frame1Invoked, 1)
		})
	})
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&frame1Invoked) == 1 })
	if frame1 != nil {
		t.Fatal("the failed frame must be delivered as nil")
	}

	// Animation is now terminated: a further getNextFrame must not
	// re-issue a provider.request, and must fail its callback too.
	var frame2 *imagetypes.FrameInfo
	var frame2Invoked int32
	h.onUI(func() {
		c.GetNextFrame(func(frame *imagetypes.FrameInfo) {
			frame2 = frame
			atomic.AddInt32(&frame2Invoked, 1)
		})
	})
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&frame2Invoked) == 1 })
	if frame2 != nil {
		t.Fatal("getNextFrame after a terminated animation must deliver nil")
	}
	if h.provider.RequestCount() != 1 {
		t.Fatalf("a terminated animation must never re-issue provider.request, got %d requests", h.provider.RequestCount())
	}
}

// TestGPUDisabledTransfersOwnershipWhenPixelsCopied exercises spec.md
// §4.5's raster branch: when the uploader reports GPU disabled and the
// bitmap already owns its pixel buffer, ownership transfers instead of
// being copied.
func TestGPUDisabledTransfersOwnershipWhenPixelsCopied(t *testing.T) {
	u := newFakeUploader()
	u.enabled = false

	original := []byte{9, 9, 9, 9}
	bitmap := &imagetypes.Bitmap{Pixels: original, PixelsCopied: true, Width: 1, Height: 1, BytesPerRow: 4}

	img, err := uploadTexture(u, bitmap)
	if err != nil {
		t.Fatalf("uploadTexture: %v", err)
	}
	if !img.Valid() {
		t.Fatal("expected a valid raster image")
	}
	if bitmap.Pixels != nil {
		t.Fatal("ownership-transferred bitmap must have its pixel pointer cleared")
	}
}

// TestGPUDisabledCopiesWhenPixelsAreAView verifies the non-owning
// branch copies pixels instead of clearing the source.
func TestGPUDisabledCopiesWhenPixelsAreAView(t *testing.T) {
	u := newFakeUploader()
	u.enabled = false

	original := []byte{1, 2, 3, 4}
	bitmap := &imagetypes.Bitmap{Pixels: original, PixelsCopied: false, Width: 1, Height: 1, BytesPerRow: 4}

	img, err := uploadTexture(u, bitmap)
	if err != nil {
		t.Fatalf("uploadTexture: %v", err)
	}
	if !img.Valid() {
		t.Fatal("expected a valid raster image")
	}
	if bitmap.Pixels == nil {
		t.Fatal("a view bitmap's own pixel slice must remain untouched")
	}
	for i, b := range original {
		if bitmap.Pixels[i] != b {
			t.Fatalf("view bitmap's pixels must be left unmodified, got %v want %v", bitmap.Pixels, original)
		}
	}
}

// TestGetImageInfoReleasesImageImmediately exercises the info-only
// pipeline (spec.md §4.4 getImageInfo step 5): the platform image is
// released right after the metadata flush, never retained.
func TestGetImageInfoReleasesImageImmediately(t *testing.T) {
	h := newTestHarness(t)
	c, _ := h.manager.NewCodec(validDescriptor())

	var mu sync.Mutex
	var got imagetypes.InfoList
	var invoked bool
	h.onUI(func() {
		c.GetImageInfo(func(info imagetypes.InfoList) {
			mu.Lock()
			got = info
			invoked = true
			mu.Unlock()
		})
	})

	waitFor(t, time.Second, func() bool { return h.provider.PendingCount() == 1 })
	img := h.provider.NewImage(55, 10, 20, 1, 1, 0)
	// The mock's Deliver locates the pending callback by id, and
	// getImageInfo allocates its own id distinct from the codec's
	// requestID field, so deliver to the single pending id instead.
	h.deliverToOnlyPending(img)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return invoked
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0] != 10 || got[1] != 20 {
		t.Fatalf("unexpected info list: %v", got)
	}
	if h.provider.ReleaseCount() != 1 {
		t.Fatalf("getImageInfo must release the platform image immediately, got %d releases", h.provider.ReleaseCount())
	}
}
