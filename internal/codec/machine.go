package codec

import (
	"log/slog"

	"github.com/e7canasta/orion-imagecodec/internal/imagetypes"
)

// GetNextFrame implements spec.md §4.4's getNextFrame operation. Must
// be called on manager.UI.
func (c *Codec) GetNextFrame(callback FrameCallback) {
	if c.canceled.Load() {
		callback(nil)
		return
	}

	if c.state == StateComplete {
		if c.animated {
			c.getNextMultiframe(callback)
			return
		}
		if c.cachedFrame != nil {
			callback(c.cachedFrame)
			return
		}
		// Neither cached nor multi-frame handle present: a recoverable
		// anomaly (spec.md §9 open question). Reset and fall through to
		// re-issue the request.
		c.logf(slog.LevelWarn, "imagecodec: codec in Complete state with no cached frame and no platform handle, resetting")
		c.state = StateNew
	}

	c.pendingFrame = append(c.pendingFrame, callback)

	if c.state == StateDownloading {
		return
	}

	c.beginFetch()
}

// beginFetch transitions New -> Downloading and issues the provider
// request. Caller must be on manager.UI and must have already
// enqueued any callback it wants delivered.
func (c *Codec) beginFetch() {
	c.state = StateDownloading
	c.requestID = c.manager.RequestIDs.Next()
	c.manager.Registry.Retain(c.requestID, c)
	c.manager.Provider.Request(c.requestID, c.descriptor, c.onFetchComplete)
}

// GetImageInfo implements spec.md §4.4's getImageInfo operation. Must
// be called on manager.UI.
func (c *Codec) GetImageInfo(callback InfoCallback) {
	if c.canceled.Load() {
		callback(imagetypes.ZeroInfoList())
		return
	}

	c.imgMu.Lock()
	img := c.image
	c.imgMu.Unlock()
	if img.Valid() {
		callback(imagetypes.NewInfoList(img.Width, img.Height, img.FrameCount, img.DurationInMs, img.RepetitionCount))
		return
	}

	c.pendingInfo = append(c.pendingInfo, callback)

	if c.requestingImageInfo {
		return
	}
	c.requestingImageInfo = true

	id := c.manager.RequestIDs.Next()
	c.infoRequestID = id
	c.manager.Registry.Retain(id, c)
	c.manager.Provider.Request(id, c.descriptor, func(image *imagetypes.PlatformImage) {
		c.manager.postUI(func() {
			c.onInfoFetchComplete(id, image)
		})
	})
}

// onInfoFetchComplete flushes the info-only pipeline: deliver metadata
// to every waiting caller, then release the platform image immediately
// (spec.md §4.4 step 5: "the info-only path retains nothing").
//
// spec.md §9 flags this as an open behavior-compat question. Here a
// Cancel that runs before this closure takes the info request's
// registry slot, so the Take below misses: the image is released and
// no info callback is flushed.
func (c *Codec) onInfoFetchComplete(id uint32, image *imagetypes.PlatformImage) {
	if _, ok := c.manager.Registry.Take(id); !ok {
		releaseImage(image)
		return
	}

	c.requestingImageInfo = false

	var info imagetypes.InfoList
	if image.Valid() {
		info = imagetypes.NewInfoList(image.Width, image.Height, image.FrameCount, image.DurationInMs, image.RepetitionCount)
	} else {
		info = imagetypes.ZeroInfoList()
	}

	callbacks := c.pendingInfo
	c.pendingInfo = nil
	for _, cb := range callbacks {
		cb(info)
	}

	releaseImage(image)
}

// Cancel implements spec.md §4.4's cancel operation. Must be called on
// manager.UI.
func (c *Codec) Cancel() {
	c.manager.Registry.Take(c.requestID)
	if c.requestingImageInfo {
		c.manager.Registry.Take(c.infoRequestID)
		c.requestingImageInfo = false
	}
	c.canceled.Store(true)

	if c.state == StateDownloading {
		c.manager.Provider.Cancel(c.requestID)
	}

	c.releasePlatformImage()

	c.cachedFrame = nil
	c.pendingFrame = nil
	c.pendingInfo = nil
	c.state = StateComplete
}

// releasePlatformImage invokes the release callback if the handle is
// non-zero and clears the slot. Safe to call multiple times (spec.md
// §5: "gated by handle != 0 ... making multiple release attempts
// safe").
func (c *Codec) releasePlatformImage() {
	c.imgMu.Lock()
	img := c.image
	c.image = nil
	c.imgMu.Unlock()
	releaseImage(img)
}

// releaseImage invokes img's release callback exactly once if img has
// a live handle. Standalone helper (no codec state) so the fetch-fail
// and cancel-race paths can release an image that was never assigned
// to a codec's slot at all.
func releaseImage(img *imagetypes.PlatformImage) {
	if img.Valid() {
		img.Release()
	}
}

// assignPlatformImage stores image into the codec's slot under lock,
// unless the codec has since been canceled, in which case image is
// released immediately instead. Callable from any runner.
func (c *Codec) assignPlatformImage(image *imagetypes.PlatformImage) {
	c.imgMu.Lock()
	if c.canceled.Load() {
		c.imgMu.Unlock()
		releaseImage(image)
		return
	}
	c.image = image
	c.imgMu.Unlock()
}

// onFetchComplete is the provider's async callback for the
// getNextFrame pipeline, invoked on an arbitrary thread. Implements
// spec.md §4.4 "On fetch completion".
func (c *Codec) onFetchComplete(image *imagetypes.PlatformImage) {
	if _, ok := c.manager.Registry.Take(c.requestID); !ok {
		releaseImage(image)
		return
	}

	if !image.Valid() {
		c.logf(slog.LevelWarn, "imagecodec: fetch failed", "url", c.descriptor.URL)
		if c.canceled.Load() {
			c.scheduleDestroy()
			return
		}
		c.manager.postUI(func() {
			c.flushFrameCallbacksLocked(nil)
			c.state = StateComplete
			c.destroyLocal()
		})
		return
	}

	c.assignPlatformImage(image)
	if c.canceled.Load() {
		c.scheduleDestroy()
		return
	}

	if image.FrameCount > 1 {
		c.manager.postUI(func() {
			c.animated = true
			c.state = StateComplete
			c.getNextMultiframe(nil)
		})
		return
	}

	cost := uint64(image.Width) * uint64(image.Height) * 4
	c.manager.Coordinator.PostTask(cost, func(finish func()) {
		c.decodeThunk(finish, cost, 0, false)
	})
}

// flushFrameCallbacksLocked invokes every pending frame callback with
// frame (nil on failure) and clears the queue. Caller must be on
// manager.UI.
func (c *Codec) flushFrameCallbacksLocked(frame *imagetypes.FrameInfo) {
	callbacks := c.pendingFrame
	c.pendingFrame = nil
	for _, cb := range callbacks {
		cb(frame)
	}
}

// decodeThunk is the worker-pool body posted to DecodeCoordinator by
// both the single-frame path and getNextMultiframe. finish releases
// the coordinator's admission slot; it must be called exactly once
// down every path. Implements spec.md §4.4 "Decode thunk".
func (c *Codec) decodeThunk(finish func(), cost uint64, frameIndex int, multiframe bool) {
	c.imgMu.Lock()

	if c.canceled.Load() {
		c.imgMu.Unlock()
		finish()
		c.scheduleDestroy()
		return
	}
	if !c.image.Valid() {
		c.imgMu.Unlock()
		c.logf(slog.LevelWarn, "imagecodec: decode attempted with no platform handle")
		finish()
		c.scheduleDestroy()
		return
	}

	bitmap, err := c.manager.Provider.Decode(c.image, frameIndex)
	c.imgMu.Unlock()

	if err != nil || bitmap.Failed() {
		c.logf(slog.LevelWarn, "imagecodec: decode failed", "error", err)
		finish()
		c.releasePlatformImage()
		c.postFailure(multiframe)
		return
	}

	if bitmap.PixelsCopied && !multiframe {
		c.releasePlatformImage()
	}

	c.manager.postIO(func() {
		c.uploadClosure(finish, bitmap, cost, multiframe)
	})
}

// postFailure schedules the UI-runner failure closure for either the
// single-frame or multi-frame path (spec.md §4.4 step 5 / "Multi-frame
// loop ... on failure ... terminates the animation").
func (c *Codec) postFailure(multiframe bool) {
	c.manager.postUI(func() {
		if c.canceled.Load() {
			return
		}
		c.flushFrameCallbacksLocked(nil)
		c.state = StateComplete
		c.destroyLocal()
	})
}

// uploadClosure is the IO-runner body posted by decodeThunk. Implements
// spec.md §4.4 "Upload closure".
func (c *Codec) uploadClosure(finish func(), bitmap *imagetypes.Bitmap, cost uint64, multiframe bool) {
	c.imgMu.Lock()
	quit := c.canceled.Load()
	var gpuImage imagetypes.GPUImage
	var uploadErr error
	if !quit {
		gpuImage, uploadErr = uploadTexture(c.manager.Uploader, bitmap)
	}
	c.imgMu.Unlock()

	releaseBitmap(bitmap)
	finish()

	if quit {
		c.scheduleDestroy()
		return
	}

	if !bitmap.PixelsCopied && !multiframe {
		c.releasePlatformImage()
	}

	if uploadErr != nil || !gpuImage.Valid() {
		c.logf(slog.LevelWarn, "imagecodec: upload failed", "error", uploadErr)
		if multiframe {
			c.manager.postUI(func() {
				if c.canceled.Load() {
					return
				}
				c.flushFrameCallbacksLocked(nil)
				c.terminateAnimation()
				c.destroyLocal()
			})
			return
		}
		c.manager.postUI(func() {
			if c.canceled.Load() {
				return
			}
			c.flushFrameCallbacksLocked(nil)
			c.state = StateComplete
			c.destroyLocal()
		})
		return
	}

	c.manager.postUI(func() {
		c.completionClosure(gpuImage, multiframe)
	})
}

// releaseBitmap invokes bitmap's release callback if present.
func releaseBitmap(bitmap *imagetypes.Bitmap) {
	if bitmap != nil && bitmap.Release != nil {
		bitmap.Release()
	}
}

// completionClosure runs on manager.UI once an upload has completed
// (success or failure already resolved by the caller). Implements
// spec.md §4.4 "Completion closure".
func (c *Codec) completionClosure(gpuImage imagetypes.GPUImage, multiframe bool) {
	if c.canceled.Load() {
		return
	}
	c.state = StateComplete

	duration := 0
	if multiframe {
		c.imgMu.Lock()
		img := c.image
		c.imgMu.Unlock()
		if img.Valid() && img.FrameCount > 0 {
			duration = img.DurationInMs / img.FrameCount
		}
	}

	frame := &imagetypes.FrameInfo{
		Image:      gpuImage,
		DurationMs: duration,
		RequestID:  c.requestID,
	}

	if !multiframe {
		c.cachedFrame = frame
	}

	c.flushFrameCallbacksLocked(frame)

	c.destroyLocal()
}

// terminateAnimation clears the platform handle so subsequent
// getNextFrame calls observe handle == 0 and fail their callback
// (spec.md §4.4: "subsequent calls observe handle == 0 and fail the
// callback").
func (c *Codec) terminateAnimation() {
	c.state = StateComplete
	c.releasePlatformImage()
}

// getNextMultiframe implements spec.md §4.4's animation loop. callback
// may be nil (the kick-off call from onFetchComplete carries no
// caller-visible callback). Must be called on manager.UI.
func (c *Codec) getNextMultiframe(callback FrameCallback) {
	if callback != nil {
		c.pendingFrame = append(c.pendingFrame, callback)
	}

	c.imgMu.Lock()
	img := c.image
	c.imgMu.Unlock()
	if !img.Valid() {
		c.flushFrameCallbacksLocked(nil)
		return
	}

	frameIndex := c.nextFrameIdx
	c.nextFrameIdx = (c.nextFrameIdx + 1) % img.FrameCount
	cost := uint64(img.Width) * uint64(img.Height) * 4
	c.manager.Coordinator.PostTask(cost, func(finish func()) {
		c.decodeThunk(finish, cost, frameIndex, true)
	})
}

// FrameCount returns the currently-assigned platform image's frame
// count, defaulting to 1 when no image is assigned (spec.md §6).
func (c *Codec) FrameCount() int {
	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	if !c.image.Valid() {
		return 1
	}
	return c.image.FrameCount
}

// RepetitionCount returns the currently-assigned platform image's
// repetition count, defaulting to -1 (infinite) when no image is
// assigned (spec.md §6).
func (c *Codec) RepetitionCount() int {
	c.imgMu.Lock()
	defer c.imgMu.Unlock()
	if !c.image.Valid() {
		return -1
	}
	return c.image.RepetitionCount
}
