package codec

import (
	"github.com/e7canasta/orion-imagecodec/internal/imagetypes"
)

// RasterInfo carries the pixel format metadata a CPU-resident raster
// upload needs, independent of the (now possibly-cleared) Bitmap it
// came from.
type RasterInfo struct {
	Width       int
	Height      int
	BytesPerRow int
	ColorType   imagetypes.ColorType
	AlphaType   imagetypes.AlphaType
}

// Uploader is the GPU resource manager's capability, treated as
// opaque per spec.md §1: "upload(pixels, info) -> GPU image or none"
// plus an async-unref queue the implementation manages internally.
type Uploader interface {
	// GPUEnabled reports the current GPU-availability signal (e.g.
	// false while the app is backgrounded).
	GPUEnabled() bool

	// UploadTexture uploads bitmap as a cross-context texture. The
	// input pixel view does not need to outlive the call. Returns
	// imagetypes.None on allocation failure. Only called when
	// GPUEnabled() is true.
	UploadTexture(bitmap *imagetypes.Bitmap) (imagetypes.GPUImage, error)

	// UploadRaster constructs a CPU-resident raster image owning
	// pixels outright (the caller transfers ownership: pixels must not
	// be touched again after this call). Only called when GPUEnabled()
	// is false.
	UploadRaster(pixels []byte, info RasterInfo) (imagetypes.GPUImage, error)
}

// uploadTexture implements spec.md §4.5: branch on GPU availability,
// and for the disabled path, transfer or copy pixel ownership
// depending on whether the bitmap already owns an independent buffer.
func uploadTexture(uploader Uploader, bitmap *imagetypes.Bitmap) (imagetypes.GPUImage, error) {
	if uploader.GPUEnabled() {
		return uploader.UploadTexture(bitmap)
	}

	info := RasterInfo{
		Width:       bitmap.Width,
		Height:      bitmap.Height,
		BytesPerRow: bitmap.BytesPerRow,
		ColorType:   bitmap.ColorType,
		AlphaType:   bitmap.AlphaType,
	}

	var pixels []byte
	if bitmap.PixelsCopied {
		// Transfer ownership: the raster image's destructor now frees
		// this buffer, so the bitmap must not reference it any more.
		pixels = bitmap.Pixels
		bitmap.Pixels = nil
	} else {
		pixels = make([]byte, len(bitmap.Pixels))
		copy(pixels, bitmap.Pixels)
	}

	return uploader.UploadRaster(pixels, info)
}
