package imagetypes

import "testing"

func TestRequestInfoValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     RequestInfo
		wantErr bool
	}{
		{"valid", RequestInfo{URL: "https://example.com/a.png", TargetWidth: 100, TargetHeight: 100}, false},
		{"empty url", RequestInfo{URL: "", TargetWidth: 10, TargetHeight: 10}, true},
		{"negative width", RequestInfo{URL: "x", TargetWidth: -1, TargetHeight: 10}, true},
		{"negative height", RequestInfo{URL: "x", TargetWidth: 10, TargetHeight: -1}, true},
		{"zero dims allowed", RequestInfo{URL: "x", TargetWidth: 0, TargetHeight: 0}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestPlatformImageValid(t *testing.T) {
	var nilImg *PlatformImage
	if nilImg.Valid() {
		t.Fatal("nil image should not be valid")
	}

	img := &PlatformImage{Handle: 0}
	if img.Valid() {
		t.Fatal("zero handle should not be valid")
	}

	img.Handle = 42
	if !img.Valid() {
		t.Fatal("non-zero handle should be valid")
	}
}

func TestBitmapFailed(t *testing.T) {
	var nilBmp *Bitmap
	if !nilBmp.Failed() {
		t.Fatal("nil bitmap should be failed")
	}

	b := &Bitmap{Pixels: nil}
	if !b.Failed() {
		t.Fatal("nil pixels should be failed")
	}

	b.Pixels = []byte{1, 2, 3}
	if b.Failed() {
		t.Fatal("non-nil pixels should not be failed")
	}
}

func TestGPUImageValidity(t *testing.T) {
	if None.Valid() {
		t.Fatal("zero-value GPUImage (None) must be invalid")
	}
	img := NewGPUImage(7)
	if !img.Valid() {
		t.Fatal("non-zero handle GPUImage must be valid")
	}
	if img.Handle() != 7 {
		t.Fatalf("Handle() = %d, want 7", img.Handle())
	}
}

func TestColorTypeString(t *testing.T) {
	cases := map[ColorType]string{
		ColorRGBA8888: "rgba8888",
		ColorBGRA8888: "bgra8888",
		ColorRGB565:   "rgb565",
		ColorARGB4444: "argb4444",
		ColorAlpha8:   "alpha8",
		ColorType(99): "unknown",
	}
	for ct, want := range cases {
		if got := ct.String(); got != want {
			t.Errorf("ColorType(%d).String() = %q, want %q", ct, got, want)
		}
	}
}
