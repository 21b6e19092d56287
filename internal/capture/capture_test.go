package capture

import "testing"

func TestComputeCaptureDimensions_FitsWithinMax(t *testing.T) {
	w, h := ComputeCaptureDimensions(3840, 2160)
	if w > maxCaptureW || h > maxCaptureH {
		t.Fatalf("capture dims %dx%d exceed max %dx%d", w, h, maxCaptureW, maxCaptureH)
	}
	if w%2 != 0 || h%2 != 0 {
		t.Fatalf("capture dims %dx%d must both be even", w, h)
	}
}

func TestComputeCaptureDimensions_PreservesAspectRatio(t *testing.T) {
	w, h := ComputeCaptureDimensions(1920, 1080)
	wantRatio := 1920.0 / 1080.0
	gotRatio := float64(w) / float64(h)
	if diff := gotRatio - wantRatio; diff > 0.02 || diff < -0.02 {
		t.Fatalf("aspect ratio %v, want ~%v (w=%d h=%d)", gotRatio, wantRatio, w, h)
	}
}

func TestComputeCaptureDimensions_SmallScreenUnscaled(t *testing.T) {
	w, h := ComputeCaptureDimensions(640, 480)
	if w != 640 || h != 480 {
		t.Fatalf("small screen should not be upscaled, got %dx%d", w, h)
	}
}

func TestComputeCaptureDimensions_PortraitDisplay(t *testing.T) {
	w, h := ComputeCaptureDimensions(1080, 1920)
	if w > maxCaptureW || h > maxCaptureH {
		t.Fatalf("capture dims %dx%d exceed max", w, h)
	}
	if w%2 != 0 || h%2 != 0 {
		t.Fatalf("capture dims must be even, got %dx%d", w, h)
	}
}
