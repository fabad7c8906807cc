package hash

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// createTestImage creates a simple test image.
func createTestImage(width, height int, fill color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

// createGradientImage creates a gradient test image.
func createGradientImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gray := uint8((x + y) * 255 / (width + height))
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}

func TestFromImage(t *testing.T) {
	ph := NewPerceptualHasher()
	img := createGradientImage(100, 100)

	h, err := ph.FromImage(img)
	if err != nil {
		t.Fatalf("FromImage failed: %v", err)
	}
	if h.Hash == 0 {
		t.Error("Expected non-zero hash")
	}
	if h.Width != 100 || h.Height != 100 {
		t.Errorf("Expected 100x100, got %dx%d", h.Width, h.Height)
	}
}

func TestFromBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, createGradientImage(64, 64)); err != nil {
		t.Fatal(err)
	}

	ph := NewPerceptualHasher()
	h, err := ph.FromBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	if h.Hash == 0 {
		t.Error("Expected non-zero hash")
	}

	if _, err := ph.FromBytes([]byte("not an image")); err == nil {
		t.Error("Expected error for undecodable bytes")
	}
}

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		hash1    uint64
		hash2    uint64
		expected int
	}{
		{
			name:     "identical",
			hash1:    0xFFFFFFFFFFFFFFFF,
			hash2:    0xFFFFFFFFFFFFFFFF,
			expected: 0,
		},
		{
			name:     "one bit different",
			hash1:    0xFFFFFFFFFFFFFFFE,
			hash2:    0xFFFFFFFFFFFFFFFF,
			expected: 1,
		},
		{
			name:     "completely different",
			hash1:    0x0000000000000000,
			hash2:    0xFFFFFFFFFFFFFFFF,
			expected: 64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HammingDistance(tt.hash1, tt.hash2)
			if result != tt.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d", tt.hash1, tt.hash2, result, tt.expected)
			}
		})
	}
}

func TestIsSimilar(t *testing.T) {
	h1 := &ImageHash{Hash: 0xFFFFFFFFFFFFFFFF}
	h2 := &ImageHash{Hash: 0xFFFFFFFFFFFFFFF0} // 4 bits different

	if !IsSimilar(h1, h2, 5) {
		t.Error("Expected images to be similar with threshold 5")
	}
	if IsSimilar(h1, h2, 3) {
		t.Error("Expected images to NOT be similar with threshold 3")
	}
}

func TestImageHashString(t *testing.T) {
	h := &ImageHash{Hash: 0xDEADBEEF12345678}
	expected := "deadbeef12345678"
	if h.String() != expected {
		t.Errorf("String() = %s; want %s", h.String(), expected)
	}
}

func TestSameImageIdenticalHash(t *testing.T) {
	ph := NewPerceptualHasher()
	img := createGradientImage(100, 100)

	h1, _ := ph.FromImage(img)
	h2, _ := ph.FromImage(img)

	if h1.Hash != h2.Hash {
		t.Error("Same image should produce identical hash")
	}
}

func TestDifferentImagesProduceDifferentHashes(t *testing.T) {
	ph := NewPerceptualHasher()

	white := createTestImage(100, 100, color.White)
	black := createTestImage(100, 100, color.Black)

	h1, _ := ph.FromImage(white)
	h2, _ := ph.FromImage(black)

	if h1.Hash == h2.Hash {
		t.Error("Different images should produce different hashes")
	}
}
