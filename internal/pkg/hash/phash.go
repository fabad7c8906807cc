package hash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
)

// ImageHash is a 64-bit DCT-based perceptual hash.
type ImageHash struct {
	Hash   uint64
	Width  int
	Height int
}

// String returns a hex string representation of the hash.
func (h *ImageHash) String() string {
	return fmt.Sprintf("%016x", h.Hash)
}

// PerceptualHasher computes pHashes for near-duplicate frame detection.
type PerceptualHasher struct{}

// NewPerceptualHasher creates a new PerceptualHasher.
func NewPerceptualHasher() *PerceptualHasher {
	return &PerceptualHasher{}
}

// FromImage computes the pHash of a decoded image.
func (ph *PerceptualHasher) FromImage(img image.Image) (*ImageHash, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pHash: %w", err)
	}
	return &ImageHash{
		Hash:   h.GetHash(),
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// FromBytes computes the pHash of encoded image bytes (JPEG, PNG or GIF).
func (ph *PerceptualHasher) FromBytes(data []byte) (*ImageHash, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ph.FromImage(img)
}

// HammingDistance calculates the Hamming distance between two hashes.
// Returns the number of different bits (0 = identical images).
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	count := 0
	for xor != 0 {
		count++
		xor &= xor - 1
	}
	return count
}

// IsSimilar checks if two hashes are similar within a threshold.
// Typical thresholds:
//   - 0: Identical
//   - 1-5: Very similar (likely same image with minor edits)
//   - 6-10: Somewhat similar
//   - 11+: Different images
func IsSimilar(h1, h2 *ImageHash, threshold int) bool {
	return HammingDistance(h1.Hash, h2.Hash) <= threshold
}
