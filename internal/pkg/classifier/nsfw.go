package classifier

import (
	"context"
	"encoding/json"
	"fmt"

	"modgate/internal/pkg/nsfw"
)

// NSFWVision adapts the Falconsai NSFW detector to the Vision interface.
// The detector only scores nudity, so its answer is rendered as the same
// JSON verdict shape the vision instruction asks chat models for. That
// keeps the downstream parsing path identical across providers.
type NSFWVision struct {
	client *nsfw.Client
}

// NewNSFWVision creates a Vision provider backed by the NSFW detector.
func NewNSFWVision(client *nsfw.Client) *NSFWVision {
	return &NSFWVision{client: client}
}

type nsfwVerdictJSON struct {
	IsSafe     bool     `json:"isSafe"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
	Flags      []string `json:"flags"`
}

// ClassifyImage scores the image and returns a canonical verdict JSON
// string. The instruction is ignored; the detector has a fixed task.
func (v *NSFWVision) ClassifyImage(ctx context.Context, img ImageInput, _ string) (string, error) {
	var (
		res *nsfw.DetectionResult
		err error
	)
	if len(img.Data) > 0 {
		res, err = v.client.DetectFromBytes(ctx, img.Data)
	} else {
		res, err = v.client.DetectFromURL(ctx, img.URL)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}

	verdict := nsfwVerdictJSON{
		IsSafe:     res.IsSafe(),
		Reason:     fmt.Sprintf("Image classified as %s (nsfw score %.2f)", res.Label, res.NSFWScore),
		Confidence: res.Confidence,
		Flags:      []string{},
	}
	if res.IsNSFW {
		verdict.Flags = []string{"nsfw"}
	}
	if verdict.Confidence <= 0 {
		verdict.Confidence = res.NSFWScore
		if res.NormalScore > verdict.Confidence {
			verdict.Confidence = res.NormalScore
		}
	}

	out, err := json.Marshal(verdict)
	if err != nil {
		return "", fmt.Errorf("%w: marshal verdict: %w", ErrResponse, err)
	}
	return string(out), nil
}
