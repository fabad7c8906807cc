// Package moderator implements the verdict pipeline: per-item evaluation of
// text, images and videos, and the reduction of those verdicts into one
// moderation decision.
package moderator

import "fmt"

// FailPolicy decides what a verdict degrades to when analysis itself fails.
type FailPolicy int

const (
	// FailOpen defaults undeterminable content to safe (availability first).
	FailOpen FailPolicy = iota
	// FailClosed defaults undeterminable content to unsafe.
	FailClosed
)

const (
	degradedConfidence = 0.5
	errorFlag          = "analysis_error"
)

// ItemVerdict is the normalized result for one evaluated unit: the text, a
// single image, a video frame or an audio transcript.
type ItemVerdict struct {
	Index      int      `json:"index"`
	IsSafe     bool     `json:"isSafe"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
	Flags      []string `json:"flags"`
}

// VideoMetadata describes the probed container properties of one video.
type VideoMetadata struct {
	DurationSeconds float64 `json:"durationSeconds"`
	FrameCount      int     `json:"frameCount"`
	Resolution      string  `json:"resolution"`
	SizeBytes       int64   `json:"sizeBytes"`
}

// VideoVerdict is the reduced result for one video, carrying its per-frame
// and audio sub-verdicts.
type VideoVerdict struct {
	Index           int           `json:"index"`
	IsSafe          bool          `json:"isSafe"`
	Reason          string        `json:"reason"`
	Confidence      float64       `json:"confidence"`
	Flags           []string      `json:"flags"`
	FrameVerdicts   []ItemVerdict `json:"frameVerdicts"`
	AudioTranscript string        `json:"audioTranscript,omitempty"`
	AudioVerdict    *ItemVerdict  `json:"audioVerdict,omitempty"`
	Metadata        VideoMetadata `json:"metadata"`
}

// Result is the top-level moderation decision.
type Result struct {
	IsSafe        bool           `json:"isSafe"`
	Reason        string         `json:"reason"`
	Confidence    float64        `json:"confidence"`
	Flags         []string       `json:"flags"`
	ImageVerdicts []ItemVerdict  `json:"imageVerdicts"`
	VideoVerdicts []VideoVerdict `json:"videoVerdicts"`
}

// degraded builds the verdict substituted when a stage fails. The stage name
// goes into the reason so callers can tell which step broke.
func (p FailPolicy) degraded(index int, stage string) ItemVerdict {
	v := ItemVerdict{
		Index:      index,
		IsSafe:     true,
		Reason:     fmt.Sprintf("%s failed, defaulting to safe", stage),
		Confidence: degradedConfidence,
		Flags:      []string{errorFlag},
	}
	if p == FailClosed {
		v.IsSafe = false
		v.Reason = fmt.Sprintf("%s failed, defaulting to unsafe", stage)
	}
	return v
}

// safeDefault reports the IsSafe value this policy assigns to content whose
// analysis failed.
func (p FailPolicy) safeDefault() bool { return p == FailOpen }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func meanConfidence(values []float64) float64 {
	if len(values) == 0 {
		return degradedConfidence
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return clamp01(sum / float64(len(values)))
}

// unionFlags deduplicates flags preserving first-seen order.
func unionFlags(sets ...[]string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, set := range sets {
		for _, f := range set {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
