package moderator

import "strings"

// Combine folds the text verdict, all image verdicts and all video verdicts
// into the top-level decision. Each contributing verdict counts exactly
// once: a video contributes its reduced verdict, not its internal frames.
//
// Safety is AND-of-all-safe (one veto is fatal), confidence is the
// arithmetic mean across contributors, flags are the deduplicated union.
// The reason only names the unsafe contributors so a rejection explains
// itself without noise.
func Combine(text *ItemVerdict, images []ItemVerdict, videos []VideoVerdict) Result {
	contributors := 0
	if text != nil {
		contributors++
	}
	contributors += len(images) + len(videos)
	if contributors == 0 {
		return Result{
			IsSafe:        true,
			Reason:        "No content to evaluate",
			Confidence:    1.0,
			Flags:         []string{},
			ImageVerdicts: []ItemVerdict{},
			VideoVerdicts: []VideoVerdict{},
		}
	}

	isSafe := true
	confidences := make([]float64, 0, contributors)
	flagSets := make([][]string, 0, contributors)
	var unsafeReasons []string

	add := func(safe bool, confidence float64, flags []string, reason string) {
		if !safe {
			isSafe = false
			if reason != "" {
				unsafeReasons = append(unsafeReasons, reason)
			}
		}
		confidences = append(confidences, confidence)
		flagSets = append(flagSets, flags)
	}

	if text != nil {
		add(text.IsSafe, text.Confidence, text.Flags, text.Reason)
	}
	for _, v := range images {
		add(v.IsSafe, v.Confidence, v.Flags, v.Reason)
	}
	for _, v := range videos {
		add(v.IsSafe, v.Confidence, v.Flags, v.Reason)
	}

	reason := "All content is safe"
	if !isSafe {
		reason = strings.Join(unsafeReasons, "; ")
	}

	if images == nil {
		images = []ItemVerdict{}
	}
	if videos == nil {
		videos = []VideoVerdict{}
	}
	return Result{
		IsSafe:        isSafe,
		Reason:        reason,
		Confidence:    meanConfidence(confidences),
		Flags:         unionFlags(flagSets...),
		ImageVerdicts: images,
		VideoVerdicts: videos,
	}
}
