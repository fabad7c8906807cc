package moderator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-kratos/kratos/v2/log"

	"modgate/internal/pkg/classifier"
)

// TextEvaluator classifies one piece of text into an ItemVerdict.
type TextEvaluator struct {
	classifier classifier.Text
	policy     FailPolicy
	log        *log.Helper
}

// NewTextEvaluator creates a new TextEvaluator.
func NewTextEvaluator(c classifier.Text, policy FailPolicy, logger log.Logger) *TextEvaluator {
	return &TextEvaluator{
		classifier: c,
		policy:     policy,
		log:        log.NewHelper(logger),
	}
}

// Evaluate classifies text. Blank text is a valid no-op and yields nil: it
// contributes nothing to the aggregate. Classifier failures degrade to the
// policy default instead of propagating.
func (e *TextEvaluator) Evaluate(ctx context.Context, text string) *ItemVerdict {
	return e.evaluate(ctx, text, "text analysis")
}

// evaluate lets callers name the stage that produced the text, so a
// degraded verdict says whether direct input or an audio transcript failed.
func (e *TextEvaluator) evaluate(ctx context.Context, text, stage string) *ItemVerdict {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	result, err := e.classifier.ClassifyText(ctx, text)
	if err != nil {
		e.log.Warnf("%s failed: %v", stage, err)
		v := e.policy.degraded(0, stage)
		return &v
	}
	return verdictFromText(result)
}

// verdictFromText maps classifier output to a verdict. A safe text carries
// confidence 1.0; an unsafe one takes the highest score among the triggered
// categories.
func verdictFromText(result *classifier.TextResult) *ItemVerdict {
	if len(result.Flagged) == 0 {
		return &ItemVerdict{
			IsSafe:     true,
			Reason:     "Content is safe",
			Confidence: 1.0,
			Flags:      []string{},
		}
	}

	flags := make([]string, len(result.Flagged))
	copy(flags, result.Flagged)
	sort.Strings(flags)

	var confidence float64
	for _, f := range result.Flagged {
		if s := result.Scores[f]; s > confidence {
			confidence = s
		}
	}

	return &ItemVerdict{
		IsSafe:     false,
		Reason:     fmt.Sprintf("Content flagged for: %s", strings.Join(flags, ", ")),
		Confidence: clamp01(confidence),
		Flags:      flags,
	}
}
