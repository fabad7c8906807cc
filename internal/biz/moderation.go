package biz

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"

	"modgate/internal/pkg/media"
	"modgate/internal/pkg/moderator"
)

// ModerationUsecase is the single entry point for content moderation. It
// holds only immutable configuration and stateless evaluators, so one
// instance serves all requests concurrently.
type ModerationUsecase struct {
	text          *moderator.TextEvaluator
	images        *moderator.ImageEvaluator
	videos        *moderator.VideoAnalyzer
	maxConcurrent int
	log           *log.Helper
}

// NewModerationUsecase creates a new ModerationUsecase. maxConcurrent
// bounds how many items (text, images, videos) are in flight at once so a
// large request cannot flood the downstream classifiers.
func NewModerationUsecase(
	text *moderator.TextEvaluator,
	images *moderator.ImageEvaluator,
	videos *moderator.VideoAnalyzer,
	maxConcurrent int,
	logger log.Logger,
) *ModerationUsecase {
	if maxConcurrent <= 0 {
		maxConcurrent = 6
	}
	return &ModerationUsecase{
		text:          text,
		images:        images,
		videos:        videos,
		maxConcurrent: maxConcurrent,
		log:           log.NewHelper(logger),
	}
}

// Moderate evaluates text, images and videos and reduces everything into
// one decision. Per-item failures degrade inside their evaluators; the only
// error this returns is context cancellation, in which case no partial
// result is produced.
func (uc *ModerationUsecase) Moderate(ctx context.Context, text string, images, videos []media.Reference) (*moderator.Result, error) {
	uc.log.Debugf("moderate: textLen=%d images=%d videos=%d", len(text), len(images), len(videos))

	var (
		textVerdict   *moderator.ItemVerdict
		imageVerdicts []moderator.ItemVerdict
		videoVerdicts = make([]moderator.VideoVerdict, len(videos))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.maxConcurrent)
	g.Go(func() error {
		textVerdict = uc.text.Evaluate(gctx, text)
		return nil
	})
	g.Go(func() error {
		imageVerdicts = uc.images.EvaluateRefs(gctx, images)
		return nil
	})
	for i, ref := range videos {
		i, ref := i, ref
		g.Go(func() error {
			videoVerdicts[i] = uc.videos.Analyze(gctx, ref, i)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := moderator.Combine(textVerdict, imageVerdicts, videoVerdicts)
	uc.log.Infof("moderate: isSafe=%t confidence=%.2f flags=%v", result.IsSafe, result.Confidence, result.Flags)
	return &result, nil
}
