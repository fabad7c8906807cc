package biz

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2/log"

	"modgate/internal/pkg/media"
	"modgate/internal/pkg/moderator"
	"modgate/internal/pkg/xapi"
)

// Poster publishes approved content. Satisfied by xapi.Client.
type Poster interface {
	PostTweet(ctx context.Context, t xapi.Tweet) (string, error)
	UploadMedia(ctx context.Context, data []byte) (string, error)
}

// MediaSource resolves a media reference into an owned temp file.
// Satisfied by media.Fetcher.
type MediaSource interface {
	Fetch(ctx context.Context, ref media.Reference) (*media.TempFile, error)
}

// X caps image uploads at 5MB.
const maxUploadBytes = 5 * 1024 * 1024

// XPostResult is the outcome of a moderate-then-post request.
type XPostResult struct {
	Moderation *moderator.Result
	Posted     bool
	TweetID    string
}

// XPostUsecase gates social posting behind moderation: content is only
// forwarded to the posting API after a passing verdict.
type XPostUsecase struct {
	moderation *ModerationUsecase
	poster     Poster
	media      MediaSource
	log        *log.Helper
}

// NewXPostUsecase creates a new XPostUsecase.
func NewXPostUsecase(moderation *ModerationUsecase, poster Poster, source MediaSource, logger log.Logger) *XPostUsecase {
	return &XPostUsecase{
		moderation: moderation,
		poster:     poster,
		media:      source,
		log:        log.NewHelper(logger),
	}
}

// Post moderates the content and, if it passes, uploads its images and
// publishes it. A rejected verdict is not an error: the result reports
// Posted=false with the moderation outcome attached.
func (uc *XPostUsecase) Post(ctx context.Context, text string, images []media.Reference, t xapi.Tweet) (*XPostResult, error) {
	result, err := uc.moderation.Moderate(ctx, text, images, nil)
	if err != nil {
		return nil, err
	}
	if !result.IsSafe {
		uc.log.Infof("post rejected: %s", result.Reason)
		return &XPostResult{Moderation: result}, nil
	}

	ids, err := uc.uploadImages(ctx, images)
	if err != nil {
		return nil, err
	}
	t.MediaIDs = append(t.MediaIDs, ids...)

	t.Text = text
	id, err := uc.poster.PostTweet(ctx, t)
	if err != nil {
		return nil, err
	}
	uc.log.Infof("posted tweet %s", id)
	return &XPostResult{Moderation: result, Posted: true, TweetID: id}, nil
}

// uploadImages resolves each approved image and uploads it, returning the
// media ids to attach. Any failure aborts the post: publishing a tweet
// that silently lost its images would misrepresent the content that was
// approved.
func (uc *XPostUsecase) uploadImages(ctx context.Context, images []media.Reference) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(images))
	for i, ref := range images {
		data, err := uc.readImage(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i, err)
		}
		if len(data) > maxUploadBytes {
			return nil, fmt.Errorf("image %d: %d bytes exceeds the %d byte upload limit", i, len(data), maxUploadBytes)
		}
		id, err := uc.poster.UploadMedia(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("image %d: upload: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (uc *XPostUsecase) readImage(ctx context.Context, ref media.Reference) ([]byte, error) {
	tf, err := uc.media.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer tf.Close()
	return os.ReadFile(tf.Path())
}
