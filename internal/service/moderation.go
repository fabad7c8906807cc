package service

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/errors"
	khttp "github.com/go-kratos/kratos/v2/transport/http"

	"modgate/internal/biz"
	"modgate/internal/conf"
	"modgate/internal/pkg/media"
	"modgate/internal/pkg/moderator"
	"modgate/internal/pkg/xapi"
)

// MediaRef is the wire form of one image or video reference.
type MediaRef struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
	Mime   string `json:"mime,omitempty"`
}

// ModerateRequest is the body of POST /v1/moderate.
type ModerateRequest struct {
	Text   string     `json:"text"`
	Images []MediaRef `json:"images"`
	Videos []MediaRef `json:"videos"`
}

// ModerateResponse maps the verdict to an accept/reject outcome and carries
// the full decision for callers that want the detail.
type ModerateResponse struct {
	Result     string            `json:"result"` // "ok" | "rejected"
	Moderation *moderator.Result `json:"moderation"`
}

// XPostRequest is the body of POST /v1/x-post.
type XPostRequest struct {
	Text             string     `json:"text"`
	Images           []MediaRef `json:"images"`
	InReplyToTweetID string     `json:"in_reply_to_tweet_id,omitempty"`
	QuoteTweetID     string     `json:"quote_tweet_id,omitempty"`
	MediaIDs         []string   `json:"media_ids,omitempty"`
}

// XPostResponse reports whether the content was published.
type XPostResponse struct {
	Result     string            `json:"result"`
	Posted     bool              `json:"posted"`
	TweetID    string            `json:"tweet_id,omitempty"`
	Moderation *moderator.Result `json:"moderation"`
}

// ModerationService exposes the moderation gateway over HTTP.
type ModerationService struct {
	uc     *biz.ModerationUsecase
	xpost  *biz.XPostUsecase // nil when posting is disabled
	limits conf.Moderation
}

// NewModerationService creates a new ModerationService.
func NewModerationService(uc *biz.ModerationUsecase, xpost *biz.XPostUsecase, limits conf.Moderation) *ModerationService {
	return &ModerationService{uc: uc, xpost: xpost, limits: limits}
}

// Moderate handles POST /v1/moderate.
func (s *ModerationService) Moderate(ctx khttp.Context) error {
	var req ModerateRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.BadRequest("INVALID_BODY", err.Error())
	}
	images, videos, err := s.resolveMedia(req.Images, req.Videos)
	if err != nil {
		return err
	}

	result, merr := s.uc.Moderate(ctx, req.Text, images, videos)
	if merr != nil {
		return merr
	}
	return ctx.Result(200, toModerateResponse(result))
}

// XPost handles POST /v1/x-post: moderate first, publish on pass.
func (s *ModerationService) XPost(ctx khttp.Context) error {
	if s.xpost == nil {
		return errors.New(501, "XPOST_DISABLED", "social posting is not configured")
	}
	var req XPostRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.BadRequest("INVALID_BODY", err.Error())
	}
	if req.Text == "" {
		return errors.BadRequest("INVALID_BODY", "text is required")
	}
	images, _, err := s.resolveMedia(req.Images, nil)
	if err != nil {
		return err
	}

	result, perr := s.xpost.Post(ctx, req.Text, images, xapi.Tweet{
		InReplyToTweetID: req.InReplyToTweetID,
		QuoteTweetID:     req.QuoteTweetID,
		MediaIDs:         req.MediaIDs,
	})
	if perr != nil {
		return perr
	}

	resp := XPostResponse{
		Result:     verdictLabel(result.Moderation.IsSafe),
		Posted:     result.Posted,
		TweetID:    result.TweetID,
		Moderation: result.Moderation,
	}
	return ctx.Result(200, resp)
}

// Health handles GET /healthz.
func (s *ModerationService) Health(ctx khttp.Context) error {
	return ctx.Result(200, map[string]string{"status": "ok"})
}

// resolveMedia validates wire references and converts them, enforcing the
// per-request media caps before any fetch happens.
func (s *ModerationService) resolveMedia(images, videos []MediaRef) ([]media.Reference, []media.Reference, error) {
	if s.limits.MaxImages > 0 && len(images) > s.limits.MaxImages {
		return nil, nil, errors.BadRequest("TOO_MANY_IMAGES",
			fmt.Sprintf("at most %d images per request", s.limits.MaxImages))
	}
	if s.limits.MaxVideos > 0 && len(videos) > s.limits.MaxVideos {
		return nil, nil, errors.BadRequest("TOO_MANY_VIDEOS",
			fmt.Sprintf("at most %d videos per request", s.limits.MaxVideos))
	}

	imageRefs, err := toReferences(images, "image")
	if err != nil {
		return nil, nil, err
	}
	videoRefs, err := toReferences(videos, "video")
	if err != nil {
		return nil, nil, err
	}
	return imageRefs, videoRefs, nil
}

func toReferences(refs []MediaRef, kind string) ([]media.Reference, error) {
	out := make([]media.Reference, len(refs))
	for i, r := range refs {
		ref := media.Reference{URL: r.URL, Base64: r.Base64, Mime: r.Mime}
		if err := ref.Validate(); err != nil {
			return nil, errors.BadRequest("INVALID_MEDIA",
				fmt.Sprintf("%s %d: exactly one of url or base64 must be set", kind, i))
		}
		out[i] = ref
	}
	return out, nil
}

func toModerateResponse(result *moderator.Result) ModerateResponse {
	return ModerateResponse{
		Result:     verdictLabel(result.IsSafe),
		Moderation: result,
	}
}

func verdictLabel(isSafe bool) string {
	if isSafe {
		return "ok"
	}
	return "rejected"
}
