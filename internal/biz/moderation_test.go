package biz

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/go-kratos/kratos/v2/log"

	"modgate/internal/pkg/classifier"
	"modgate/internal/pkg/media"
	"modgate/internal/pkg/moderator"
	"modgate/internal/pkg/xapi"
)

type stubText struct {
	result *classifier.TextResult
	err    error
}

func (s *stubText) ClassifyText(context.Context, string) (*classifier.TextResult, error) {
	return s.result, s.err
}

type stubVision struct {
	replies map[string]string // by image URL
	err     error
}

func (s *stubVision) ClassifyImage(_ context.Context, img classifier.ImageInput, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if r, ok := s.replies[img.URL]; ok {
		return r, nil
	}
	return `{"isSafe": true, "reason": "clean", "confidence": 0.9, "flags": []}`, nil
}

type stubFetcher struct{ err error }

func (s *stubFetcher) Fetch(context.Context, media.Reference) (*media.TempFile, error) {
	if s.err == nil {
		s.err = errors.New("no fetcher in this test")
	}
	return nil, s.err
}

type stubToolkit struct{}

func (stubToolkit) ExtractFrame(context.Context, string, float64, string) error {
	return errors.New("unused")
}
func (stubToolkit) ExtractAudio(context.Context, string, string) error { return errors.New("unused") }
func (stubToolkit) Probe(context.Context, string) (*media.ProbeInfo, error) {
	return nil, errors.New("unused")
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string) (string, error) { return "", nil }

func newUsecase(t *testing.T, textC classifier.Text, vision classifier.Vision, fetcher moderator.MediaFetcher) *ModerationUsecase {
	t.Helper()
	logger := log.DefaultLogger
	text := moderator.NewTextEvaluator(textC, moderator.FailOpen, logger)
	images := moderator.NewImageEvaluator(vision, moderator.FailOpen, 4, logger)
	videos := moderator.NewVideoAnalyzer(fetcher, stubToolkit{}, images, text, stubTranscriber{},
		moderator.VideoConfig{TempDir: t.TempDir()}, moderator.FailOpen, logger)
	return NewModerationUsecase(text, images, videos, 6, logger)
}

func safeText() *stubText {
	return &stubText{result: &classifier.TextResult{Scores: map[string]float64{}}}
}

func TestModerateGreetingIsSafe(t *testing.T) {
	uc := newUsecase(t, safeText(), &stubVision{}, &stubFetcher{})

	result, err := uc.Moderate(context.Background(), "Hello, how are you today?", nil, nil)
	if err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if !result.IsSafe {
		t.Error("IsSafe = false, want true")
	}
	if len(result.Flags) != 0 {
		t.Errorf("Flags = %v, want none", result.Flags)
	}
}

func TestModerateEmptyInput(t *testing.T) {
	uc := newUsecase(t, safeText(), &stubVision{}, &stubFetcher{})

	result, err := uc.Moderate(context.Background(), "", nil, nil)
	if err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if !result.IsSafe || result.Confidence != 1.0 || result.Reason != "No content to evaluate" {
		t.Errorf("result = %+v", result)
	}
}

func TestModerateHateSpeechText(t *testing.T) {
	uc := newUsecase(t, &stubText{result: &classifier.TextResult{
		Flagged: []string{"hate"},
		Scores:  map[string]float64{"hate": 0.95},
	}}, &stubVision{}, &stubFetcher{})

	result, err := uc.Moderate(context.Background(), "hateful content", nil, nil)
	if err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if result.IsSafe {
		t.Error("IsSafe = true, want false")
	}
	if len(result.Flags) != 1 || result.Flags[0] != "hate" {
		t.Errorf("Flags = %v, want [hate]", result.Flags)
	}
	if result.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95 (max triggered score, sole contributor)", result.Confidence)
	}
}

func TestModerateTextPlusUnsafeImage(t *testing.T) {
	uc := newUsecase(t, safeText(), &stubVision{replies: map[string]string{
		"https://img.example/bad.jpg": `{"isSafe": false, "reason": "graphic violence", "confidence": 0.8, "flags": ["violence"]}`,
	}}, &stubFetcher{})

	result, err := uc.Moderate(context.Background(), "Check this image",
		[]media.Reference{{URL: "https://img.example/bad.jpg"}}, nil)
	if err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if result.IsSafe {
		t.Error("IsSafe = true, want false")
	}
	if len(result.ImageVerdicts) != 1 {
		t.Fatalf("ImageVerdicts = %v", result.ImageVerdicts)
	}
	iv := result.ImageVerdicts[0]
	if len(iv.Flags) != 1 || iv.Flags[0] != "violence" {
		t.Errorf("image flags = %v", iv.Flags)
	}
	// Mean of safe text (1.0) and unsafe image (0.8).
	if want := (1.0 + 0.8) / 2; result.Confidence != want {
		t.Errorf("Confidence = %v, want %v", result.Confidence, want)
	}
}

func TestModerateImageIndexPreserved(t *testing.T) {
	uc := newUsecase(t, safeText(), &stubVision{replies: map[string]string{
		"https://img.example/1.jpg": `not parseable at all`,
	}}, &stubFetcher{})

	refs := []media.Reference{
		{URL: "https://img.example/0.jpg"},
		{URL: "https://img.example/1.jpg"},
		{URL: "https://img.example/2.jpg"},
	}
	result, err := uc.Moderate(context.Background(), "", refs, nil)
	if err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if len(result.ImageVerdicts) != 3 {
		t.Fatalf("got %d image verdicts", len(result.ImageVerdicts))
	}
	for i, v := range result.ImageVerdicts {
		if v.Index != i {
			t.Errorf("ImageVerdicts[%d].Index = %d", i, v.Index)
		}
	}
	degraded := result.ImageVerdicts[1]
	if !degraded.IsSafe || len(degraded.Flags) != 1 {
		t.Errorf("degraded verdict = %+v", degraded)
	}
}

func TestModerateVideoFetchFailure(t *testing.T) {
	uc := newUsecase(t, safeText(), &stubVision{}, &stubFetcher{err: errors.New("transport error")})

	result, err := uc.Moderate(context.Background(), "",
		nil, []media.Reference{{URL: "http://example.com/v.mp4"}})
	if err != nil {
		t.Fatalf("Moderate() error = %v, want verdict not error", err)
	}
	if len(result.VideoVerdicts) != 1 {
		t.Fatalf("VideoVerdicts = %v", result.VideoVerdicts)
	}
	vv := result.VideoVerdicts[0]
	if !vv.IsSafe {
		t.Error("video verdict IsSafe = false, want fail-open true")
	}
	if len(vv.Flags) == 0 {
		t.Error("video verdict missing error marker flag")
	}
	if len(vv.FrameVerdicts) != 0 {
		t.Errorf("FrameVerdicts = %v, want empty", vv.FrameVerdicts)
	}
}

func TestModerateCancelledContext(t *testing.T) {
	uc := newUsecase(t, safeText(), &stubVision{}, &stubFetcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := uc.Moderate(ctx, "some text", nil, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

type stubPoster struct {
	id        string
	err       error
	uploadErr error
	calls     int
	uploads   int
	mediaIDs  []string // media ids on the posted tweet
}

func (s *stubPoster) PostTweet(_ context.Context, t xapi.Tweet) (string, error) {
	s.calls++
	s.mediaIDs = t.MediaIDs
	return s.id, s.err
}

func (s *stubPoster) UploadMedia(context.Context, []byte) (string, error) {
	s.uploads++
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return fmt.Sprintf("media-%d", s.uploads), nil
}

func imageSource(t *testing.T) MediaSource {
	t.Helper()
	return media.NewFetcher(media.FetcherConfig{TempDir: t.TempDir()}, log.DefaultLogger)
}

func TestXPostApprovedContent(t *testing.T) {
	uc := newUsecase(t, safeText(), &stubVision{}, &stubFetcher{})
	poster := &stubPoster{id: "111"}
	xp := NewXPostUsecase(uc, poster, imageSource(t), log.DefaultLogger)

	result, err := xp.Post(context.Background(), "nice post", nil, xapi.Tweet{})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if !result.Posted || result.TweetID != "111" {
		t.Errorf("result = %+v", result)
	}
	if poster.uploads != 0 {
		t.Errorf("uploads = %d for text-only post", poster.uploads)
	}
}

func TestXPostRejectedContentNotPosted(t *testing.T) {
	uc := newUsecase(t, &stubText{result: &classifier.TextResult{
		Flagged: []string{"hate"},
		Scores:  map[string]float64{"hate": 0.9},
	}}, &stubVision{}, &stubFetcher{})
	poster := &stubPoster{id: "111"}
	xp := NewXPostUsecase(uc, poster, imageSource(t), log.DefaultLogger)

	result, err := xp.Post(context.Background(), "hateful post",
		[]media.Reference{{Base64: base64.StdEncoding.EncodeToString([]byte("img")), Mime: "image/jpeg"}}, xapi.Tweet{})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if result.Posted {
		t.Error("Posted = true for rejected content")
	}
	if poster.calls != 0 {
		t.Errorf("poster called %d times for rejected content", poster.calls)
	}
	if poster.uploads != 0 {
		t.Errorf("uploads = %d for rejected content, want 0", poster.uploads)
	}
	if result.Moderation == nil || result.Moderation.IsSafe {
		t.Errorf("Moderation = %+v", result.Moderation)
	}
}

func TestXPostUploadsApprovedImages(t *testing.T) {
	uc := newUsecase(t, safeText(), &stubVision{}, &stubFetcher{})
	poster := &stubPoster{id: "42"}
	xp := NewXPostUsecase(uc, poster, imageSource(t), log.DefaultLogger)

	images := []media.Reference{
		{Base64: base64.StdEncoding.EncodeToString([]byte("first image")), Mime: "image/jpeg"},
		{Base64: base64.StdEncoding.EncodeToString([]byte("second image")), Mime: "image/png"},
	}
	result, err := xp.Post(context.Background(), "look at these", images, xapi.Tweet{})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if !result.Posted || result.TweetID != "42" {
		t.Errorf("result = %+v", result)
	}
	if poster.uploads != 2 {
		t.Errorf("uploads = %d, want 2", poster.uploads)
	}
	want := []string{"media-1", "media-2"}
	if len(poster.mediaIDs) != len(want) {
		t.Fatalf("tweet media ids = %v, want %v", poster.mediaIDs, want)
	}
	for i := range want {
		if poster.mediaIDs[i] != want[i] {
			t.Errorf("mediaIDs[%d] = %q, want %q", i, poster.mediaIDs[i], want[i])
		}
	}
}

func TestXPostUploadFailureAbortsPost(t *testing.T) {
	uc := newUsecase(t, safeText(), &stubVision{}, &stubFetcher{})
	poster := &stubPoster{id: "42", uploadErr: errors.New("upload refused")}
	xp := NewXPostUsecase(uc, poster, imageSource(t), log.DefaultLogger)

	images := []media.Reference{{Base64: base64.StdEncoding.EncodeToString([]byte("img")), Mime: "image/jpeg"}}
	if _, err := xp.Post(context.Background(), "with image", images, xapi.Tweet{}); err == nil {
		t.Fatal("expected error when image upload fails")
	}
	if poster.calls != 0 {
		t.Errorf("tweet posted despite upload failure, calls = %d", poster.calls)
	}
}
