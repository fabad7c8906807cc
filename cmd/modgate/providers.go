package main

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"modgate/internal/biz"
	"modgate/internal/conf"
	"modgate/internal/pkg/classifier"
	"modgate/internal/pkg/filter"
	"modgate/internal/pkg/media"
	"modgate/internal/pkg/moderator"
	"modgate/internal/pkg/nsfw"
	"modgate/internal/pkg/ratelimit"
	"modgate/internal/pkg/redis"
	"modgate/internal/pkg/xapi"
	"modgate/internal/service"
)

func failPolicy(bc *conf.Bootstrap) moderator.FailPolicy {
	if bc.Moderation.FailOpen {
		return moderator.FailOpen
	}
	return moderator.FailClosed
}

func newOpenAIClient(bc *conf.Bootstrap) *classifier.OpenAIClient {
	p := bc.Providers.OpenAI
	return classifier.NewOpenAIClient(classifier.OpenAIConfig{
		APIKey:          p.APIKey,
		BaseURL:         p.BaseURL,
		ModerationModel: p.ModerationModel,
		VisionModel:     p.VisionModel,
		AudioModel:      p.AudioModel,
		AudioLanguage:   p.AudioLanguage,
		Timeout:         time.Duration(p.TimeoutSeconds) * time.Second,
	})
}

func newTextClassifier(bc *conf.Bootstrap, oc *classifier.OpenAIClient) classifier.Text {
	switch bc.Providers.Text {
	case "guard":
		g := bc.Providers.Guard
		return classifier.NewGuardClient(classifier.GuardConfig{
			BaseURL: g.BaseURL,
			Model:   g.Model,
			APIKey:  g.APIKey,
			Timeout: time.Duration(g.TimeoutSeconds) * time.Second,
		})
	case "local":
		entries := bc.Providers.Blocklist.Entries
		patterns := make([]filter.Pattern, len(entries))
		for i, e := range entries {
			patterns[i] = filter.Pattern{Word: e.Word, Category: e.Category, Score: e.Score}
		}
		return classifier.NewBlocklist(patterns)
	default:
		return oc
	}
}

func newVisionClassifier(bc *conf.Bootstrap, oc *classifier.OpenAIClient) classifier.Vision {
	if bc.Providers.Vision == "nsfw" {
		n := bc.Providers.NSFW
		cfg := nsfw.DefaultConfig()
		cfg.BaseURL = n.BaseURL
		if n.Threshold > 0 {
			cfg.Threshold = n.Threshold
		}
		if n.TimeoutSeconds > 0 {
			cfg.Timeout = time.Duration(n.TimeoutSeconds) * time.Second
		}
		return classifier.NewNSFWVision(nsfw.NewClient(cfg))
	}
	return oc
}

// newTranscriber returns nil when audio analysis is disabled; the video
// analyzer skips the audio stage entirely in that case.
func newTranscriber(bc *conf.Bootstrap, oc *classifier.OpenAIClient) classifier.Transcriber {
	if !bc.Moderation.Video.EnableAudio {
		return nil
	}
	return oc
}

func newTextEvaluator(c classifier.Text, bc *conf.Bootstrap, logger log.Logger) *moderator.TextEvaluator {
	return moderator.NewTextEvaluator(c, failPolicy(bc), logger)
}

func newImageEvaluator(v classifier.Vision, bc *conf.Bootstrap, logger log.Logger) *moderator.ImageEvaluator {
	return moderator.NewImageEvaluator(v, failPolicy(bc), bc.Moderation.Video.ImageWorkers, logger)
}

func newFetcher(bc *conf.Bootstrap, logger log.Logger) *media.Fetcher {
	return media.NewFetcher(media.FetcherConfig{
		TempDir:  bc.Moderation.Video.TempDir,
		MaxBytes: bc.Moderation.Video.MaxFetchBytes,
	}, logger)
}

func newFFmpeg(logger log.Logger) *media.FFmpeg {
	return media.NewFFmpeg(media.DefaultFFmpegConfig(), logger)
}

func newVideoAnalyzer(
	fetcher *media.Fetcher,
	tools *media.FFmpeg,
	images *moderator.ImageEvaluator,
	text *moderator.TextEvaluator,
	transcriber classifier.Transcriber,
	bc *conf.Bootstrap,
	logger log.Logger,
) *moderator.VideoAnalyzer {
	v := bc.Moderation.Video
	return moderator.NewVideoAnalyzer(fetcher, tools, images, text, transcriber, moderator.VideoConfig{
		MaxFrames:      v.MaxFrames,
		FrameInterval:  v.FrameIntervalSeconds,
		DedupThreshold: v.DedupThreshold,
		EnableAudio:    v.EnableAudio,
		TempDir:        v.TempDir,
	}, failPolicy(bc), logger)
}

func newModerationUsecase(
	text *moderator.TextEvaluator,
	images *moderator.ImageEvaluator,
	videos *moderator.VideoAnalyzer,
	bc *conf.Bootstrap,
	logger log.Logger,
) *biz.ModerationUsecase {
	return biz.NewModerationUsecase(text, images, videos, bc.Moderation.MaxConcurrent, logger)
}

// newXPostUsecase returns nil when posting is disabled; the service replies
// 501 on /v1/x-post in that case.
func newXPostUsecase(bc *conf.Bootstrap, moderation *biz.ModerationUsecase, fetcher *media.Fetcher, logger log.Logger) *biz.XPostUsecase {
	if !bc.XAPI.Enabled {
		return nil
	}
	client := xapi.NewClient(xapi.Config{
		BaseURL:       bc.XAPI.BaseURL,
		UploadBaseURL: bc.XAPI.UploadBaseURL,
		BearerToken:   bc.XAPI.BearerToken,
	})
	return biz.NewXPostUsecase(moderation, client, fetcher, logger)
}

func newModerationService(bc *conf.Bootstrap, uc *biz.ModerationUsecase, xpost *biz.XPostUsecase) *service.ModerationService {
	return service.NewModerationService(uc, xpost, bc.Moderation)
}

// newRateLimiter returns nil when rate limiting is disabled.
func newRateLimiter(bc *conf.Bootstrap, logger log.Logger) (*ratelimit.Limiter, error) {
	rl := bc.Server.RateLimit
	if !rl.Enabled {
		return nil, nil
	}
	cache, err := redis.New(bc.Redis.URL)
	if err != nil {
		return nil, err
	}
	return ratelimit.New(cache, ratelimit.Config{
		Max:    rl.Max,
		Window: time.Duration(rl.WindowSeconds) * time.Second,
	}, logger), nil
}
