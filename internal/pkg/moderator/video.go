package moderator

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"modgate/internal/pkg/classifier"
	"modgate/internal/pkg/hash"
	"modgate/internal/pkg/media"
)

// MediaFetcher resolves a media reference into an owned temp file.
type MediaFetcher interface {
	Fetch(ctx context.Context, ref media.Reference) (*media.TempFile, error)
}

// MediaToolkit is the external media capability: frame grabs, audio
// extraction and container probing.
type MediaToolkit interface {
	ExtractFrame(ctx context.Context, videoPath string, atSeconds float64, outPath string) error
	ExtractAudio(ctx context.Context, videoPath, outPath string) error
	Probe(ctx context.Context, videoPath string) (*media.ProbeInfo, error)
}

// VideoConfig holds configuration for video analysis.
type VideoConfig struct {
	MaxFrames      int     // hard cap on sampled frames per video
	FrameInterval  float64 // seconds between samples, starting at t=0
	DedupThreshold int     // pHash Hamming distance; negative disables dedup
	EnableAudio    bool    // extract and transcribe the audio track
	TempDir        string  // scratch dir for frame/audio files
}

// DefaultVideoConfig returns default configuration.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		MaxFrames:      10,
		FrameInterval:  2.0,
		DedupThreshold: 8,
		EnableAudio:    true,
	}
}

// VideoAnalyzer runs the per-video pipeline: fetch, probe, frame sampling,
// audio transcription, per-artifact evaluation and reduction into one
// VideoVerdict. No failure inside the pipeline reaches the caller.
type VideoAnalyzer struct {
	fetcher     MediaFetcher
	tools       MediaToolkit
	images      *ImageEvaluator
	text        *TextEvaluator
	transcriber classifier.Transcriber
	hasher      *hash.PerceptualHasher
	config      VideoConfig
	policy      FailPolicy
	log         *log.Helper
}

// NewVideoAnalyzer creates a new VideoAnalyzer.
func NewVideoAnalyzer(
	fetcher MediaFetcher,
	tools MediaToolkit,
	images *ImageEvaluator,
	text *TextEvaluator,
	transcriber classifier.Transcriber,
	config VideoConfig,
	policy FailPolicy,
	logger log.Logger,
) *VideoAnalyzer {
	if config.MaxFrames <= 0 {
		config.MaxFrames = DefaultVideoConfig().MaxFrames
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultVideoConfig().FrameInterval
	}
	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	return &VideoAnalyzer{
		fetcher:     fetcher,
		tools:       tools,
		images:      images,
		text:        text,
		transcriber: transcriber,
		hasher:      hash.NewPerceptualHasher(),
		config:      config,
		policy:      policy,
		log:         log.NewHelper(logger),
	}
}

// Analyze evaluates one video. Every pipeline failure is absorbed here and
// mapped to a policy-default verdict; only context cancellation surfaces as
// a degraded verdict too, since callers abandon the whole request anyway.
func (a *VideoAnalyzer) Analyze(ctx context.Context, ref media.Reference, index int) VideoVerdict {
	verdict, err := a.analyze(ctx, ref)
	if err != nil {
		a.log.Warnf("video %d analysis failed: %v", index, err)
		return a.failedVerdict(index)
	}
	verdict.Index = index
	return *verdict
}

func (a *VideoAnalyzer) failedVerdict(index int) VideoVerdict {
	reason := "Video analysis failed, defaulting to safe"
	if a.policy == FailClosed {
		reason = "Video analysis failed, defaulting to unsafe"
	}
	return VideoVerdict{
		Index:         index,
		IsSafe:        a.policy.safeDefault(),
		Reason:        reason,
		Confidence:    degradedConfidence,
		Flags:         []string{errorFlag},
		FrameVerdicts: []ItemVerdict{},
		Metadata:      VideoMetadata{Resolution: "unknown"},
	}
}

func (a *VideoAnalyzer) analyze(ctx context.Context, ref media.Reference) (*VideoVerdict, error) {
	tf, err := a.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer tf.Close()

	meta := VideoMetadata{Resolution: "unknown"}
	info, err := a.tools.Probe(ctx, tf.Path())
	if err != nil {
		// Probe failure degrades metadata to zeros; frames are still
		// attempted up to the cap.
		a.log.Warnf("probe failed: %v", err)
		info = &media.ProbeInfo{}
	}
	meta.DurationSeconds = info.DurationSeconds
	meta.Resolution = info.Resolution()
	meta.SizeBytes = info.SizeBytes

	var (
		frames       []ItemVerdict
		transcript   string
		audioVerdict *ItemVerdict
	)
	// The fetched file is read-only from here on, so both stages can run
	// against it at once.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		frames = a.analyzeFrames(gctx, tf.Path(), info.DurationSeconds)
		return nil
	})
	if a.config.EnableAudio && a.transcriber != nil {
		g.Go(func() error {
			transcript, audioVerdict = a.analyzeAudio(gctx, tf.Path())
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta.FrameCount = len(frames)
	verdict := a.reduce(frames, transcript, audioVerdict, meta)
	return verdict, nil
}

// frameBudget computes how many samples to take: one every FrameInterval
// seconds up to MaxFrames, bounded by duration.
func (a *VideoAnalyzer) frameBudget(durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 0
	}
	n := int(math.Ceil(durationSeconds / a.config.FrameInterval))
	if n > a.config.MaxFrames {
		n = a.config.MaxFrames
	}
	return n
}

// analyzeFrames extracts samples sequentially, dedups near-identical frames
// by pHash, evaluates the distinct ones concurrently and reassembles the
// verdicts in frame order. A failed extraction degrades that one slot and
// never aborts the rest.
func (a *VideoAnalyzer) analyzeFrames(ctx context.Context, videoPath string, durationSeconds float64) []ItemVerdict {
	n := a.frameBudget(durationSeconds)
	if n == 0 {
		return []ItemVerdict{}
	}

	verdicts := make([]ItemVerdict, n)
	var reps []frameSample
	dupOf := make(map[int]int) // frame index -> representative frame index

	for i := 0; i < n; i++ {
		at := float64(i) * a.config.FrameInterval
		framePath := filepath.Join(a.config.TempDir, "frame_"+uuid.NewString()+".jpg")
		if err := a.tools.ExtractFrame(ctx, videoPath, at, framePath); err != nil {
			a.log.Warnf("frame %d at %.1fs failed: %v", i, at, err)
			os.Remove(framePath)
			verdicts[i] = a.policy.degraded(i, "frame extraction")
			continue
		}
		data, err := os.ReadFile(framePath)
		// The frame temp file lives only long enough to read it back.
		os.Remove(framePath)
		if err != nil {
			verdicts[i] = a.policy.degraded(i, "frame extraction")
			continue
		}

		s := frameSample{index: i, img: classifier.ImageInput{Data: data, Mime: "image/jpeg"}}
		if a.config.DedupThreshold >= 0 {
			if h, herr := a.hasher.FromBytes(data); herr == nil {
				s.hash = h
				if rep, ok := findSimilar(reps, h, a.config.DedupThreshold); ok {
					dupOf[i] = rep
					continue
				}
			}
		}
		reps = append(reps, s)
	}

	imgs := make([]classifier.ImageInput, len(reps))
	for j, r := range reps {
		imgs[j] = r.img
	}
	repVerdicts := a.images.EvaluateAll(ctx, imgs)
	for j, r := range reps {
		v := repVerdicts[j]
		v.Index = r.index
		verdicts[r.index] = v
	}
	for i, rep := range dupOf {
		v := verdicts[rep]
		v.Index = i
		verdicts[i] = v
	}
	return verdicts
}

// frameSample is one extracted frame awaiting evaluation.
type frameSample struct {
	index int
	img   classifier.ImageInput
	hash  *hash.ImageHash
}

func findSimilar(reps []frameSample, h *hash.ImageHash, threshold int) (int, bool) {
	for _, r := range reps {
		if r.hash != nil && hash.IsSimilar(h, r.hash, threshold) {
			return r.index, true
		}
	}
	return 0, false
}

// analyzeAudio extracts and transcribes the audio track. Every failure in
// this stage is swallowed: a video without audio (or with a broken track)
// simply contributes no audio verdict.
func (a *VideoAnalyzer) analyzeAudio(ctx context.Context, videoPath string) (string, *ItemVerdict) {
	audioPath := filepath.Join(a.config.TempDir, "audio_"+uuid.NewString()+".mp3")
	if err := a.tools.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		a.log.Infof("audio extraction skipped: %v", err)
		os.Remove(audioPath)
		return "", nil
	}
	af := media.NewTempFile(audioPath)
	defer af.Close()

	transcript, err := a.transcriber.Transcribe(ctx, af.Path())
	if err != nil {
		a.log.Warnf("transcription failed: %v", err)
		return "", nil
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", nil
	}
	return transcript, a.text.evaluate(ctx, transcript, "audio transcript analysis")
}

// reduce folds frame and audio verdicts into the video-level decision.
func (a *VideoAnalyzer) reduce(frames []ItemVerdict, transcript string, audio *ItemVerdict, meta VideoMetadata) *VideoVerdict {
	unsafeFrames := 0
	confidences := make([]float64, 0, len(frames)+1)
	flagSets := make([][]string, 0, len(frames)+1)
	for _, v := range frames {
		if !v.IsSafe {
			unsafeFrames++
		}
		confidences = append(confidences, v.Confidence)
		flagSets = append(flagSets, v.Flags)
	}
	if audio != nil {
		confidences = append(confidences, audio.Confidence)
		flagSets = append(flagSets, audio.Flags)
	}

	var reasons []string
	if unsafeFrames > 0 {
		reasons = append(reasons, fmt.Sprintf("%d unsafe frames detected", unsafeFrames))
	}
	if audio != nil && !audio.IsSafe {
		reasons = append(reasons, "Audio content: "+audio.Reason)
	}
	reason := "Video content is safe"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	return &VideoVerdict{
		IsSafe:          unsafeFrames == 0 && (audio == nil || audio.IsSafe),
		Reason:          reason,
		Confidence:      meanConfidence(confidences),
		Flags:           unionFlags(flagSets...),
		FrameVerdicts:   frames,
		AudioTranscript: transcript,
		AudioVerdict:    audio,
		Metadata:        meta,
	}
}
