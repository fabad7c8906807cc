package moderator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-kratos/kratos/v2/log"

	"modgate/internal/pkg/classifier"
	"modgate/internal/pkg/media"
)

// visionInstruction is the prompt sent alongside every image. Providers are
// expected to answer with exactly this JSON shape.
const visionInstruction = `Analyze this image for inappropriate content. Return a JSON response with: {"isSafe": boolean, "reason": string, "confidence": number, "flags": string[]}`

// ImageEvaluator classifies images through a vision provider and normalizes
// the freeform reply into ItemVerdicts.
type ImageEvaluator struct {
	vision  classifier.Vision
	policy  FailPolicy
	workers int
	log     *log.Helper
}

// NewImageEvaluator creates a new ImageEvaluator. workers bounds concurrent
// provider calls in EvaluateAll.
func NewImageEvaluator(vision classifier.Vision, policy FailPolicy, workers int, logger log.Logger) *ImageEvaluator {
	if workers <= 0 {
		workers = 4
	}
	return &ImageEvaluator{
		vision:  vision,
		policy:  policy,
		workers: workers,
		log:     log.NewHelper(logger),
	}
}

// Evaluate classifies a single image. Transport and parse failures both
// degrade to the policy default; nothing propagates.
func (e *ImageEvaluator) Evaluate(ctx context.Context, img classifier.ImageInput, index int) ItemVerdict {
	reply, err := e.vision.ClassifyImage(ctx, img, visionInstruction)
	if err != nil {
		e.log.Warnf("image %d classification failed: %v", index, err)
		return e.policy.degraded(index, "image analysis")
	}

	parsed, err := parseVisionReply(reply)
	if err != nil {
		e.log.Warnf("image %d reply unparsable: %v", index, err)
		return e.policy.degraded(index, "image analysis")
	}

	v := ItemVerdict{
		Index:      index,
		IsSafe:     parsed.IsSafe,
		Reason:     parsed.Reason,
		Confidence: clamp01(parsed.Confidence),
		Flags:      parsed.Flags,
	}
	if v.Confidence == 0 {
		v.Confidence = degradedConfidence
	}
	if v.Flags == nil {
		v.Flags = []string{}
	}
	if v.Reason == "" {
		if v.IsSafe {
			v.Reason = "Content is safe"
		} else {
			v.Reason = "Content flagged as inappropriate"
		}
	}
	return v
}

// EvaluateAll classifies every image with a bounded worker pool. Verdict
// order matches input order regardless of completion order.
func (e *ImageEvaluator) EvaluateAll(ctx context.Context, imgs []classifier.ImageInput) []ItemVerdict {
	if len(imgs) == 0 {
		return []ItemVerdict{}
	}

	type job struct {
		index int
		img   classifier.ImageInput
	}
	jobs := make(chan job)
	results := make([]ItemVerdict, len(imgs))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for j := range jobs {
			select {
			case <-ctx.Done():
				results[j.index] = e.policy.degraded(j.index, "image analysis")
				continue
			default:
			}
			results[j.index] = e.Evaluate(ctx, j.img, j.index)
		}
	}

	workerCount := e.workers
	if workerCount > len(imgs) {
		workerCount = len(imgs)
	}
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go worker()
	}
	for i, img := range imgs {
		jobs <- job{index: i, img: img}
	}
	close(jobs)
	wg.Wait()

	return results
}

// EvaluateRefs resolves caller-supplied references into classifier inputs
// and evaluates them. An invalid or undecodable reference degrades that one
// slot without touching the others; indices always follow input positions.
func (e *ImageEvaluator) EvaluateRefs(ctx context.Context, refs []media.Reference) []ItemVerdict {
	verdicts := make([]ItemVerdict, len(refs))
	inputs := make([]classifier.ImageInput, 0, len(refs))
	positions := make([]int, 0, len(refs))

	for i, ref := range refs {
		if err := ref.Validate(); err != nil {
			e.log.Warnf("image %d reference invalid: %v", i, err)
			verdicts[i] = e.policy.degraded(i, "image fetch")
			continue
		}
		if ref.URL != "" {
			inputs = append(inputs, classifier.ImageInput{URL: ref.URL})
			positions = append(positions, i)
			continue
		}
		data, err := base64.StdEncoding.DecodeString(ref.Base64)
		if err != nil {
			e.log.Warnf("image %d payload undecodable: %v", i, err)
			verdicts[i] = e.policy.degraded(i, "image decode")
			continue
		}
		inputs = append(inputs, classifier.ImageInput{Data: data, Mime: ref.Mime})
		positions = append(positions, i)
	}

	for j, v := range e.EvaluateAll(ctx, inputs) {
		i := positions[j]
		v.Index = i
		verdicts[i] = v
	}
	return verdicts
}

// visionReply is the JSON shape providers answer the instruction with.
type visionReply struct {
	IsSafe     bool     `json:"isSafe"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
	Flags      []string `json:"flags"`
}

// parseVisionReply parses a provider reply in two stages: direct JSON after
// stripping code fences, then extraction of the outermost brace pair. Chat
// models routinely wrap the JSON in markdown or prose.
func parseVisionReply(reply string) (*visionReply, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed visionReply
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		return &parsed, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &parsed); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("%w: no JSON object in reply %q", classifier.ErrResponse, truncate(reply, 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
