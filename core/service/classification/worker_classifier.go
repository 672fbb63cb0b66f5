package classification

import (
	"context"

	"github.com/rs/zerolog"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// RuleConfidenceThreshold is the lowest rule confidence accepted without asking the model.
const RuleConfidenceThreshold = 0.8

// ModelPreviewLength bounds the body text sent for classification.
const ModelPreviewLength = 500

// Result carries the classification plus what produced it.
// ModelErr is the raw model failure, if the model was called and failed.
type Result struct {
	Classification *domain.Classification
	Rule           *RuleMatch
	ModelErr       error
}

// Classifier runs rules first and falls back to the model.
type Classifier struct {
	log zerolog.Logger
}

func NewClassifier(log zerolog.Logger) *Classifier {
	return &Classifier{log: log}
}

// Classify always yields a classification. model may be nil when the user has no credentials.
func (c *Classifier) Classify(ctx context.Context, msg *domain.ParsedMessage, flags []string, settings *domain.Settings, model out.Model) Result {
	match, matched := ClassifyWithRules(RuleInput{
		FromEmail:   msg.From.Email,
		Subject:     msg.Subject,
		Snippet:     msg.Snippet,
		BodyPreview: msg.BodyText,
	})

	if matched && match.Confidence >= RuleConfidenceThreshold {
		c.log.Debug().
			Str("message_id", msg.ProviderMessageID).
			Str("rule", match.Rule).
			Str("signal", match.Signal).
			Float64("confidence", match.Confidence).
			Msg("classified_by_rule")
		return Result{Classification: match.Classification(flags), Rule: match}
	}

	if model == nil || !settings.HasModelCredentials() {
		if matched {
			return Result{Classification: match.Classification(flags), Rule: match}
		}
		return Result{Classification: domain.DefaultClassification(flags)}
	}

	body := BodyForModel(settings.RedactionMode, msg.BodyText)
	cls, err := model.Classify(ctx, out.ClassifyInput{
		Subject:     msg.Subject,
		From:        msg.From.Email,
		Labels:      msg.Labels,
		Snippet:     msg.Snippet,
		BodyPreview: truncate(body, ModelPreviewLength),
	})
	if err != nil || cls == nil {
		return Result{Classification: domain.DefaultClassification(flags), Rule: match, ModelErr: err}
	}

	return Result{Classification: normalizeModelResult(cls), Rule: match}
}

func normalizeModelResult(cls *domain.Classification) *domain.Classification {
	return &domain.Classification{
		Category:       domain.NormalizeCategory(string(cls.Category)),
		Priority:       domain.NormalizePriority(string(cls.Priority)),
		NeedsReply:     cls.NeedsReply,
		SpamScore:      clamp01(cls.SpamScore),
		SensitiveFlags: MergeFlags(cls.SensitiveFlags),
		Confidence:     clamp01(cls.Confidence),
		Source:         domain.SourceModel,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
