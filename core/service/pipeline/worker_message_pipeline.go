package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
	"mailsync_worker/core/service/classification"
	"mailsync_worker/core/service/mailparse"
)

// MessageResult is the outcome of one message run.
// Processed=false with a nil Err is a skip (e.g. the message was deleted remotely).
type MessageResult struct {
	MessageID string
	ThreadID  string
	Processed bool
	Err       error
}

// Skipped reports a non-error outcome that stored nothing.
func (r MessageResult) Skipped() bool {
	return !r.Processed && r.Err == nil
}

// messageState accumulates results as the message moves through the stages.
type messageState struct {
	id             string
	envelope       *domain.Envelope
	parsed         *domain.ParsedMessage
	flags          []string
	classification *domain.Classification
	extraction     *domain.Extraction
	processed      bool
	err            error
	done           bool
}

type messageStage struct {
	name string
	run  func(ctx context.Context, run *Run, st *messageState)
}

// MessagePipeline runs fetch, parse, scan, classify, extract and persist in order.
type MessagePipeline struct {
	messages   out.MessageRepository
	encryptor  out.Encryptor
	classifier *classification.Classifier
	trail      *Trail
	log        zerolog.Logger
	stages     []messageStage
}

func NewMessagePipeline(
	messages out.MessageRepository,
	logs out.ProcessingLogRepository,
	encryptor out.Encryptor,
	log zerolog.Logger,
) *MessagePipeline {
	p := &MessagePipeline{
		messages:   messages,
		encryptor:  encryptor,
		classifier: classification.NewClassifier(log),
		trail:      NewTrail(logs, log),
		log:        log,
	}
	p.stages = []messageStage{
		{"fetch", p.fetch},
		{"parse", p.parse},
		{"scan", p.scan},
		{"classify", p.classify},
		{"extract", p.extract},
		{"persist", p.persist},
	}
	return p
}

// Run processes one message id. It never panics on item failure; errors land in the result.
func (p *MessagePipeline) Run(ctx context.Context, run *Run, messageID string) MessageResult {
	st := &messageState{id: messageID}
	for _, stage := range p.stages {
		stage.run(ctx, run, st)
		if st.done {
			break
		}
	}

	res := MessageResult{MessageID: messageID, Processed: st.processed, Err: st.err}
	if st.parsed != nil {
		res.ThreadID = st.parsed.ProviderThreadID
	}
	return res
}

// fail terminates the item; only fetch, parse and persist call it.
func (p *MessagePipeline) fail(ctx context.Context, run *Run, st *messageState, stage string, err error) {
	st.err = err
	st.processed = false
	st.done = true

	p.log.Error().Err(err).Str("message_id", st.id).Str("stage", stage).Msg(stage + "_message_failed")
	p.trail.Write(ctx, run, domain.LogLevelError, fmt.Sprintf("%s message failed: %v", stageTitle(stage), err), map[string]any{
		"message_id": st.id,
	})
}

// =============================================================================
// Stages
// =============================================================================

func (p *MessagePipeline) fetch(ctx context.Context, run *Run, st *messageState) {
	env, err := run.Mailbox.FetchItem(ctx, st.id)
	if errors.Is(err, out.ErrItemNotFound) || (err == nil && env == nil) {
		p.log.Info().Str("message_id", st.id).Msg("message_not_found")
		p.trail.Write(ctx, run, domain.LogLevelInfo, "Message not found: "+st.id, map[string]any{"message_id": st.id})
		st.done = true
		return
	}
	if err != nil {
		p.fail(ctx, run, st, "fetch", err)
		return
	}
	st.envelope = env
}

func (p *MessagePipeline) parse(ctx context.Context, run *Run, st *messageState) {
	parsed, err := mailparse.Parse(st.envelope)
	if err != nil {
		p.fail(ctx, run, st, "parse", err)
		return
	}
	st.parsed = parsed
}

func (p *MessagePipeline) scan(_ context.Context, _ *Run, st *messageState) {
	st.flags = classification.DetectSensitive(st.parsed.Subject, st.parsed.BodyText)
}

func (p *MessagePipeline) classify(ctx context.Context, run *Run, st *messageState) {
	res := p.classifier.Classify(ctx, st.parsed, st.flags, run.Settings, run.Model)
	if res.ModelErr != nil {
		p.trail.ModelFailure(ctx, run, "classification", res.ModelErr, map[string]any{"message_id": st.id})
	}
	st.classification = res.Classification
}

func (p *MessagePipeline) extract(ctx context.Context, run *Run, st *messageState) {
	if run.Settings.RedactionMode == domain.RedactionSummariesOnly {
		st.extraction = domain.EmptyExtraction()
		return
	}
	if !run.modelEnabled() {
		return
	}

	ext, err := run.Model.Extract(ctx, out.ExtractInput{
		Subject: st.parsed.Subject,
		Body:    classification.BodyForModel(run.Settings.RedactionMode, st.parsed.BodyText),
	})
	if err != nil || ext == nil {
		if err != nil {
			p.trail.ModelFailure(ctx, run, "extraction", err, map[string]any{"message_id": st.id})
		}
		st.extraction = domain.EmptyExtraction()
		return
	}
	st.extraction = ext
}

func (p *MessagePipeline) persist(ctx context.Context, run *Run, st *messageState) {
	msg, err := p.buildMessage(run.UserID, st)
	if err != nil {
		p.fail(ctx, run, st, "persist", err)
		return
	}

	if err := p.messages.Upsert(ctx, msg); err != nil {
		p.fail(ctx, run, st, "persist", err)
		return
	}

	st.processed = true
	st.done = true
	p.trail.Write(ctx, run, domain.LogLevelInfo, "Processed message "+st.parsed.ProviderMessageID, map[string]any{
		"category":        string(msg.Category),
		"sensitive_flags": st.flags,
	})
}

func (p *MessagePipeline) buildMessage(userID string, st *messageState) (*domain.Message, error) {
	parsed := st.parsed
	cls := st.classification
	if cls == nil {
		cls = domain.DefaultClassification(st.flags)
	}

	msg := &domain.Message{
		UserID:            userID,
		ProviderMessageID: parsed.ProviderMessageID,
		ProviderThreadID:  parsed.ProviderThreadID,
		FromAddress:       parsed.From.Email,
		FromName:          parsed.From.Name,
		ToAddresses:       domain.AddressEmails(parsed.To),
		CcAddresses:       domain.AddressEmails(parsed.Cc),
		BccAddresses:      domain.AddressEmails(parsed.Bcc),
		Date:              parsed.Date,
		Subject:           parsed.Subject,
		Snippet:           parsed.Snippet,
		Labels:            parsed.Labels,
		Category:          cls.Category,
		Priority:          cls.Priority,
		NeedsReply:        cls.NeedsReply,
		SpamScore:         cls.SpamScore,
		SensitiveFlags:    classification.MergeFlags(st.flags, cls.SensitiveFlags),
		Extracted:         st.extraction,
		IsRead:            !parsed.IsUnread(),
		IsStarred:         parsed.IsStarred(),
		HasAttachments:    parsed.HasAttachments,
		Attachments:       parsed.Attachments,
	}

	if parsed.BodyText != "" {
		enc, err := p.encryptor.Encrypt(parsed.BodyText)
		if err != nil {
			return nil, fmt.Errorf("encrypt body text: %w", err)
		}
		hash := p.encryptor.Hash(parsed.BodyText)
		msg.BodyTextEnc = &enc
		msg.BodyHash = &hash
	}
	if parsed.BodyHTML != "" {
		enc, err := p.encryptor.Encrypt(parsed.BodyHTML)
		if err != nil {
			return nil, fmt.Errorf("encrypt body html: %w", err)
		}
		msg.BodyHTMLEnc = &enc
	}
	return msg, nil
}

func stageTitle(stage string) string {
	switch stage {
	case "fetch":
		return "Fetch"
	case "parse":
		return "Parse"
	case "load":
		return "Load"
	case "persist":
		return "Persist"
	default:
		return stage
	}
}
