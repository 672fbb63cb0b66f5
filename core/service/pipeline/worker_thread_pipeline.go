package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// EmbeddingTextLength bounds the text sent for a thread embedding.
const EmbeddingTextLength = 2048

var ErrEmptyThread = errors.New("thread has no stored messages")

// ThreadResult is the outcome of one thread run.
type ThreadResult struct {
	ThreadID    string
	ThreadRowID string
	Processed   bool
	Err         error
}

type threadState struct {
	threadID  string
	members   []domain.ThreadMember
	summary   *domain.ThreadSummary
	embedding []float32
	rowID     string
	processed bool
	err       error
	done      bool
}

type threadStage struct {
	name string
	run  func(ctx context.Context, run *Run, st *threadState)
}

// ThreadPipeline runs load, summarize, embed and persist over a stored conversation.
type ThreadPipeline struct {
	messages   out.MessageRepository
	threads    out.ThreadRepository
	embeddings out.EmbeddingStore
	encryptor  out.Encryptor
	trail      *Trail
	log        zerolog.Logger
	dimensions int
	stages     []threadStage
}

func NewThreadPipeline(
	messages out.MessageRepository,
	threads out.ThreadRepository,
	embeddings out.EmbeddingStore,
	logs out.ProcessingLogRepository,
	encryptor out.Encryptor,
	log zerolog.Logger,
) *ThreadPipeline {
	p := &ThreadPipeline{
		messages:   messages,
		threads:    threads,
		embeddings: embeddings,
		encryptor:  encryptor,
		trail:      NewTrail(logs, log),
		log:        log,
	}
	p.stages = []threadStage{
		{"load", p.load},
		{"summarize", p.summarize},
		{"embed", p.embed},
		{"persist", p.persist},
	}
	return p
}

// WithEmbeddingDimensions drops embeddings whose length does not match the
// store's vector index. Zero accepts any length.
func (p *ThreadPipeline) WithEmbeddingDimensions(n int) *ThreadPipeline {
	p.dimensions = n
	return p
}

// Run processes one conversation by provider thread id.
func (p *ThreadPipeline) Run(ctx context.Context, run *Run, threadID string) ThreadResult {
	st := &threadState{threadID: threadID}
	for _, stage := range p.stages {
		stage.run(ctx, run, st)
		if st.done {
			break
		}
	}
	return ThreadResult{ThreadID: threadID, ThreadRowID: st.rowID, Processed: st.processed, Err: st.err}
}

func (p *ThreadPipeline) fail(ctx context.Context, run *Run, st *threadState, stage string, err error) {
	st.err = err
	st.processed = false
	st.done = true

	p.log.Error().Err(err).Str("thread_id", st.threadID).Str("stage", stage).Msg(stage + "_thread_failed")
	p.trail.Write(ctx, run, domain.LogLevelError, fmt.Sprintf("%s thread failed: %v", stageTitle(stage), err), map[string]any{
		"thread_id": st.threadID,
	})
}

// =============================================================================
// Stages
// =============================================================================

func (p *ThreadPipeline) load(ctx context.Context, run *Run, st *threadState) {
	stored, err := p.messages.ListByThread(ctx, run.UserID, st.threadID)
	if err != nil {
		p.fail(ctx, run, st, "load", err)
		return
	}
	if len(stored) == 0 {
		p.fail(ctx, run, st, "load", ErrEmptyThread)
		return
	}

	st.members = make([]domain.ThreadMember, 0, len(stored))
	for _, m := range stored {
		member := domain.ThreadMember{
			ProviderMessageID: m.ProviderMessageID,
			FromAddress:       m.FromAddress,
			Date:              m.Date,
			Subject:           m.Subject,
			Snippet:           m.Snippet,
			Labels:            m.Labels,
			Category:          m.Category,
			NeedsReply:        m.NeedsReply,
		}
		if m.BodyTextEnc != nil && *m.BodyTextEnc != "" {
			body, decErr := p.encryptor.Decrypt(*m.BodyTextEnc)
			if decErr != nil {
				p.log.Warn().Err(decErr).Str("message_id", m.ProviderMessageID).Msg("decrypt_member_body_failed")
			} else {
				member.BodyText = body
			}
		}
		st.members = append(st.members, member)
	}
}

func (p *ThreadPipeline) summarize(ctx context.Context, run *Run, st *threadState) {
	if !run.modelEnabled() {
		return
	}

	previous, err := p.threads.GetSummary(ctx, run.UserID, st.threadID)
	if err != nil {
		p.log.Debug().Err(err).Str("thread_id", st.threadID).Msg("previous_summary_unavailable")
		previous = ""
	}

	msgs := make([]out.SummaryMessage, 0, len(st.members))
	for _, m := range st.members {
		body := m.BodyText
		if body == "" {
			body = m.Snippet
		}
		from := m.FromAddress
		if from == "" {
			from = "Unknown"
		}
		msgs = append(msgs, out.SummaryMessage{
			From: from,
			Date: m.Date.UTC().Format(time.RFC3339),
			Body: body,
		})
	}

	summary, err := run.Model.Summarize(ctx, out.SummarizeInput{
		Subject:         st.members[0].Subject,
		Messages:        msgs,
		PreviousSummary: previous,
	})
	if err != nil || summary == nil {
		if err != nil {
			p.trail.ModelFailure(ctx, run, "summarization", err, map[string]any{"thread_id": st.threadID})
		}
		st.summary = &domain.ThreadSummary{}
		return
	}
	st.summary = summary
}

func (p *ThreadPipeline) embed(ctx context.Context, run *Run, st *threadState) {
	if !run.modelEnabled() || !run.Model.SupportsEmbedding() {
		return
	}

	full := ""
	if st.summary != nil {
		full = st.summary.Full
	}
	text := strings.TrimSpace(st.members[0].Subject + " " + full)
	if text == "" {
		return
	}
	if r := []rune(text); len(r) > EmbeddingTextLength {
		text = string(r[:EmbeddingTextLength])
	}

	vec, err := run.Model.Embed(ctx, text)
	if err != nil {
		p.log.Warn().Err(err).Str("thread_id", st.threadID).Msg("generate_embedding_failed")
		return
	}
	if p.dimensions > 0 && len(vec) != p.dimensions {
		p.log.Warn().
			Str("thread_id", st.threadID).
			Str("provider", run.Model.Provider()).
			Int("dimensions", len(vec)).
			Int("want", p.dimensions).
			Msg("embedding_dimension_mismatch")
		return
	}
	if len(vec) > 0 {
		st.embedding = vec
	}
}

func (p *ThreadPipeline) persist(ctx context.Context, run *Run, st *threadState) {
	thread := domain.ReduceThread(run.UserID, st.threadID, st.members, st.summary)
	thread.Embedding = st.embedding

	rowID, err := p.threads.Upsert(ctx, thread)
	if err != nil {
		p.fail(ctx, run, st, "persist", err)
		return
	}
	st.rowID = rowID

	if len(st.embedding) > 0 && p.embeddings != nil {
		if err := p.embeddings.SetThreadEmbedding(ctx, run.UserID, rowID, st.threadID, st.embedding); err != nil {
			p.log.Warn().Err(err).Str("thread_id", st.threadID).Msg("attach_thread_embedding_failed")
		}
	}

	st.processed = true
	st.done = true
	p.trail.Write(ctx, run, domain.LogLevelInfo, "Processed thread "+st.threadID, map[string]any{
		"message_count": thread.MessageCount,
		"category":      string(thread.Category),
	})
}
