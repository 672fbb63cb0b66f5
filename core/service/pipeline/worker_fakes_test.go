package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

// =============================================================================
// Mailbox
// =============================================================================

type fakeMailbox struct {
	envelopes map[string]*domain.Envelope
	fetchErr  map[string]error
}

func (m *fakeMailbox) ListIDs(context.Context, time.Time, []string, int) ([]string, error) {
	return nil, nil
}

func (m *fakeMailbox) DiffSince(context.Context, string) (*out.HistoryDiff, error) {
	return nil, nil
}

func (m *fakeMailbox) FetchItem(_ context.Context, id string) (*domain.Envelope, error) {
	if err := m.fetchErr[id]; err != nil {
		return nil, err
	}
	env, ok := m.envelopes[id]
	if !ok {
		return nil, out.ErrItemNotFound
	}
	return env, nil
}

func (m *fakeMailbox) GetProfile(context.Context) (*out.MailboxProfile, error) {
	return &out.MailboxProfile{Cursor: "1"}, nil
}

func textEnvelope(id, threadID, from, subject, body string, labels ...string) *domain.Envelope {
	return &domain.Envelope{
		ID:       id,
		ThreadID: threadID,
		LabelIDs: labels,
		Snippet:  body,
		Payload: &domain.EnvelopePart{
			MimeType: "text/plain",
			Headers: []domain.EnvelopeHeader{
				{Name: "From", Value: from},
				{Name: "Subject", Value: subject},
				{Name: "Date", Value: "Wed, 01 May 2024 09:00:00 +0000"},
			},
			BodyData: base64.URLEncoding.EncodeToString([]byte(body)),
		},
	}
}

// =============================================================================
// Repositories
// =============================================================================

type fakeMessageRepo struct {
	mu        sync.Mutex
	rows      map[string]*domain.Message
	upsertErr error
	upserts   int
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{rows: make(map[string]*domain.Message)}
}

func (r *fakeMessageRepo) Upsert(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts++
	key := msg.UserID + "/" + msg.ProviderMessageID
	if existing, ok := r.rows[key]; ok {
		msg.ID = existing.ID
	} else {
		msg.ID = "row-" + msg.ProviderMessageID
	}
	r.rows[key] = msg
	return nil
}

func (r *fakeMessageRepo) ListByThread(_ context.Context, userID, threadID string) ([]*out.StoredMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var members []*out.StoredMember
	for _, m := range r.rows {
		if m.UserID != userID || m.ProviderThreadID != threadID {
			continue
		}
		members = append(members, &out.StoredMember{
			ProviderMessageID: m.ProviderMessageID,
			FromAddress:       m.FromAddress,
			Date:              m.Date,
			Subject:           m.Subject,
			Snippet:           m.Snippet,
			BodyTextEnc:       m.BodyTextEnc,
			Labels:            m.Labels,
			Category:          m.Category,
			NeedsReply:        m.NeedsReply,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Date.Before(members[j].Date) })
	return members, nil
}

type fakeThreadRepo struct {
	rows      map[string]*domain.Thread
	upsertErr error
}

func newFakeThreadRepo() *fakeThreadRepo {
	return &fakeThreadRepo{rows: make(map[string]*domain.Thread)}
}

func (r *fakeThreadRepo) Upsert(_ context.Context, t *domain.Thread) (string, error) {
	if r.upsertErr != nil {
		return "", r.upsertErr
	}
	t.ID = "thread-" + t.ProviderThreadID
	r.rows[t.UserID+"/"+t.ProviderThreadID] = t
	return t.ID, nil
}

func (r *fakeThreadRepo) ResolveID(_ context.Context, userID, threadID string) (string, error) {
	if t, ok := r.rows[userID+"/"+threadID]; ok {
		return t.ID, nil
	}
	return "", nil
}

func (r *fakeThreadRepo) GetSummary(_ context.Context, userID, threadID string) (string, error) {
	if t, ok := r.rows[userID+"/"+threadID]; ok {
		return t.Summary, nil
	}
	return "", nil
}

type fakeEmbeddingStore struct {
	calls map[string][]float32
}

func (s *fakeEmbeddingStore) SetThreadEmbedding(_ context.Context, _, rowID, _ string, v []float32) error {
	if s.calls == nil {
		s.calls = make(map[string][]float32)
	}
	s.calls[rowID] = v
	return nil
}

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []*domain.ProcessingLogEntry
}

func (r *fakeLogRepo) Append(_ context.Context, e *domain.ProcessingLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeLogRepo) count(level domain.LogLevel) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// =============================================================================
// Encryptor & Model
// =============================================================================

type fakeEncryptor struct{}

func (fakeEncryptor) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (fakeEncryptor) Decrypt(s string) (string, error) {
	if !strings.HasPrefix(s, "enc:") {
		return "", errors.New("not encrypted")
	}
	return strings.TrimPrefix(s, "enc:"), nil
}

func (fakeEncryptor) Hash(s string) string { return "hash:" + s }

type fakeModel struct {
	classifyResult *domain.Classification
	classifyErr    error
	summary        *domain.ThreadSummary
	summarizeErr   error
	extraction     *domain.Extraction
	embedding      []float32
	embeds         bool

	classifyCalls  int
	summarizeCalls int
	extractCalls   int
	embedCalls     int
	lastSummarize  out.SummarizeInput
}

func (m *fakeModel) Provider() string { return "fake" }

func (m *fakeModel) Classify(context.Context, out.ClassifyInput) (*domain.Classification, error) {
	m.classifyCalls++
	return m.classifyResult, m.classifyErr
}

func (m *fakeModel) Summarize(_ context.Context, in out.SummarizeInput) (*domain.ThreadSummary, error) {
	m.summarizeCalls++
	m.lastSummarize = in
	return m.summary, m.summarizeErr
}

func (m *fakeModel) Extract(context.Context, out.ExtractInput) (*domain.Extraction, error) {
	m.extractCalls++
	if m.extraction == nil {
		return domain.EmptyExtraction(), nil
	}
	return m.extraction, nil
}

func (m *fakeModel) SupportsEmbedding() bool { return m.embeds }

func (m *fakeModel) Embed(context.Context, string) ([]float32, error) {
	m.embedCalls++
	return m.embedding, nil
}
