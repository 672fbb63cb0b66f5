package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
)

func keyedSettings(mode domain.RedactionMode) *domain.Settings {
	s := domain.DefaultSettings()
	s.ModelProvider = domain.ModelProviderOpenAI
	s.ModelAPIKeyEnc = "enc:key"
	s.RedactionMode = mode
	return s
}

type messageFixture struct {
	mailbox  *fakeMailbox
	messages *fakeMessageRepo
	logs     *fakeLogRepo
	pipeline *MessagePipeline
}

func newMessageFixture(envelopes ...*domain.Envelope) *messageFixture {
	mb := &fakeMailbox{envelopes: make(map[string]*domain.Envelope), fetchErr: make(map[string]error)}
	for _, e := range envelopes {
		mb.envelopes[e.ID] = e
	}
	msgs := newFakeMessageRepo()
	logs := &fakeLogRepo{}
	return &messageFixture{
		mailbox:  mb,
		messages: msgs,
		logs:     logs,
		pipeline: NewMessagePipeline(msgs, logs, fakeEncryptor{}, zerolog.Nop()),
	}
}

func (f *messageFixture) run(settings *domain.Settings, model out.Model) *Run {
	return &Run{UserID: "u1", JobID: "job-1", CorrelationID: "corr-1", Settings: settings, Mailbox: f.mailbox, Model: model}
}

func TestMessagePipeline_PersistsMessage(t *testing.T) {
	env := textEnvelope("m1", "t1", "Jane <jane@example.com>", "Dinner plans", "see you at 7", "INBOX", "STARRED")
	f := newMessageFixture(env)

	res := f.pipeline.Run(context.Background(), f.run(domain.DefaultSettings(), nil), "m1")
	if !res.Processed || res.Err != nil {
		t.Fatalf("result = %+v, want processed", res)
	}
	if res.ThreadID != "t1" {
		t.Errorf("ThreadID = %q, want t1", res.ThreadID)
	}

	row := f.messages.rows["u1/m1"]
	if row == nil {
		t.Fatal("message row not stored")
	}
	if row.BodyTextEnc == nil || *row.BodyTextEnc != "enc:see you at 7" {
		t.Errorf("BodyTextEnc = %v", row.BodyTextEnc)
	}
	if row.BodyHash == nil || *row.BodyHash != "hash:see you at 7" {
		t.Errorf("BodyHash = %v", row.BodyHash)
	}
	if row.BodyHTMLEnc != nil {
		t.Errorf("BodyHTMLEnc = %v, want nil", *row.BodyHTMLEnc)
	}
	if !row.IsRead || !row.IsStarred {
		t.Errorf("IsRead/IsStarred = %v/%v, want true/true", row.IsRead, row.IsStarred)
	}
	if row.Category != domain.CategoryMisc || row.Priority != domain.PriorityNormal {
		t.Errorf("classification = %v/%v", row.Category, row.Priority)
	}
	if row.Extracted != nil {
		t.Errorf("Extracted = %+v, want nil without credentials", row.Extracted)
	}
	if f.logs.count(domain.LogLevelInfo) != 1 {
		t.Errorf("info entries = %d, want 1", f.logs.count(domain.LogLevelInfo))
	}
}

func TestMessagePipeline_Idempotent(t *testing.T) {
	f := newMessageFixture(textEnvelope("m1", "t1", "jane@example.com", "Hi", "hello"))
	run := f.run(domain.DefaultSettings(), nil)

	first := f.pipeline.Run(context.Background(), run, "m1")
	firstID := f.messages.rows["u1/m1"].ID
	second := f.pipeline.Run(context.Background(), run, "m1")

	if !first.Processed || !second.Processed {
		t.Fatalf("results = %+v / %+v", first, second)
	}
	if len(f.messages.rows) != 1 {
		t.Errorf("rows = %d, want 1", len(f.messages.rows))
	}
	if f.messages.upserts != 2 {
		t.Errorf("upserts = %d, want 2", f.messages.upserts)
	}
	if got := f.messages.rows["u1/m1"].ID; got != firstID {
		t.Errorf("row id changed: %q -> %q", firstID, got)
	}
}

func TestMessagePipeline_NewsletterRuleSkipsModel(t *testing.T) {
	f := newMessageFixture(textEnvelope("m1", "t1", "Weekly <news@substack.com>", "Issue 12", "this week"))
	model := &fakeModel{}

	res := f.pipeline.Run(context.Background(), f.run(keyedSettings(domain.RedactionOff), model), "m1")
	if !res.Processed {
		t.Fatalf("result = %+v", res)
	}
	if model.classifyCalls != 0 {
		t.Errorf("classify calls = %d, want 0", model.classifyCalls)
	}
	if row := f.messages.rows["u1/m1"]; row.Category != domain.CategoryNewsletters {
		t.Errorf("category = %v, want newsletters", row.Category)
	}
}

func TestMessagePipeline_SummariesOnlySkipsExtraction(t *testing.T) {
	f := newMessageFixture(textEnvelope("m1", "t1", "jane@example.com", "Dinner plans", "see you at 7"))
	model := &fakeModel{classifyResult: &domain.Classification{Category: "social", Priority: "LOW", Confidence: 0.6}}

	res := f.pipeline.Run(context.Background(), f.run(keyedSettings(domain.RedactionSummariesOnly), model), "m1")
	if !res.Processed {
		t.Fatalf("result = %+v", res)
	}
	if model.extractCalls != 0 {
		t.Errorf("extract calls = %d, want 0", model.extractCalls)
	}
	got := f.messages.rows["u1/m1"].Extracted
	if !reflect.DeepEqual(got, domain.EmptyExtraction()) {
		t.Errorf("Extracted = %+v, want empty extraction", got)
	}
}

func TestMessagePipeline_ModelRateLimitDegrades(t *testing.T) {
	f := newMessageFixture(textEnvelope("m1", "t1", "jane@example.com", "Dinner plans", "see you at 7"))
	model := &fakeModel{classifyErr: errors.New("429 Too Many Requests")}

	res := f.pipeline.Run(context.Background(), f.run(keyedSettings(domain.RedactionOff), model), "m1")
	if !res.Processed || res.Err != nil {
		t.Fatalf("result = %+v, want processed", res)
	}
	row := f.messages.rows["u1/m1"]
	if row.Category != domain.CategoryMisc || row.SpamScore != 0 {
		t.Errorf("row = %v/%v, want misc/0", row.Category, row.SpamScore)
	}
	if model.extractCalls != 1 {
		t.Errorf("extract calls = %d, want 1", model.extractCalls)
	}
	if f.logs.count(domain.LogLevelWarning) != 1 {
		t.Errorf("warning entries = %d, want 1", f.logs.count(domain.LogLevelWarning))
	}
}

func TestMessagePipeline_Failures(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(f *messageFixture)
		wantErr     bool
		wantSkipped bool
	}{
		{
			name:        "not found is a skip",
			setup:       func(f *messageFixture) {},
			wantSkipped: true,
		},
		{
			name: "fetch error",
			setup: func(f *messageFixture) {
				f.mailbox.fetchErr["m1"] = errors.New("gmail: server error")
			},
			wantErr: true,
		},
		{
			name: "parse error",
			setup: func(f *messageFixture) {
				f.mailbox.envelopes["m1"] = &domain.Envelope{ID: "m1"}
			},
			wantErr: true,
		},
		{
			name: "persist error",
			setup: func(f *messageFixture) {
				f.mailbox.envelopes["m1"] = textEnvelope("m1", "t1", "a@x.com", "s", "b")
				f.messages.upsertErr = errors.New("db down")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMessageFixture()
			tt.setup(f)

			res := f.pipeline.Run(context.Background(), f.run(domain.DefaultSettings(), nil), "m1")
			if res.Processed {
				t.Fatal("Processed = true, want false")
			}
			if (res.Err != nil) != tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", res.Err, tt.wantErr)
			}
			if res.Skipped() != tt.wantSkipped {
				t.Errorf("Skipped() = %v, want %v", res.Skipped(), tt.wantSkipped)
			}
			wantErrorEntries := 0
			if tt.wantErr {
				wantErrorEntries = 1
			}
			if got := f.logs.count(domain.LogLevelError); got != wantErrorEntries {
				t.Errorf("error entries = %d, want %d", got, wantErrorEntries)
			}
		})
	}
}

// =============================================================================
// Thread pipeline
// =============================================================================

type threadFixture struct {
	messages   *fakeMessageRepo
	threads    *fakeThreadRepo
	embeddings *fakeEmbeddingStore
	logs       *fakeLogRepo
	pipeline   *ThreadPipeline
}

func newThreadFixture() *threadFixture {
	f := &threadFixture{
		messages:   newFakeMessageRepo(),
		threads:    newFakeThreadRepo(),
		embeddings: &fakeEmbeddingStore{},
		logs:       &fakeLogRepo{},
	}
	f.pipeline = NewThreadPipeline(f.messages, f.threads, f.embeddings, f.logs, fakeEncryptor{}, zerolog.Nop())
	return f
}

func (f *threadFixture) seed(id, from string, at time.Time, cat domain.Category, body string, labels ...string) {
	enc := "enc:" + body
	_ = f.messages.Upsert(context.Background(), &domain.Message{
		UserID:            "u1",
		ProviderMessageID: id,
		ProviderThreadID:  "t1",
		FromAddress:       from,
		Date:              at,
		Subject:           "Invoice " + id,
		Snippet:           "snippet " + id,
		BodyTextEnc:       &enc,
		Labels:            labels,
		Category:          cat,
	})
}

func TestThreadPipeline_ReducesAndEmbeds(t *testing.T) {
	f := newThreadFixture()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f.seed("m2", "b@x.com", base.Add(time.Hour), domain.CategoryBills, "second", "INBOX", "STARRED")
	f.seed("m1", "a@x.com", base, domain.CategoryBills, "first", "INBOX")
	f.seed("m3", "a@x.com", base.Add(2*time.Hour), domain.CategoryMisc, "third", "INBOX")

	model := &fakeModel{
		summary:   &domain.ThreadSummary{Short: "short", Full: "full"},
		embedding: []float32{0.1, 0.2},
		embeds:    true,
	}
	run := &Run{UserID: "u1", JobID: "job-1", Settings: keyedSettings(domain.RedactionOff), Model: model}

	res := f.pipeline.Run(context.Background(), run, "t1")
	if !res.Processed || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}

	thread := f.threads.rows["u1/t1"]
	if thread.Category != domain.CategoryBills {
		t.Errorf("category = %v, want bills", thread.Category)
	}
	if !thread.IsRead || !thread.IsStarred {
		t.Errorf("IsRead/IsStarred = %v/%v", thread.IsRead, thread.IsStarred)
	}
	if thread.Subject != "Invoice m1" {
		t.Errorf("subject = %q, want earliest member subject", thread.Subject)
	}
	if thread.Summary != "full" || thread.SummaryShort != "short" {
		t.Errorf("summary = %q/%q", thread.Summary, thread.SummaryShort)
	}
	if thread.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", thread.MessageCount)
	}

	if got := model.lastSummarize.Messages; len(got) != 3 || got[0].Body != "first" {
		t.Errorf("summarize messages = %+v, want decrypted bodies in date order", got)
	}
	if got := f.embeddings.calls[res.ThreadRowID]; !reflect.DeepEqual(got, []float32{0.1, 0.2}) {
		t.Errorf("embedding = %v", got)
	}
}

func TestThreadPipeline_DropsEmbeddingOfWrongSize(t *testing.T) {
	f := newThreadFixture()
	f.pipeline.WithEmbeddingDimensions(3)
	f.seed("m1", "a@x.com", time.Now(), domain.CategoryMisc, "body")

	model := &fakeModel{
		summary:   &domain.ThreadSummary{Short: "s", Full: "f"},
		embedding: []float32{0.1, 0.2},
		embeds:    true,
	}
	run := &Run{UserID: "u1", Settings: keyedSettings(domain.RedactionOff), Model: model}

	res := f.pipeline.Run(context.Background(), run, "t1")
	if !res.Processed || res.Err != nil {
		t.Fatalf("result = %+v, want processed", res)
	}
	if model.embedCalls != 1 {
		t.Errorf("embed calls = %d, want 1", model.embedCalls)
	}
	if len(f.embeddings.calls) != 0 {
		t.Errorf("embedding store calls = %v, want none", f.embeddings.calls)
	}
	if thread := f.threads.rows["u1/t1"]; len(thread.Embedding) != 0 {
		t.Errorf("thread embedding = %v, want none", thread.Embedding)
	}
}

func TestThreadPipeline_SummaryFailureDegrades(t *testing.T) {
	f := newThreadFixture()
	f.seed("m1", "a@x.com", time.Now(), domain.CategoryMisc, "body")

	model := &fakeModel{summarizeErr: errors.New("503 unavailable"), embeds: false}
	run := &Run{UserID: "u1", Settings: keyedSettings(domain.RedactionOff), Model: model}

	res := f.pipeline.Run(context.Background(), run, "t1")
	if !res.Processed {
		t.Fatalf("result = %+v, want processed", res)
	}
	if thread := f.threads.rows["u1/t1"]; thread.Summary != "" || thread.SummaryShort != "" {
		t.Errorf("summary = %q/%q, want empty", thread.Summary, thread.SummaryShort)
	}
	if model.embedCalls != 0 {
		t.Errorf("embed calls = %d, want 0 when unsupported", model.embedCalls)
	}
}

func TestThreadPipeline_NoCredentialsSkipsModel(t *testing.T) {
	f := newThreadFixture()
	f.seed("m1", "a@x.com", time.Now(), domain.CategoryShipping, "body")
	model := &fakeModel{embeds: true}

	res := f.pipeline.Run(context.Background(), &Run{UserID: "u1", Settings: domain.DefaultSettings(), Model: model}, "t1")
	if !res.Processed {
		t.Fatalf("result = %+v", res)
	}
	if model.summarizeCalls != 0 || model.embedCalls != 0 {
		t.Errorf("model calls = %d/%d, want 0/0", model.summarizeCalls, model.embedCalls)
	}
}

func TestThreadPipeline_Failures(t *testing.T) {
	f := newThreadFixture()
	run := &Run{UserID: "u1", Settings: domain.DefaultSettings()}

	res := f.pipeline.Run(context.Background(), run, "missing")
	if res.Processed || !errors.Is(res.Err, ErrEmptyThread) {
		t.Errorf("empty thread result = %+v, want ErrEmptyThread", res)
	}

	f.seed("m1", "a@x.com", time.Now(), domain.CategoryMisc, "body")
	f.threads.upsertErr = errors.New("db down")
	res = f.pipeline.Run(context.Background(), run, "t1")
	if res.Processed || res.Err == nil {
		t.Errorf("persist failure result = %+v, want error", res)
	}
}
