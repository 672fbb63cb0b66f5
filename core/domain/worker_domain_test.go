package domain

import (
	"reflect"
	"testing"
	"time"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusRunning, JobStatusRunning, true},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusCancelled, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusCompleted, false},
		{JobStatusCancelled, JobStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseJobType(t *testing.T) {
	if got, err := ParseJobType("incremental"); err != nil || got != JobTypeIncremental {
		t.Errorf("ParseJobType(incremental) = %v, %v", got, err)
	}
	if _, err := ParseJobType("REINDEX"); err == nil {
		t.Error("ParseJobType(REINDEX) error = nil, want error")
	}
}

func TestJobMetadataFromMap(t *testing.T) {
	md := JobMetadataFromMap(map[string]any{
		"jobId":         "job-1",
		"backfillDays":  float64(14),
		"excludeLabels": []any{"SPAM", 3, "PROMOTIONS"},
		"threadId":      "t-1",
	})

	if md.JobID != "job-1" || md.ThreadID != "t-1" {
		t.Errorf("ids = %q/%q", md.JobID, md.ThreadID)
	}
	if md.BackfillDays == nil || *md.BackfillDays != 14 {
		t.Errorf("BackfillDays = %v, want 14", md.BackfillDays)
	}
	if want := []string{"SPAM", "PROMOTIONS"}; !reflect.DeepEqual(md.ExcludeLabels, want) {
		t.Errorf("ExcludeLabels = %v, want %v", md.ExcludeLabels, want)
	}

	empty := JobMetadataFromMap(nil)
	if empty.BackfillDays != nil || empty.JobID != "" {
		t.Errorf("JobMetadataFromMap(nil) = %+v, want zero", empty)
	}
}

func TestNormalizeSettings(t *testing.T) {
	tests := []struct {
		name         string
		raw          *RawSettings
		wantProvider ModelProvider
		wantModel    string
		wantMode     RedactionMode
		wantErr      bool
	}{
		{"nil uses defaults", nil, ModelProviderGemini, "", RedactionOff, false},
		{"legacy model in provider column", &RawSettings{ModelProvider: "gemini-2.5-pro"}, ModelProviderGemini, "gemini-2.5-pro", RedactionOff, false},
		{"openai", &RawSettings{ModelProvider: "openai", ModelName: "gpt-4o-mini", RedactionMode: "REDACT_BEFORE_LLM"}, ModelProviderOpenAI, "gpt-4o-mini", RedactionBeforeLLM, false},
		{"summaries only", &RawSettings{RedactionMode: "summaries_only"}, ModelProviderGemini, "", RedactionSummariesOnly, false},
		{"bad redaction", &RawSettings{RedactionMode: "SOMETIMES"}, "", "", "", true},
		{"custom without url", &RawSettings{ModelProvider: "custom"}, "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NormalizeSettings(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NormalizeSettings() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeSettings() error = %v", err)
			}
			if s.ModelProvider != tt.wantProvider {
				t.Errorf("provider = %v, want %v", s.ModelProvider, tt.wantProvider)
			}
			if s.ModelName != tt.wantModel {
				t.Errorf("model = %q, want %q", s.ModelName, tt.wantModel)
			}
			if s.RedactionMode != tt.wantMode {
				t.Errorf("mode = %v, want %v", s.RedactionMode, tt.wantMode)
			}
			if !reflect.DeepEqual(s.ExcludeLabels, []string{"SPAM", "TRASH"}) {
				t.Errorf("ExcludeLabels = %v", s.ExcludeLabels)
			}
			if s.BackfillDays != DefaultBackfillDays {
				t.Errorf("BackfillDays = %d, want %d", s.BackfillDays, DefaultBackfillDays)
			}
		})
	}
}

func TestSettings_HasModelCredentials(t *testing.T) {
	if (&Settings{ModelProvider: ModelProviderGemini}).HasModelCredentials() {
		t.Error("gemini without key reported credentials")
	}
	if !(&Settings{ModelProvider: ModelProviderOpenAI, ModelAPIKeyEnc: "enc"}).HasModelCredentials() {
		t.Error("openai with key reported no credentials")
	}
	if !(&Settings{ModelProvider: ModelProviderOllama}).HasModelCredentials() {
		t.Error("ollama reported no credentials")
	}
}

func TestReduceThread(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	members := []ThreadMember{
		{FromAddress: "a@x.com", Date: base, Subject: "Invoice", Category: CategoryBills, Labels: []string{"INBOX"}},
		{FromAddress: "b@x.com", Date: base.Add(2 * time.Hour), Subject: "Re: Invoice", Category: CategoryBills, Labels: []string{"INBOX", "STARRED"}, NeedsReply: true},
		{FromAddress: "a@x.com", Date: base.Add(time.Hour), Subject: "Re: Invoice", Category: CategoryMisc, Labels: []string{"IMPORTANT"}},
	}

	got := ReduceThread("u1", "t1", members, &ThreadSummary{Short: "s", Full: "f"})

	if got.Category != CategoryBills {
		t.Errorf("category = %v, want bills", got.Category)
	}
	if !got.IsRead {
		t.Error("isRead = false, want true")
	}
	if !got.IsStarred {
		t.Error("isStarred = false, want true")
	}
	if !got.NeedsReply {
		t.Error("needsReply = false, want true")
	}
	if !got.LastMessageAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("lastMessageAt = %v", got.LastMessageAt)
	}
	if got.Subject != "Invoice" {
		t.Errorf("subject = %q, want Invoice", got.Subject)
	}
	if want := []string{"a@x.com", "b@x.com"}; !reflect.DeepEqual(got.Participants, want) {
		t.Errorf("participants = %v, want %v", got.Participants, want)
	}
	if want := []string{"INBOX", "STARRED", "IMPORTANT"}; !reflect.DeepEqual(got.Labels, want) {
		t.Errorf("labels = %v, want %v", got.Labels, want)
	}
	if got.MessageCount != 3 {
		t.Errorf("messageCount = %d, want 3", got.MessageCount)
	}
	if got.Summary != "f" || got.SummaryShort != "s" {
		t.Errorf("summary = %q/%q", got.Summary, got.SummaryShort)
	}
}

func TestReduceThread_TieGoesToFirstSeen(t *testing.T) {
	members := []ThreadMember{
		{Category: CategoryShipping, Labels: []string{"UNREAD"}},
		{Category: CategoryReceipts},
	}

	got := ReduceThread("u1", "t1", members, nil)
	if got.Category != CategoryShipping {
		t.Errorf("category = %v, want shipping", got.Category)
	}
	if got.IsRead {
		t.Error("isRead = true, want false when a member is UNREAD")
	}
}

func TestJobTrigger_ToRequest(t *testing.T) {
	tests := []struct {
		name    string
		trigger JobTrigger
		want    JobType
		wantErr bool
	}{
		{"valid", JobTrigger{UserID: "u1", JobType: "backfill", Metadata: map[string]any{"jobId": "j1"}}, JobTypeBackfill, false},
		{"missing user", JobTrigger{JobType: "BACKFILL"}, "", true},
		{"unknown type", JobTrigger{UserID: "u1", JobType: "REINDEX"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.trigger.ToRequest()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if req.Type != tt.want {
				t.Errorf("Type = %q, want %q", req.Type, tt.want)
			}
		})
	}

	req, _ := JobTrigger{UserID: "u1", JobType: "BACKFILL", Metadata: map[string]any{"jobId": "j1"}}.ToRequest()
	if req.JobID() != "j1" {
		t.Errorf("JobID() = %q, want j1", req.JobID())
	}
}
