package domain

import "time"

// ThreadMember is a stored message loaded back for thread processing, ordered by date ascending.
type ThreadMember struct {
	ProviderMessageID string
	FromAddress       string
	Date              time.Time
	Subject           string
	Snippet           string
	BodyText          string // decrypted
	Labels            []string
	Category          Category
	NeedsReply        bool
}

// ThreadSummary is produced by the summarize stage. Empty strings mean no summary.
type ThreadSummary struct {
	Short       string  `json:"short_summary"`
	Full        string  `json:"full_summary"`
	WhatChanged *string `json:"what_changed,omitempty"`
}

// Thread is the persisted conversation aggregate, unique on (UserID, ProviderThreadID).
type Thread struct {
	ID               string
	UserID           string
	ProviderThreadID string
	Subject          string
	Participants     []string
	LastMessageAt    time.Time
	Category         Category
	Priority         Priority
	Summary          string
	SummaryShort     string
	NeedsReply       bool
	IsRead           bool
	IsStarred        bool
	Labels           []string
	MessageCount     int
	Embedding        []float32
}

// ReduceThread folds member messages into the thread aggregate.
//
//	participants  = distinct senders, first-seen order
//	lastMessageAt = max(date); subject from the earliest member
//	category      = majority vote, ties go to the first category seen
//	needsReply    = OR, isStarred = OR, isRead = AND(not UNREAD)
//	labels        = union, first-seen order
func ReduceThread(userID, providerThreadID string, members []ThreadMember, summary *ThreadSummary) *Thread {
	t := &Thread{
		UserID:           userID,
		ProviderThreadID: providerThreadID,
		Category:         CategoryMisc,
		Priority:         PriorityNormal,
		IsRead:           true,
		Participants:     []string{},
		Labels:           []string{},
		MessageCount:     len(members),
	}
	if summary != nil {
		t.Summary = summary.Full
		t.SummaryShort = summary.Short
	}
	if len(members) == 0 {
		return t
	}

	seenSender := make(map[string]bool)
	seenLabel := make(map[string]bool)
	votes := make(map[Category]int)
	var order []Category

	earliest := members[0]
	for i, m := range members {
		if m.FromAddress != "" && !seenSender[m.FromAddress] {
			seenSender[m.FromAddress] = true
			t.Participants = append(t.Participants, m.FromAddress)
		}

		if i == 0 || m.Date.After(t.LastMessageAt) {
			t.LastMessageAt = m.Date
		}
		if m.Date.Before(earliest.Date) {
			earliest = m
		}

		cat := m.Category
		if cat == "" {
			cat = CategoryMisc
		}
		if votes[cat] == 0 {
			order = append(order, cat)
		}
		votes[cat]++

		t.NeedsReply = t.NeedsReply || m.NeedsReply
		if hasLabel(m.Labels, LabelUnread) {
			t.IsRead = false
		}
		if hasLabel(m.Labels, LabelStarred) {
			t.IsStarred = true
		}

		for _, l := range m.Labels {
			if !seenLabel[l] {
				seenLabel[l] = true
				t.Labels = append(t.Labels, l)
			}
		}
	}

	best := 0
	for _, c := range order {
		if votes[c] > best {
			best = votes[c]
			t.Category = c
		}
	}

	t.Subject = earliest.Subject
	return t
}
