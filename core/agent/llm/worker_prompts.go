package llm

import (
	"fmt"
	"strings"

	"mailsync_worker/core/port/out"
)

// Generation settings shared by every adapter.
const (
	Temperature        = 0.2
	MaxTokens          = 4096
	classifyPreviewLen = 500
	summaryBodyLen     = 300
	extractBodyLen     = 2000
	noSubject          = "(No subject)"
)

// =============================================================================
// System Prompts
// =============================================================================

const classifySystemPrompt = `You are an email classification assistant. Analyze the email and classify it.

Categories:
- hiring: Job opportunities, interviews, recruiter outreach
- bills: Invoices, payment due, bills, statements
- school: Education, courses, academic communications
- receipts: Purchase confirmations, order receipts
- newsletters: Marketing emails, newsletters, promotional content
- social: Social media notifications, friend requests
- shipping: Package tracking, delivery updates
- finance: Bank statements, investment updates, financial alerts
- misc: Everything else

Return a JSON object with these fields:
- category: string (one of the categories above)
- priority: string (LOW, NORMAL, HIGH, or URGENT)
- needs_reply: boolean
- spam_score: number 0-1
- sensitive_flags: array of strings (detected sensitive content types)
- confidence: number 0-1`

const summarizeSystemPrompt = `You are an email summarization assistant. Create concise summaries of email threads.

Guidelines:
- Short summary: 1-2 sentences, key point only
- Full summary: 2-4 sentences with important details
- If there's a previous summary and new messages, explain what changed

Return a JSON object with these fields:
- short_summary: string
- full_summary: string
- what_changed: string or null`

const extractSystemPrompt = `You are an email extraction assistant. Extract structured information from emails.

Extract:
- Tasks: action items mentioned
- Deadlines: dates and time-sensitive items
- Entities: people, organizations, locations, contact info, URLs
- Key facts: important information worth remembering

Return a JSON object with these fields:
- tasks: array of objects with title, dueDate (optional), priority
- deadlines: array of objects with description, date
- entities: object with people, organizations, locations, phoneNumbers, emails, urls (all arrays)
- key_facts: array of strings`

// =============================================================================
// User Prompts
// =============================================================================

func classifyUserPrompt(in out.ClassifyInput) string {
	labels := "None"
	if len(in.Labels) > 0 {
		labels = strings.Join(in.Labels, ", ")
	}
	return fmt.Sprintf("Classify this email:\nSubject: %s\nFrom: %s\nLabels: %s\nSnippet: %s\nBody preview: %s",
		orNoSubject(in.Subject), in.From, labels, in.Snippet, truncateRunes(in.BodyPreview, classifyPreviewLen))
}

func summarizeUserPrompt(in out.SummarizeInput) string {
	lines := make([]string, 0, len(in.Messages))
	for i, m := range in.Messages {
		lines = append(lines, fmt.Sprintf("[%d] From: %s (%s)\n%s", i+1, m.From, m.Date, truncateRunes(m.Body, summaryBodyLen)))
	}

	previous := ""
	if in.PreviousSummary != "" {
		previous = "\nPrevious summary: " + in.PreviousSummary
	}
	return fmt.Sprintf("Summarize this email thread:\nSubject: %s\n\nMessages:\n%s\n%s",
		orNoSubject(in.Subject), strings.Join(lines, "\n\n"), previous)
}

func extractUserPrompt(in out.ExtractInput) string {
	return fmt.Sprintf("Extract information from this email:\nSubject: %s\nBody: %s",
		orNoSubject(in.Subject), truncateRunes(in.Body, extractBodyLen))
}

func orNoSubject(s string) string {
	if s == "" {
		return noSubject
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
