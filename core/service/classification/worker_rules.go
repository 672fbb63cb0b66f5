// Package classification decides category, priority and sensitivity for a message.
package classification

import (
	"strings"

	"mailsync_worker/core/domain"
)

// =============================================================================
// Rule Table
// =============================================================================

// rule matches on sender domain membership or keyword presence.
// A domain hit carries domainConfidence, a keyword-only hit carries keywordConfidence.
type rule struct {
	name              string
	category          domain.Category
	priority          domain.Priority
	needsReply        bool
	domains           map[string]bool
	keywords          []string
	domainConfidence  float64
	keywordConfidence float64
}

// RuleInput is the header-level view of a message the rules look at.
type RuleInput struct {
	FromEmail      string
	Subject        string
	Snippet        string
	BodyPreview    string
	SensitiveFlags []string
}

// RuleMatch is the result of the first rule that matched.
type RuleMatch struct {
	Rule       string
	Category   domain.Category
	Priority   domain.Priority
	NeedsReply bool
	Confidence float64
	Signal     string
}

// Classification converts the match into a full classification.
func (m *RuleMatch) Classification(sensitiveFlags []string) *domain.Classification {
	return &domain.Classification{
		Category:       m.Category,
		Priority:       m.Priority,
		NeedsReply:     m.NeedsReply,
		SpamScore:      0,
		SensitiveFlags: append([]string{}, sensitiveFlags...),
		Confidence:     m.Confidence,
		Source:         domain.SourceRules,
	}
}

const rulePreviewLength = 500

func domainSet(domains ...string) map[string]bool {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[d] = true
	}
	return set
}

// rules is evaluated in order; the first match wins.
var rules = []rule{
	{
		name:     "newsletters",
		category: domain.CategoryNewsletters,
		priority: domain.PriorityLow,
		domains: domainSet(
			"substack.com", "beehiiv.com", "mailchimp.com", "mcsv.net", "convertkit.com",
			"buttondown.email", "ghost.io", "mailerlite.com", "medium.com", "morningbrew.com",
			"theskimm.com", "revue.email", "list-manage.com",
		),
		keywords:          []string{"newsletter", "weekly digest", "daily digest", "view this email in your browser", "view in browser"},
		domainConfidence:  0.9,
		keywordConfidence: 0.8,
	},
	{
		name:     "receipts",
		category: domain.CategoryReceipts,
		priority: domain.PriorityLow,
		domains: domainSet(
			"stripe.com", "squareup.com", "toasttab.com", "doordash.com", "ubereats.com",
			"grubhub.com", "instacart.com",
		),
		keywords:          []string{"receipt", "order confirmation", "thank you for your order", "thank you for your purchase", "payment received", "your order #"},
		domainConfidence:  0.9,
		keywordConfidence: 0.85,
	},
	{
		name:     "shipping",
		category: domain.CategoryShipping,
		priority: domain.PriorityNormal,
		domains: domainSet(
			"ups.com", "fedex.com", "usps.com", "dhl.com", "ontrac.com", "narvar.com",
			"aftership.com", "shipment.amazon.com",
		),
		keywords:          []string{"has shipped", "tracking number", "out for delivery", "your package", "shipment", "delivery update", "was delivered"},
		domainConfidence:  0.9,
		keywordConfidence: 0.85,
	},
	{
		name:     "bills",
		category: domain.CategoryBills,
		priority: domain.PriorityHigh,
		domains: domainSet(
			"xfinity.com", "comcast.net", "att.com", "verizon.com", "t-mobile.com",
			"pge.com", "coned.com", "duke-energy.com", "spectrum.net",
		),
		keywords:          []string{"bill is ready", "payment due", "amount due", "past due", "statement is ready", "autopay", "invoice"},
		domainConfidence:  0.9,
		keywordConfidence: 0.85,
	},
	{
		name:     "social",
		category: domain.CategorySocial,
		priority: domain.PriorityLow,
		domains: domainSet(
			"facebookmail.com", "linkedin.com", "twitter.com", "x.com", "instagram.com",
			"reddit.com", "discord.com", "pinterest.com", "tiktok.com", "nextdoor.com",
		),
		keywords:          []string{"friend request", "mentioned you", "tagged you", "new follower", "commented on your", "connection request"},
		domainConfidence:  0.95,
		keywordConfidence: 0.8,
	},
	{
		name:     "school",
		category: domain.CategorySchool,
		priority: domain.PriorityNormal,
		domains: domainSet(
			"edu", "instructure.com", "blackboard.com", "schoology.com", "parentsquare.com",
			"classroom.google.com", "powerschool.com",
		),
		keywords:          []string{"assignment", "syllabus", "semester", "tuition", "enrollment", "report card", "parent-teacher"},
		domainConfidence:  0.9,
		keywordConfidence: 0.8,
	},
	{
		name:       "hiring",
		category:   domain.CategoryHiring,
		priority:   domain.PriorityHigh,
		needsReply: true,
		domains: domainSet(
			"greenhouse.io", "lever.co", "myworkday.com", "workday.com", "ashbyhq.com",
			"smartrecruiters.com", "icims.com", "jobvite.com", "indeed.com",
		),
		keywords:          []string{"interview", "your application", "application received", "job offer", "recruiter", "candidate"},
		domainConfidence:  0.9,
		keywordConfidence: 0.8,
	},
	{
		name:     "finance",
		category: domain.CategoryFinance,
		priority: domain.PriorityHigh,
		domains: domainSet(
			"chase.com", "bankofamerica.com", "wellsfargo.com", "capitalone.com", "citi.com",
			"americanexpress.com", "schwab.com", "fidelity.com", "vanguard.com", "robinhood.com",
			"coinbase.com", "paypal.com", "venmo.com",
		),
		keywords:          []string{"account statement", "direct deposit", "transaction alert", "wire transfer", "available balance", "credit score"},
		domainConfidence:  0.95,
		keywordConfidence: 0.8,
	},
}

// =============================================================================
// Matching
// =============================================================================

// ClassifyWithRules runs the rule table and returns the first match.
func ClassifyWithRules(in RuleInput) (*RuleMatch, bool) {
	senderDomain := extractDomain(in.FromEmail)
	text := strings.ToLower(in.Subject + " " + in.Snippet + " " + truncate(in.BodyPreview, rulePreviewLength))

	for _, r := range rules {
		if known, ok := r.matchDomain(senderDomain); ok {
			return r.toMatch(r.domainConfidence, "domain:"+known), true
		}
		if kw, ok := r.matchKeyword(text); ok {
			return r.toMatch(r.keywordConfidence, "keyword:"+kw), true
		}
	}
	return nil, false
}

func (r rule) toMatch(confidence float64, signal string) *RuleMatch {
	return &RuleMatch{
		Rule:       r.name,
		Category:   r.category,
		Priority:   r.priority,
		NeedsReply: r.needsReply,
		Confidence: confidence,
		Signal:     signal,
	}
}

// matchDomain accepts exact and subdomain matches (mail.chase.com -> chase.com).
func (r rule) matchDomain(senderDomain string) (string, bool) {
	if senderDomain == "" {
		return "", false
	}
	if r.domains[senderDomain] {
		return senderDomain, true
	}
	for known := range r.domains {
		if strings.HasSuffix(senderDomain, "."+known) {
			return known, true
		}
	}
	return "", false
}

func (r rule) matchKeyword(text string) (string, bool) {
	for _, kw := range r.keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

func extractDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
