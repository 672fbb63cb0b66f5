package classification

import (
	"regexp"

	"mailsync_worker/core/domain"
)

// =============================================================================
// Sensitive Content
// =============================================================================

// Sensitive flag names, in detection order.
const (
	FlagSSN             = "potential_ssn"
	FlagCreditCard      = "potential_credit_card"
	FlagPhoneNumber     = "phone_number"
	FlagAddress         = "physical_address"
	FlagBankAccount     = "bank_account"
	FlagCredential      = "credential"
	FlagMultipleEmails  = "multiple_emails"
	multipleEmailsAbove = 2
)

var (
	ssnPattern        = regexp.MustCompile(`(?i)\b\d{3}[-.]?\d{2}[-.]?\d{4}\b`)
	creditCardPattern = regexp.MustCompile(`(?i)\b(?:\d{4}[-.\s]?){3}\d{4}\b`)
	phonePattern      = regexp.MustCompile(`(?i)\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	addressPattern    = regexp.MustCompile(`(?i)\b\d+\s+[A-Za-z]+\s+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln)\b`)
	accountPattern    = regexp.MustCompile(`(?i)\b(?:account|routing)[:\s#]*\d{8,17}\b`)
	credentialPattern = regexp.MustCompile(`(?i)\b(?:password|passwd|pwd)[:\s]+\S+`)
	emailPattern      = regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
)

var flagPatterns = []struct {
	flag    string
	pattern *regexp.Regexp
}{
	{FlagSSN, ssnPattern},
	{FlagCreditCard, creditCardPattern},
	{FlagPhoneNumber, phonePattern},
	{FlagAddress, addressPattern},
	{FlagBankAccount, accountPattern},
	{FlagCredential, credentialPattern},
}

// DetectSensitive scans subject and body text and returns the flags found.
func DetectSensitive(subject, bodyText string) []string {
	text := subject + " " + bodyText
	flags := []string{}

	for _, fp := range flagPatterns {
		if fp.pattern.MatchString(text) {
			flags = append(flags, fp.flag)
		}
	}
	if len(emailPattern.FindAllStringIndex(text, -1)) > multipleEmailsAbove {
		flags = append(flags, FlagMultipleEmails)
	}
	return flags
}

// Redact replaces sensitive substrings with tagged placeholders.
func Redact(text string) string {
	text = ssnPattern.ReplaceAllString(text, "[REDACTED-SSN]")
	text = creditCardPattern.ReplaceAllString(text, "[REDACTED-CC]")
	text = accountPattern.ReplaceAllString(text, "[REDACTED-ACCOUNT]")
	text = credentialPattern.ReplaceAllString(text, "[REDACTED-CREDENTIAL]")
	return text
}

// BodyForModel applies the redaction mode to body text before it leaves the process.
func BodyForModel(mode domain.RedactionMode, bodyText string) string {
	switch mode {
	case domain.RedactionSummariesOnly:
		return ""
	case domain.RedactionBeforeLLM:
		return Redact(bodyText)
	default:
		return bodyText
	}
}

// MergeFlags unions flag lists, keeping first-seen order.
func MergeFlags(lists ...[]string) []string {
	seen := make(map[string]bool)
	merged := []string{}
	for _, list := range lists {
		for _, f := range list {
			if f == "" || seen[f] {
				continue
			}
			seen[f] = true
			merged = append(merged, f)
		}
	}
	return merged
}
