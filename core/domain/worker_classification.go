package domain

// =============================================================================
// Category & Priority
// =============================================================================

type Category string

const (
	CategoryHiring      Category = "hiring"
	CategoryBills       Category = "bills"
	CategorySchool      Category = "school"
	CategoryReceipts    Category = "receipts"
	CategoryNewsletters Category = "newsletters"
	CategorySocial      Category = "social"
	CategoryShipping    Category = "shipping"
	CategoryFinance     Category = "finance"
	CategoryMisc        Category = "misc"
)

// Categories is the fixed taxonomy offered to the model.
var Categories = []Category{
	CategoryHiring, CategoryBills, CategorySchool, CategoryReceipts, CategoryNewsletters,
	CategorySocial, CategoryShipping, CategoryFinance, CategoryMisc,
}

// NormalizeCategory maps unknown values to misc.
func NormalizeCategory(s string) Category {
	for _, c := range Categories {
		if string(c) == s {
			return c
		}
	}
	return CategoryMisc
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// NormalizePriority maps unknown values to NORMAL.
func NormalizePriority(s string) Priority {
	switch p := Priority(s); p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p
	default:
		return PriorityNormal
	}
}

// =============================================================================
// Classification
// =============================================================================

// ClassificationSource records which tier produced a classification.
type ClassificationSource string

const (
	SourceRules    ClassificationSource = "rules"
	SourceModel    ClassificationSource = "llm"
	SourceFallback ClassificationSource = "fallback"
)

type Classification struct {
	Category       Category             `json:"category"`
	Priority       Priority             `json:"priority"`
	NeedsReply     bool                 `json:"needs_reply"`
	SpamScore      float64              `json:"spam_score"`
	SensitiveFlags []string             `json:"sensitive_flags"`
	Confidence     float64              `json:"confidence"`
	Source         ClassificationSource `json:"-"`
}

// DefaultClassification is the degrade-to value used whenever classification cannot run.
func DefaultClassification(sensitiveFlags []string) *Classification {
	return &Classification{
		Category:       CategoryMisc,
		Priority:       PriorityNormal,
		NeedsReply:     false,
		SpamScore:      0,
		SensitiveFlags: append([]string{}, sensitiveFlags...),
		Confidence:     0,
		Source:         SourceFallback,
	}
}

// =============================================================================
// Extraction
// =============================================================================

type ExtractedTask struct {
	Title    string `json:"title"`
	DueDate  string `json:"dueDate,omitempty"`
	Priority string `json:"priority,omitempty"`
}

type ExtractedDeadline struct {
	Description string `json:"description"`
	Date        string `json:"date"`
}

type Extraction struct {
	Tasks     []ExtractedTask     `json:"tasks"`
	Deadlines []ExtractedDeadline `json:"deadlines"`
	Entities  map[string][]string `json:"entities"`
	KeyFacts  []string            `json:"key_facts"`
}

// EmptyExtraction is returned when extraction is skipped or fails.
func EmptyExtraction() *Extraction {
	return &Extraction{
		Tasks:     []ExtractedTask{},
		Deadlines: []ExtractedDeadline{},
		Entities:  map[string][]string{},
		KeyFacts:  []string{},
	}
}

// IsEmpty reports whether nothing was extracted.
func (e *Extraction) IsEmpty() bool {
	return e == nil || (len(e.Tasks) == 0 && len(e.Deadlines) == 0 && len(e.Entities) == 0 && len(e.KeyFacts) == 0)
}
