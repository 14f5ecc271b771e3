package classifier

import (
	"errors"
	"fmt"
)

// ErrInvalidClassification reports a model answer outside the closed enums.
var ErrInvalidClassification = errors.New("invalid classification")

type Category string

const (
	CategoryBilling        Category = "billing"
	CategoryTechnical      Category = "technical"
	CategoryAccount        Category = "account"
	CategoryFeatureRequest Category = "feature_request"
	CategoryComplaint      Category = "complaint"
	CategoryGeneral        Category = "general"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentNegative   Sentiment = "negative"
	SentimentFrustrated Sentiment = "frustrated"
)

var (
	Categories = []Category{CategoryBilling, CategoryTechnical, CategoryAccount, CategoryFeatureRequest, CategoryComplaint, CategoryGeneral}
	Urgencies  = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}
	Sentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative, SentimentFrustrated}
)

func (c Category) Valid() bool  { return contains(Categories, c) }
func (u Urgency) Valid() bool   { return contains(Urgencies, u) }
func (s Sentiment) Valid() bool { return contains(Sentiments, s) }

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Classification is produced once per ticket and never changed afterwards.
type Classification struct {
	Category    Category  `json:"category"`
	Urgency     Urgency   `json:"urgency"`
	Sentiment   Sentiment `json:"sentiment"`
	Reasoning   string    `json:"reasoning"`
	KeyEntities []string  `json:"key_entities"`
}

// Validate checks every enum field; unknown values are never coerced.
func (c Classification) Validate() error {
	switch {
	case !c.Category.Valid():
		return fmt.Errorf("%w: category %q", ErrInvalidClassification, c.Category)
	case !c.Urgency.Valid():
		return fmt.Errorf("%w: urgency %q", ErrInvalidClassification, c.Urgency)
	case !c.Sentiment.Valid():
		return fmt.Errorf("%w: sentiment %q", ErrInvalidClassification, c.Sentiment)
	}
	return nil
}

// ResponseParams is the input of a response-generation call.
type ResponseParams struct {
	Message             string
	Classification      Classification
	CustomerHistory     string
	CustomerPreferences string
	AdditionalContext   string
}

// Reply is the customer-facing answer plus internal follow-ups.
type Reply struct {
	Text             string   `json:"response"`
	Tone             string   `json:"tone"`
	SuggestedActions []string `json:"suggestedActions"`
}
