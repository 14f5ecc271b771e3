// Package knowledge manages product documentation that grounds generated
// replies. Documents live in the archival memory store next to customer
// memories and are namespaced by a header marker.
package knowledge

import (
	"errors"
	"fmt"
	"strings"
)

type Category string

const (
	CategoryFAQ             Category = "faq"
	CategoryPricing         Category = "pricing"
	CategoryFeatures        Category = "features"
	CategoryPolicies        Category = "policies"
	CategoryTroubleshooting Category = "troubleshooting"
	CategoryGeneral         Category = "general"
)

var Categories = []Category{
	CategoryFAQ, CategoryPricing, CategoryFeatures, CategoryPolicies, CategoryTroubleshooting, CategoryGeneral,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// CategoryNames lists the valid categories as strings, for error messages and schemas.
func CategoryNames() []string {
	out := make([]string, len(Categories))
	for i, c := range Categories {
		out[i] = string(c)
	}
	return out
}

type Document struct {
	ID        string   `json:"id,omitempty" yaml:"-"`
	Title     string   `json:"title" yaml:"title"`
	Content   string   `json:"content" yaml:"content"`
	Category  Category `json:"category" yaml:"category"`
	Tags      []string `json:"tags" yaml:"tags"`
	CreatedAt string   `json:"created_at,omitempty" yaml:"-"`
}

// Validate checks the fields required to store a document.
func (d Document) Validate() error {
	if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Content) == "" {
		return errors.New("title and content are required")
	}
	if !d.Category.Valid() {
		return fmt.Errorf("invalid category %q, must be one of: %s", d.Category, strings.Join(CategoryNames(), ", "))
	}
	if strings.ContainsAny(d.Title, "|]") {
		return errors.New("title must not contain '|' or ']'")
	}
	if d.Title != strings.TrimSpace(d.Title) {
		return errors.New("title must not start or end with whitespace")
	}
	for _, tag := range d.Tags {
		if strings.ContainsAny(tag, ",]") {
			return fmt.Errorf("tag %q must not contain ',' or ']'", tag)
		}
	}
	return nil
}
