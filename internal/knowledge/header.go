package knowledge

import (
	"regexp"
	"strings"

	"support-orchestrator/internal/letta"
)

// The archive has no structured metadata, so documents are stored as
//
//	[KNOWLEDGE_BASE | category: X | title: Y | tags: a, b]
//
//	<content>
//
// Titles must not contain '|' or ']'; tags must not contain ',' or ']'.

const (
	untitled = "Untitled"
	marker   = "[" + letta.KnowledgeTag
)

var headerRe = regexp.MustCompile(`\[` + letta.KnowledgeTag + ` \| category: (\w+) \| title: ([^|\]]+)(?:\| tags: ([^\]]+))?\]`)

// Encode renders a document into archive text.
func Encode(d Document) string {
	var b strings.Builder
	b.WriteString(marker)
	b.WriteString(" | category: ")
	b.WriteString(string(d.Category))
	b.WriteString(" | title: ")
	b.WriteString(d.Title)
	if tags := cleanTags(d.Tags); len(tags) > 0 {
		b.WriteString(" | tags: ")
		b.WriteString(strings.Join(tags, ", "))
	}
	b.WriteString("]\n\n")
	b.WriteString(d.Content)
	return b.String()
}

// IsKnowledge reports whether archive text carries the knowledge marker.
func IsKnowledge(text string) bool {
	return strings.Contains(text, marker)
}

// Decode rebuilds a document from archive text. A missing or malformed
// header yields category general, title Untitled and the raw text as content.
func Decode(id, text, createdAt string) Document {
	doc := Document{
		ID:        id,
		Title:     untitled,
		Content:   text,
		Category:  CategoryGeneral,
		Tags:      []string{},
		CreatedAt: createdAt,
	}

	loc := headerRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return doc
	}
	category := Category(text[loc[2]:loc[3]])
	if category.Valid() {
		doc.Category = category
	}
	if title := strings.TrimSpace(text[loc[4]:loc[5]]); title != "" {
		doc.Title = title
	}
	if loc[6] >= 0 {
		doc.Tags = cleanTags(strings.Split(text[loc[6]:loc[7]], ","))
	}
	doc.Content = strings.TrimPrefix(text[loc[1]:], "\n\n")
	return doc
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
