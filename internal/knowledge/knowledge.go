package knowledge

import (
	"context"
	"fmt"
	"strings"

	"rageraps/internal/domain"
)

// Kinds of stored knowledge entries.
const (
	KindLyric = "lyric"
	KindBio   = "bio"
)

// Retriever looks up background material about an entity. An empty result
// is not an error; callers decide how to degrade when nothing is found.
type Retriever interface {
	Retrieve(ctx context.Context, entity, style, kind string, k int) ([]domain.Snippet, error)
}

// FormatSnippets joins retrieval results into a prompt context block.
// Each snippet is labeled with its entity so mixed lookups stay legible.
func FormatSnippets(snippets []domain.Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, s := range snippets {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s] %s", s.Entity, s.Content)
	}
	return sb.String()
}
