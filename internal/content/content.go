// Package content defines the reference material store: monster stat
// blocks and rules excerpts retrieved into AI prompts.
package content

import "context"

// Entry categories.
const (
	CategoryMonster = "monster"
	CategoryRule    = "rule"
)

// Entry is one reference record.
type Entry struct {
	ID       string
	Name     string
	Category string
	Text     string
}

// Retriever searches reference entries by keyword.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Entry, error)
}
