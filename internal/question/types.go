// Package question defines the record model and collaborator contracts shared by
// the scrape and sync pipelines.
package question

import (
	"fmt"
	"strings"
	"time"
)

// Link is one entry of a question's supplementary material list.
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Record is the structured extraction result for one question page.
type Record struct {
	ID              int
	Title           string
	Content         string
	AdditionalLinks []Link
	CreatedAt       time.Time
}

// Validate reports whether the record may be persisted.
func (r Record) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: question id must be > 0, got %d", ErrInvalidRecord, r.ID)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: question %d has no title", ErrInvalidRecord, r.ID)
	}
	return nil
}

// DisplayTitle is the page title used in the external workspace.
func (r Record) DisplayTitle() string {
	return fmt.Sprintf("[%d] %s", r.ID, r.Title)
}

// BlockKind enumerates the document block shapes the workspace accepts.
type BlockKind string

// Block kinds emitted by the chunker.
const (
	BlockParagraph BlockKind = "paragraph"
	BlockHeading   BlockKind = "heading_2"
	BlockListItem  BlockKind = "bulleted_list_item"
)

// Block is one unit of external document content.
type Block struct {
	Kind BlockKind
	Text string
	// URL is only set for list items that carry a link.
	URL string
}

// PageRequest is a single document-creation call against the workspace.
type PageRequest struct {
	ID     int
	Title  string
	Blocks []Block
}
