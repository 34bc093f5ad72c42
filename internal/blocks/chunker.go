// Package blocks converts question records into bounded workspace blocks.
package blocks

import (
	"strings"

	"github.com/JakeFAU/question-sync/internal/question"
)

// Workspace limits for a single page-creation call.
const (
	MaxTextLength   = 2000
	MaxBlocksPerReq = 100
)

// DefaultLinksHeading titles the supplementary link section.
const DefaultLinksHeading = "추가 학습 자료"

// Options tunes the chunker. Zero values fall back to the workspace limits.
type Options struct {
	LinksHeading  string
	MaxTextLength int
	MaxBlocks     int
}

// Chunker implements question.Chunker.
type Chunker struct {
	opts Options
}

// New builds a Chunker.
func New(opts Options) *Chunker {
	if opts.LinksHeading == "" {
		opts.LinksHeading = DefaultLinksHeading
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = MaxTextLength
	}
	if opts.MaxBlocks <= 0 {
		opts.MaxBlocks = MaxBlocksPerReq
	}
	return &Chunker{opts: opts}
}

// Chunk splits the record content into paragraph blocks, appends the link section
// and truncates to the per-request block limit. Blocks past the limit are dropped.
func (c *Chunker) Chunk(record question.Record) []question.Block {
	out := make([]question.Block, 0, c.estimate(record))
	for _, slice := range split(record.Content, c.opts.MaxTextLength) {
		out = append(out, question.Block{Kind: question.BlockParagraph, Text: slice})
	}
	if len(record.AdditionalLinks) > 0 {
		out = append(out, question.Block{Kind: question.BlockHeading, Text: c.opts.LinksHeading})
		for _, link := range record.AdditionalLinks {
			out = append(out, question.Block{Kind: question.BlockListItem, Text: link.Text, URL: link.URL})
		}
	}
	if len(out) > c.opts.MaxBlocks {
		out = out[:c.opts.MaxBlocks]
	}
	return out
}

func (c *Chunker) estimate(record question.Record) int {
	n := (len(record.Content)+c.opts.MaxTextLength-1)/c.opts.MaxTextLength + len(record.AdditionalLinks) + 1
	if n > c.opts.MaxBlocks {
		return c.opts.MaxBlocks
	}
	return n
}

// split cuts s into pieces of at most size characters, keeping order.
func split(s string, size int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	pieces := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// Text concatenates the paragraph blocks, ignoring headings and list items.
func Text(blocks []question.Block) string {
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Kind == question.BlockParagraph {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}
