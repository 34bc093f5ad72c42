// Package notion adapts the Notion API to publisher.Workspace.
package notion

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/JakeFAU/question-sync/internal/question"
)

// Default property names on the destination database.
const (
	DefaultTitleProperty = "Name"
	DefaultIDProperty    = "ID"
)

// Config identifies the destination database.
type Config struct {
	Token         string
	DatabaseID    string
	TitleProperty string
	IDProperty    string
	Timeout       time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Configured reports whether both token and destination are present.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.DatabaseID) != ""
}

// Workspace creates pages in one Notion database.
type Workspace struct {
	client        *notionapi.Client
	databaseID    notionapi.DatabaseID
	titleProperty string
	idProperty    string
}

// New builds a Workspace. It fails when the token or database id is missing; callers
// should check Config.Configured first when publishing is optional.
func New(cfg Config) (*Workspace, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("notion token and database id are required")
	}
	if cfg.TitleProperty == "" {
		cfg.TitleProperty = DefaultTitleProperty
	}
	if cfg.IDProperty == "" {
		cfg.IDProperty = DefaultIDProperty
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	client := notionapi.NewClient(notionapi.Token(cfg.Token), notionapi.WithHTTPClient(httpClient))
	return &Workspace{
		client:        client,
		databaseID:    notionapi.DatabaseID(cfg.DatabaseID),
		titleProperty: cfg.TitleProperty,
		idProperty:    cfg.IDProperty,
	}, nil
}

// CreatePage creates one page and returns its id.
func (w *Workspace) CreatePage(ctx context.Context, req question.PageRequest) (string, error) {
	page, err := w.client.Page.Create(ctx, w.pageRequest(req))
	if err != nil {
		return "", fmt.Errorf("notion create page: %w", err)
	}
	return string(page.ID), nil
}

func (w *Workspace) pageRequest(req question.PageRequest) *notionapi.PageCreateRequest {
	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: w.databaseID,
		},
		Properties: notionapi.Properties{
			w.titleProperty: notionapi.TitleProperty{
				Type:  notionapi.PropertyTypeTitle,
				Title: []notionapi.RichText{richText(req.Title, "")},
			},
			w.idProperty: notionapi.NumberProperty{
				Type:   notionapi.PropertyTypeNumber,
				Number: float64(req.ID),
			},
		},
		Children: toBlocks(req.Blocks),
	}
}

func toBlocks(in []question.Block) []notionapi.Block {
	out := make([]notionapi.Block, 0, len(in))
	for _, blk := range in {
		switch blk.Kind {
		case question.BlockParagraph:
			out = append(out, &notionapi.ParagraphBlock{
				BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
				Paragraph:  notionapi.Paragraph{RichText: []notionapi.RichText{richText(blk.Text, "")}},
			})
		case question.BlockHeading:
			out = append(out, &notionapi.Heading2Block{
				BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading2},
				Heading2:   notionapi.Heading{RichText: []notionapi.RichText{richText(blk.Text, "")}},
			})
		case question.BlockListItem:
			out = append(out, &notionapi.BulletedListItemBlock{
				BasicBlock:       notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeBulletedListItem},
				BulletedListItem: notionapi.ListItem{RichText: []notionapi.RichText{richText(blk.Text, blk.URL)}},
			})
		}
	}
	return out
}

func richText(content, url string) notionapi.RichText {
	text := &notionapi.Text{Content: content}
	if url != "" {
		text.Link = &notionapi.Link{Url: url}
	}
	return notionapi.RichText{Type: notionapi.ObjectTypeText, Text: text}
}
