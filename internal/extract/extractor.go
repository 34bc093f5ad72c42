// Package extract turns rendered question pages into question records using goquery.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/question-sync/internal/question"
)

// Default selectors for the question site.
const (
	DefaultTitleSelector   = "h2.ut08sa0"
	DefaultContentSelector = ".wmde-markdown"
	DefaultLinksMarker     = "추가 학습 자료"
	DefaultMarkerHeadings  = "h2, h3"
)

// Config controls which elements the extractor reads.
type Config struct {
	TitleSelector   string
	ContentSelector string
	LinksMarker     string
	MarkerHeadings  string
}

// Extractor implements question.Extractor over rendered HTML.
type Extractor struct {
	cfg Config
}

// New builds an Extractor, filling unset selectors with the site defaults.
func New(cfg Config) *Extractor {
	if strings.TrimSpace(cfg.TitleSelector) == "" {
		cfg.TitleSelector = DefaultTitleSelector
	}
	if strings.TrimSpace(cfg.ContentSelector) == "" {
		cfg.ContentSelector = DefaultContentSelector
	}
	if cfg.LinksMarker == "" {
		cfg.LinksMarker = DefaultLinksMarker
	}
	if strings.TrimSpace(cfg.MarkerHeadings) == "" {
		cfg.MarkerHeadings = DefaultMarkerHeadings
	}
	return &Extractor{cfg: cfg}
}

// Extract parses the document and returns the record for id. A page without a
// primary heading yields question.ErrNotFound.
func (e *Extractor) Extract(rawHTML string, id int) (question.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return question.Record{}, fmt.Errorf("%w: parse html for %d: %w", question.ErrExtract, id, err)
	}

	titleEl := doc.Find(e.cfg.TitleSelector).First()
	if titleEl.Length() == 0 {
		return question.Record{}, question.ErrNotFound
	}
	title := strings.TrimSpace(titleEl.Text())
	if title == "" {
		return question.Record{}, question.ErrNotFound
	}

	return question.Record{
		ID:              id,
		Title:           title,
		Content:         e.content(doc),
		AdditionalLinks: e.links(doc),
	}, nil
}

func (e *Extractor) content(doc *goquery.Document) string {
	container := doc.Find(e.cfg.ContentSelector).First()
	if container.Length() == 0 {
		return ""
	}
	return strings.Join(textLines(container.Nodes[0]), "\n")
}

func (e *Extractor) links(doc *goquery.Document) []question.Link {
	links := []question.Link{}
	heading := doc.Find(e.cfg.MarkerHeadings).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), e.cfg.LinksMarker)
	}).First()
	if heading.Length() == 0 {
		return links
	}
	list := heading.NextAllFiltered("ul").First()
	if list.Length() == 0 {
		return links
	}
	list.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		links = append(links, question.Link{
			Text: strings.TrimSpace(a.Text()),
			URL:  href,
		})
	})
	return links
}

// textLines collects every trimmed, non-empty text node below n in document order.
func textLines(n *html.Node) []string {
	var lines []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			if text := strings.TrimSpace(node.Data); text != "" {
				lines = append(lines, text)
			}
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return lines
}
