package question

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EncodeLinks serializes links into the textual form stored in the database.
func EncodeLinks(links []Link) (string, error) {
	if links == nil {
		links = []Link{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(links); err != nil {
		return "", fmt.Errorf("encode links: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DecodeLinks parses the stored form back into links. Blank input decodes to an empty list.
func DecodeLinks(raw string) ([]Link, error) {
	links := []Link{}
	if strings.TrimSpace(raw) == "" {
		return links, nil
	}
	if err := json.Unmarshal([]byte(raw), &links); err != nil {
		return nil, fmt.Errorf("decode links: %w", err)
	}
	if links == nil {
		links = []Link{}
	}
	return links, nil
}
