package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ChatPage extracts produced images and critic responses from chat HTML snapshots.
type ChatPage struct {
	resultImages  string
	responseBlock string
}

// NewChatPage binds the selectors owned by the external UI.
func NewChatPage(resultImages, responseBlock string) *ChatPage {
	return &ChatPage{resultImages: resultImages, responseBlock: responseBlock}
}

// ImageSources returns the src of every produced image, in display order.
// Images without a src (still rendering) are skipped.
func (p *ChatPage) ImageSources(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var sources []string
	doc.Find(p.resultImages).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" {
			return
		}
		sources = append(sources, src)
	})

	return sources, nil
}

// LatestResponse returns the text of the last response block, or "" when none rendered yet.
func (p *ChatPage) LatestResponse(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	block := doc.Find(p.responseBlock).Last()
	if block.Length() == 0 {
		return "", nil
	}
	return strings.TrimSpace(block.Text()), nil
}
