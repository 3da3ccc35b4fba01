package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// HTMLParser handles HTML files. The DOM is pruned of non-content
// elements, then the remainder is converted to markdown so headings
// and lists survive into the chunks.
type HTMLParser struct {
	converter *md.Converter
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		converter: md.NewConverter("", true, nil),
	}
}

// noiseSelectors match elements that carry no document content.
const noiseSelectors = "script, style, noscript, nav, header, footer, aside, form, iframe"

// Parse reads and parses HTML from the reader
func (p *HTMLParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	return p.parse(r, "")
}

// ParseFile reads and parses an HTML file
func (p *HTMLParser) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	return p.parse(f, filePath)
}

func (p *HTMLParser) parse(r io.Reader, filePath string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := p.extractTitle(doc, filePath)
	doc.Find(noiseSelectors).Remove()

	root := doc.Find("main")
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	content := p.converter.Convert(root)
	content = collapseBlankLines(content)

	return &Document{
		Content: content,
		Title:   title,
		Metadata: map[string]string{
			"file_size": strconv.Itoa(len(content)),
		},
	}, nil
}

// extractTitle prefers the <title> tag, then the first <h1>, then the
// file name.
func (p *HTMLParser) extractTitle(doc *goquery.Document, filePath string) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	if filePath != "" {
		return ExtractTitle("", filePath)
	}
	return "Untitled"
}

var blankLines = regexp.MustCompile(`\n\s*\n\s*\n+`)

// collapseBlankLines squeezes runs of blank lines left behind by
// removed elements.
func collapseBlankLines(content string) string {
	return strings.TrimSpace(blankLines.ReplaceAllString(content, "\n\n"))
}

// FileType returns the file type this parser handles
func (p *HTMLParser) FileType() FileType {
	return FileTypeHTML
}
