package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// MarkdownParser handles markdown files. Formatting is kept mostly
// intact so section structure survives into the chunks; only YAML
// frontmatter is stripped from the body.
type MarkdownParser struct{}

// NewMarkdownParser creates a new markdown parser
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// Parse reads and parses markdown from the reader
func (p *MarkdownParser) Parse(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown: %w", err)
	}

	return p.parse(string(data), ""), nil
}

// ParseFile reads and parses a markdown file
func (p *MarkdownParser) ParseFile(ctx context.Context, filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return p.parse(string(data), filePath), nil
}

func (p *MarkdownParser) parse(content, filePath string) *Document {
	metadata := extractFrontmatter(content)
	body := removeFrontmatter(content)

	title := ExtractTitle(body, filePath)
	if fm, ok := metadata["title"]; ok && fm != "" {
		title = fm
	}

	metadata["file_size"] = strconv.Itoa(len(content))

	return &Document{
		Content:  strings.TrimSpace(body),
		Title:    title,
		Metadata: metadata,
	}
}

// extractFrontmatter parses simple key: value pairs out of a YAML
// frontmatter block.
func extractFrontmatter(content string) map[string]string {
	metadata := make(map[string]string)
	if !hasFrontmatter(content) {
		return metadata
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "---" {
			break
		}
		if idx := strings.Index(line, ":"); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.Trim(strings.TrimSpace(line[idx+1:]), `"`)
			metadata[key] = value
		}
	}
	return metadata
}

// removeFrontmatter drops the frontmatter block from the body.
func removeFrontmatter(content string) string {
	if !hasFrontmatter(content) {
		return content
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return content
}

func hasFrontmatter(content string) bool {
	lines := strings.Split(content, "\n")
	return len(lines) >= 2 && strings.TrimSpace(lines[0]) == "---"
}

// FileType returns the file type this parser handles
func (p *MarkdownParser) FileType() FileType {
	return FileTypeMD
}
