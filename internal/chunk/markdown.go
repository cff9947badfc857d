package chunk

import (
	"context"
	"strings"
)

// MarkdownChunker splits Markdown by heading sections. Each section
// becomes a Text chunk whose breadcrumb is the heading path joined
// with "::". Oversized sections are re-split by the window fallback.
type MarkdownChunker struct {
	window *WindowChunker
}

var _ Chunker = (*MarkdownChunker)(nil)

// NewMarkdownChunker returns a markdown chunker with default window
// geometry for oversized sections.
func NewMarkdownChunker() *MarkdownChunker {
	return &MarkdownChunker{window: NewWindowChunker()}
}

type mdSection struct {
	breadcrumb string
	startLine  int // 1-based
	pos        int
	lines      []string
}

// Chunk implements Chunker.
func (c *MarkdownChunker) Chunk(ctx context.Context, path string, content []byte) ([]*Chunk, error) {
	if len(content) == 0 {
		return nil, nil
	}
	body := string(content)
	lines := strings.Split(body, "\n")

	var sections []*mdSection
	headingPath := make([]string, 0, 6)
	current := &mdSection{startLine: 1, pos: 0}
	pos := 0

	for i, line := range lines {
		level, title := headingOf(line)
		if level > 0 {
			if len(current.lines) > 0 {
				sections = append(sections, current)
			}
			if level <= len(headingPath) {
				headingPath = headingPath[:level-1]
			}
			headingPath = append(headingPath, title)
			current = &mdSection{
				breadcrumb: strings.Join(headingPath, "::"),
				startLine:  i + 1,
				pos:        pos,
			}
		}
		current.lines = append(current.lines, line)
		pos += len(line) + 1
	}
	if len(current.lines) > 0 {
		sections = append(sections, current)
	}

	var chunks []*Chunk
	for _, section := range sections {
		text := strings.Join(section.lines, "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if len(text) > c.window.WindowSize*2 {
			sub, err := c.window.Chunk(ctx, path, []byte(text))
			if err != nil {
				return nil, err
			}
			for _, s := range sub {
				s.Breadcrumb = section.breadcrumb
				s.StartLine += section.startLine - 1
				s.EndLine += section.startLine - 1
				s.Pos += section.pos
				chunks = append(chunks, s)
			}
			continue
		}
		chunks = append(chunks, &Chunk{
			Hash:       HashChunk(text, "", ""),
			Content:    text,
			Type:       TypeText,
			Breadcrumb: section.breadcrumb,
			Language:   "markdown",
			StartLine:  section.startLine,
			EndLine:    section.startLine + len(section.lines) - 1,
			Pos:        section.pos,
		})
	}

	if len(chunks) == 0 {
		return []*Chunk{wholeBodyChunk(content, "markdown")}, nil
	}
	for i, ch := range chunks {
		ch.Seq = i
	}
	return chunks, nil
}

// headingOf returns the ATX heading level and title of a line, or
// (0, "") for non-heading lines.
func headingOf(line string) (int, string) {
	trimmed := strings.TrimLeft(line, " ")
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(trimmed) || trimmed[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(trimmed[level:])
}
