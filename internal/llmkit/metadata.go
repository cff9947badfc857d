package llmkit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/localkb/engine/internal/store"
)

// MetadataContext carries the facts a metadata generator needs about
// the document being described.
type MetadataContext struct {
	SourceType     string
	Language       string
	FileExtension  string
	Collection     string
	ProviderConfig string
	CreatedAt      string
	ModifiedAt     string
	ChunkTypes     []string // inventory of chunk_type values present, optional
	Filename       string
}

// ExtractedConcept is one glossary candidate surfaced by metadata
// generation, the raw material for the glossary graph.
type ExtractedConcept struct {
	Term    string `json:"term"`
	Snippet string `json:"snippet"`
}

// DocumentMetadata is the schema a metadata generator must produce.
type DocumentMetadata struct {
	Summary          string              `json:"summary"`
	Title            string              `json:"title"`
	Keywords         []string            `json:"keywords"`
	Category         string              `json:"category"`
	Intent           string              `json:"intent"`
	Concepts         []string            `json:"concepts"`
	Difficulty       string              `json:"difficulty"`
	SuggestedQueries []string            `json:"suggested_queries"`
	ExtractedConcepts []ExtractedConcept `json:"extracted_concepts"`
	Model            string              `json:"-"`
	GeneratedAt      string              `json:"-"`
}

// Difficulty levels a generator may assign.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// MetadataGenerator is the collaborator interface:
// generate_metadata(content, context) -> DocumentMetadata.
type MetadataGenerator interface {
	GenerateMetadata(ctx context.Context, content string, mctx MetadataContext) (DocumentMetadata, error)
}

// CacheKey computes the content-addressed metadata cache key:
// digest(content || model_name).
func CacheKey(content, modelName string) string {
	sum := sha256.Sum256([]byte(content + modelName))
	return hex.EncodeToString(sum[:])
}

// LLMMetadataGenerator calls an LLMClient and parses its JSON
// response, falling back to RuleBasedMetadataGenerator on any failure
// so model failures degrade to heuristic metadata instead of
// failing the indexing run.
type LLMMetadataGenerator struct {
	client   LLMClient
	fallback *RuleBasedMetadataGenerator
}

var _ MetadataGenerator = (*LLMMetadataGenerator)(nil)

// NewLLMMetadataGenerator builds an LLM-backed metadata generator.
func NewLLMMetadataGenerator(client LLMClient) *LLMMetadataGenerator {
	return &LLMMetadataGenerator{client: client, fallback: &RuleBasedMetadataGenerator{}}
}

// GenerateMetadata truncates content, builds the schema prompt, calls
// the LLM, and parses its response, falling back
// to the rule-based generator on any failure.
func (g *LLMMetadataGenerator) GenerateMetadata(ctx context.Context, content string, mctx MetadataContext) (DocumentMetadata, error) {
	truncated := TruncateContent(content, mctx)
	prompt := buildMetadataPrompt(truncated, mctx)

	raw, err := g.client.ChatCompletion(ctx, []Message{
		{Role: RoleSystem, Content: metadataSystemPrompt},
		{Role: RoleUser, Content: prompt},
	})
	if err != nil {
		return g.fallback.GenerateMetadata(ctx, content, mctx)
	}

	meta, err := parseMetadataJSON(raw)
	if err != nil {
		return g.fallback.GenerateMetadata(ctx, content, mctx)
	}
	meta.Model = g.client.ModelName()
	return meta, nil
}

const metadataSystemPrompt = `You are a code and document analysis assistant. Given the content of a ` +
	`file, respond with a single JSON object describing it. Fields: ` +
	`summary (100-200 words), title (a short descriptive title), keywords ` +
	`(5-10 words), category, intent, concepts (list of strings), difficulty ` +
	`(one of beginner, intermediate, advanced), suggested_queries (3-5 ` +
	`natural language questions this content answers), extracted_concepts ` +
	`(list of {term, snippet} where snippet is ~100 characters of ` +
	`surrounding context). Respond with JSON only, no commentary.`

func buildMetadataPrompt(content string, mctx MetadataContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source type: %s\n", mctx.SourceType)
	if mctx.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", mctx.Language)
	}
	if mctx.Collection != "" {
		fmt.Fprintf(&b, "Collection: %s\n", mctx.Collection)
	}
	if len(mctx.ChunkTypes) > 0 {
		fmt.Fprintf(&b, "Chunk types present: %s\n", strings.Join(mctx.ChunkTypes, ", "))
	}
	b.WriteString("\nContent:\n")
	b.WriteString(content)
	return b.String()
}

// jsonObjectPattern extracts the outermost JSON object from a response
// that may be wrapped in a markdown code fence or surrounded by
// conversational chatter.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

func parseMetadataJSON(raw string) (DocumentMetadata, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	candidate := jsonObjectPattern.FindString(raw)
	if candidate == "" {
		return DocumentMetadata{}, fmt.Errorf("no JSON object found in response")
	}

	var meta DocumentMetadata
	if err := json.Unmarshal([]byte(candidate), &meta); err != nil {
		return DocumentMetadata{}, err
	}
	return meta, nil
}

// TruncateContent applies type-specific truncation
// so prompts stay bounded regardless of source file size.
func TruncateContent(content string, mctx MetadataContext) string {
	const maxHeadTail = 2000

	switch {
	case normalizeExt(mctx.FileExtension) == "md", normalizeExt(mctx.FileExtension) == "markdown":
		return truncateMarkdown(content)
	case isCodeExtension(mctx.FileExtension):
		return truncateCode(content)
	default:
		return truncateHeadTail(content, maxHeadTail)
	}
}

func isCodeExtension(ext string) bool {
	switch normalizeExt(ext) {
	case "go", "rs", "py", "js", "ts", "tsx", "jsx", "java", "c", "cpp", "h":
		return true
	default:
		return false
	}
}

// normalizeExt accepts extensions with or without a leading dot.
func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(ext), ".")
}

// truncateMarkdown keeps headers and the first paragraph of each
// section.
func truncateMarkdown(content string) string {
	lines := strings.Split(content, "\n")
	var out []string
	inParagraph := false
	paragraphEmitted := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			out = append(out, line)
			inParagraph = false
			paragraphEmitted = false
			continue
		}
		if trimmed == "" {
			if inParagraph {
				paragraphEmitted = true
			}
			inParagraph = false
			continue
		}
		inParagraph = true
		if !paragraphEmitted {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// truncateCode keeps signatures, docstrings, and comments, dropping
// implementation bodies.
func truncateCode(content string) string {
	lines := strings.Split(content, "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "//"), strings.HasPrefix(trimmed, "#"),
			strings.HasPrefix(trimmed, "*"), strings.HasPrefix(trimmed, "/*"),
			strings.HasPrefix(trimmed, `"""`), strings.HasPrefix(trimmed, "'''"):
			out = append(out, line)
		case looksLikeSignature(trimmed):
			out = append(out, line)
		}
	}
	if len(out) == 0 {
		return truncateHeadTail(content, 2000)
	}
	return strings.Join(out, "\n")
}

func looksLikeSignature(line string) bool {
	keywords := []string{"func ", "def ", "function ", "class ", "struct ", "interface ", "type ", "fn ", "public ", "private ", "export "}
	for _, kw := range keywords {
		if strings.HasPrefix(line, kw) || strings.Contains(line, " "+kw) {
			return true
		}
	}
	return false
}

func truncateHeadTail(content string, n int) string {
	if len(content) <= 2*n {
		return content
	}
	return content[:n] + "\n...\n" + content[len(content)-n:]
}

// RuleBasedMetadataGenerator synthesizes metadata without any LLM
// call, used both as the final fallback and as a standalone offline
// generator.
type RuleBasedMetadataGenerator struct{}

var _ MetadataGenerator = (*RuleBasedMetadataGenerator)(nil)

// GenerateMetadata implements MetadataGenerator using only string
// heuristics over the content and context.
func (RuleBasedMetadataGenerator) GenerateMetadata(_ context.Context, content string, mctx MetadataContext) (DocumentMetadata, error) {
	title := mctx.Filename
	if title == "" {
		title = "untitled"
	}

	summary := firstParagraph(content)
	if len(summary) > 200 {
		summary = summary[:200]
	}

	keywords := topWords(content, 8)
	concepts := capitalizedTokens(content, 8)
	category := categoryFromContext(mctx)

	return DocumentMetadata{
		Summary:    summary,
		Title:      title,
		Keywords:   keywords,
		Category:   category,
		Intent:     "reference",
		Concepts:   concepts,
		Difficulty: DifficultyIntermediate,
		Model:      "rule-based",
	}, nil
}

func firstParagraph(content string) string {
	for _, block := range strings.Split(content, "\n\n") {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		return trimmed
	}
	return ""
}

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// topWords returns the most frequent alphanumeric words of length >=5
// by frequency.
func topWords(content string, k int) []string {
	counts := map[string]int{}
	for _, w := range wordPattern.FindAllString(content, -1) {
		lw := strings.ToLower(w)
		if len(lw) < 5 {
			continue
		}
		counts[lw]++
	}
	type kv struct {
		word  string
		count int
	}
	kvs := make([]kv, 0, len(counts))
	for w, c := range counts {
		kvs = append(kvs, kv{w, c})
	}
	sort.Slice(kvs, func(i, j int) bool {
		if kvs[i].count != kvs[j].count {
			return kvs[i].count > kvs[j].count
		}
		return kvs[i].word < kvs[j].word
	})
	if len(kvs) > k {
		kvs = kvs[:k]
	}
	out := make([]string, len(kvs))
	for i, e := range kvs {
		out[i] = e.word
	}
	return out
}

// capitalizedTokens returns distinct capitalised words, a crude stand-
// in for concept extraction when no LLM is available (step
// 5 "concepts = capitalised tokens").
func capitalizedTokens(content string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range wordPattern.FindAllString(content, -1) {
		if len(w) < 3 || !unicode.IsUpper(rune(w[0])) {
			continue
		}
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func categoryFromContext(mctx MetadataContext) string {
	ext := normalizeExt(mctx.FileExtension)
	switch {
	case ext == "md" || ext == "markdown" || ext == "txt":
		return "documentation"
	case isCodeExtension(ext):
		return "code"
	}
	for _, ct := range mctx.ChunkTypes {
		switch strings.ToLower(ct) {
		case "function", "method", "class", "struct", "interface", "enum", "module":
			return "code"
		}
	}
	return "reference"
}

// CachedMetadataGenerator wraps another MetadataGenerator with the
// store's content-addressed cache.
type CachedMetadataGenerator struct {
	inner MetadataGenerator
	db    *store.DB
	model string
}

var _ MetadataGenerator = (*CachedMetadataGenerator)(nil)

// NewCachedMetadataGenerator wraps inner with content-addressed
// caching keyed by digest(content || model).
func NewCachedMetadataGenerator(inner MetadataGenerator, db *store.DB, model string) *CachedMetadataGenerator {
	return &CachedMetadataGenerator{inner: inner, db: db, model: model}
}

// GenerateMetadata returns the cached result when present; otherwise
// it calls inner and persists the result.
func (c *CachedMetadataGenerator) GenerateMetadata(ctx context.Context, content string, mctx MetadataContext) (DocumentMetadata, error) {
	return c.generate(ctx, content, mctx, false)
}

// GenerateMetadataForce bypasses the cache unconditionally.
func (c *CachedMetadataGenerator) GenerateMetadataForce(ctx context.Context, content string, mctx MetadataContext) (DocumentMetadata, error) {
	return c.generate(ctx, content, mctx, true)
}

func (c *CachedMetadataGenerator) generate(ctx context.Context, content string, mctx MetadataContext, force bool) (DocumentMetadata, error) {
	key := CacheKey(content, c.model)

	if !force {
		if raw, ok, err := c.db.GetCachedMetadata(key); err == nil && ok {
			var meta DocumentMetadata
			if err := json.Unmarshal([]byte(raw), &meta); err == nil {
				return meta, nil
			}
		}
	}

	meta, err := c.inner.GenerateMetadata(ctx, content, mctx)
	if err != nil {
		return DocumentMetadata{}, err
	}

	if raw, err := json.Marshal(meta); err == nil {
		_ = c.db.SetCachedMetadata(key, string(raw))
	}
	return meta, nil
}
