package search

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/localkb/engine/internal/llmkit"
)

// QueryExpander produces query variants used to widen recall before
// hybrid search.
type QueryExpander interface {
	// Expand returns up to a handful of alternative phrasings for
	// query, not including query itself.
	Expand(ctx context.Context, query string) ([]string, error)
}

// LLMQueryExpander asks a chat model for paraphrases; on any failure
// it degrades to the static synonym expander rather than erroring.
type LLMQueryExpander struct {
	client   llmkit.LLMClient
	fallback *SynonymExpander
}

// NewLLMQueryExpander builds an expander over client.
func NewLLMQueryExpander(client llmkit.LLMClient) *LLMQueryExpander {
	return &LLMQueryExpander{client: client, fallback: NewSynonymExpander()}
}

const expandSystemPrompt = `Rewrite the search query into up to 3 alternative phrasings that ` +
	`preserve its meaning. Respond with a JSON array of strings only.`

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// Expand implements QueryExpander.
func (e *LLMQueryExpander) Expand(ctx context.Context, query string) ([]string, error) {
	raw, err := e.client.ChatCompletion(ctx, []llmkit.Message{
		{Role: llmkit.RoleSystem, Content: expandSystemPrompt},
		{Role: llmkit.RoleUser, Content: query},
	})
	if err != nil {
		return e.fallback.Expand(ctx, query)
	}
	candidate := jsonArrayPattern.FindString(raw)
	if candidate == "" {
		return e.fallback.Expand(ctx, query)
	}
	var variants []string
	if err := json.Unmarshal([]byte(candidate), &variants); err != nil {
		return e.fallback.Expand(ctx, query)
	}
	out := variants[:0]
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v != "" && !strings.EqualFold(v, query) {
			out = append(out, v)
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out, nil
}

// SynonymExpander rewrites queries with a small dictionary mapping
// prose vocabulary onto the vocabulary that actually appears in code
// and technical documents. It is the no-LLM expansion path.
type SynonymExpander struct {
	synonyms map[string][]string
}

// NewSynonymExpander returns an expander with the built-in dictionary.
func NewSynonymExpander() *SynonymExpander {
	return &SynonymExpander{synonyms: defaultSynonyms}
}

// maxSynonymVariants caps how many rewritten queries Expand returns.
const maxSynonymVariants = 3

// Expand substitutes known terms one at a time, producing one variant
// per substitution up to the cap.
func (e *SynonymExpander) Expand(_ context.Context, query string) ([]string, error) {
	words := strings.Fields(query)
	var variants []string
	for i, w := range words {
		subs, ok := e.synonyms[strings.ToLower(w)]
		if !ok {
			continue
		}
		for _, sub := range subs {
			replaced := make([]string, len(words))
			copy(replaced, words)
			replaced[i] = sub
			variants = append(variants, strings.Join(replaced, " "))
			if len(variants) >= maxSynonymVariants {
				return variants, nil
			}
		}
	}
	return variants, nil
}

// defaultSynonyms maps user vocabulary onto code/document vocabulary.
// Directionality matters: queries use prose, indexed content uses the
// identifiers on the right.
var defaultSynonyms = map[string][]string{
	"function":  {"func", "method"},
	"method":    {"func", "function"},
	"delete":    {"remove", "drop"},
	"remove":    {"delete", "drop"},
	"create":    {"new", "insert"},
	"insert":    {"create", "add"},
	"fetch":     {"get", "load"},
	"get":       {"fetch", "read"},
	"update":    {"modify", "set"},
	"error":     {"err", "failure"},
	"config":    {"configuration", "settings"},
	"settings":  {"config", "options"},
	"test":      {"spec", "check"},
	"directory": {"folder", "dir"},
	"document":  {"doc", "file"},
	"search":    {"query", "find"},
	"find":      {"search", "lookup"},
}
