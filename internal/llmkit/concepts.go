package llmkit

import (
	"strings"

	"github.com/localkb/engine/internal/store"
)

// ExtractConcepts upserts each extracted concept from generated
// metadata and links it to every chunk whose content contains the
// concept's snippet substring, updating per-concept chunk counts.
func ExtractConcepts(db *store.DB, documentHash string, chunks []*store.Chunk, meta DocumentMetadata) error {
	for _, ec := range meta.ExtractedConcepts {
		term := strings.TrimSpace(ec.Term)
		if term == "" {
			continue
		}
		conceptID, err := db.UpsertConcept(term)
		if err != nil {
			return err
		}

		snippet := strings.TrimSpace(ec.Snippet)
		for _, c := range chunks {
			if snippet != "" && !strings.Contains(c.Content, snippet) {
				continue
			}
			excerpt := snippet
			if excerpt == "" {
				excerpt = shortExcerpt(c.Content, 100)
			}
			if err := db.LinkConceptToChunk(conceptID, c.Hash, documentHash, excerpt); err != nil {
				return err
			}
		}
	}
	return nil
}

func shortExcerpt(content string, n int) string {
	content = strings.TrimSpace(content)
	if len(content) <= n {
		return content
	}
	return content[:n]
}
