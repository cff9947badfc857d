package search

import (
	"github.com/localkb/engine/internal/store"
)

// Glossary searches the concept glossary and follows concept links
// out to their chunks, emitting results tagged Source=Glossary.
// MinConfidence filters concepts by a
// naive frequency confidence: chunk_count relative to the best match.
func Glossary(db *store.DB, query string, limit int, minConfidence float64) ([]*Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	concepts, err := db.SearchConcepts(query, limit*candidateFactor)
	if err != nil {
		return nil, err
	}
	if len(concepts) == 0 {
		return nil, nil
	}

	maxCount := 0
	for _, c := range concepts {
		if c.ChunkCount > maxCount {
			maxCount = c.ChunkCount
		}
	}

	seen := make(map[string]bool)
	var results []*Result
	for _, concept := range concepts {
		confidence := 1.0
		if maxCount > 0 {
			confidence = float64(concept.ChunkCount) / float64(maxCount)
		}
		if confidence < minConfidence {
			continue
		}
		chunks, err := db.GetChunksForConcept(concept.ID, limit)
		if err != nil {
			return nil, err
		}
		for _, chunk := range chunks {
			if seen[chunk.Hash] {
				continue
			}
			seen[chunk.Hash] = true
			doc, err := db.FindDocumentByHash(chunk.DocumentHash)
			if err != nil {
				return nil, err
			}
			if doc == nil {
				continue
			}
			r := chunkResult(doc, chunk, SourceGlossary, confidence*100)
			results = append(results, r)
			if len(results) >= limit {
				return results, nil
			}
		}
	}
	return results, nil
}
