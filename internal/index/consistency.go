package index

import (
	"fmt"

	"github.com/localkb/engine/internal/store"
)

// ConsistencyReport lists invariant violations found in the store.
// An empty Issues slice means the database is internally consistent.
type ConsistencyReport struct {
	DocumentsChecked int
	ChunksChecked    int
	Issues           []string
}

// Ok reports whether no violations were found.
func (r *ConsistencyReport) Ok() bool { return len(r.Issues) == 0 }

// CheckConsistency verifies the structural invariants of the store:
// content digests match document hashes, chunk sequences are dense
// and ordered, line ranges are sane, and concept links resolve.
func (p *Pipeline) CheckConsistency(collection string) (*ConsistencyReport, error) {
	report := &ConsistencyReport{}

	docs, err := p.DB.ActiveDocuments(collection)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		report.DocumentsChecked++

		body, ok, err := p.DB.GetContent(doc.Hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.Issues = append(report.Issues,
				fmt.Sprintf("document %s/%s: content %s missing", doc.Collection, doc.Path, doc.Hash))
			continue
		}
		if store.DigestHex(body) != doc.Hash {
			report.Issues = append(report.Issues,
				fmt.Sprintf("document %s/%s: content digest does not match hash", doc.Collection, doc.Path))
		}

		chunks, err := p.DB.GetChunksForDocument(doc.Hash)
		if err != nil {
			return nil, err
		}
		for i, c := range chunks {
			report.ChunksChecked++
			if c.Seq != i {
				report.Issues = append(report.Issues,
					fmt.Sprintf("document %s/%s: chunk seq gap at position %d (seq=%d)", doc.Collection, doc.Path, i, c.Seq))
			}
			if c.StartLine > c.EndLine {
				report.Issues = append(report.Issues,
					fmt.Sprintf("chunk %s: start_line %d > end_line %d", c.Hash, c.StartLine, c.EndLine))
			}
		}

		concepts, err := p.DB.GetConceptsForDocument(doc.Hash)
		if err != nil {
			return nil, err
		}
		for _, concept := range concepts {
			linked, err := p.DB.GetChunksForConcept(concept.ID, 0)
			if err != nil {
				return nil, err
			}
			for _, c := range linked {
				if c.DocumentHash != doc.Hash {
					continue
				}
				if got, err := p.DB.GetChunk(c.Hash); err == nil && got == nil {
					report.Issues = append(report.Issues,
						fmt.Sprintf("concept %q links missing chunk %s", concept.Term, c.Hash))
				}
			}
		}
	}
	return report, nil
}
