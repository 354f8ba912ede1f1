// Package fusion implements reciprocal rank fusion over parallel ranked lists.
package fusion

import (
	"fmt"
	"sort"

	"github.com/fabfab/agentic-rag/rag"
)

const DefaultTopN = 3

// RRF scores every distinct document as the sum of 1/(rank+k) over the lists
// that contain it. Ranks are 1-based and documents are identified by content.
type RRF struct {
	k    float64
	topN int
}

// New validates k and topN. k has no default: callers must configure it.
func New(k float64, topN int) (*RRF, error) {
	if k < 1 {
		return nil, fmt.Errorf("rrf k must be >= 1, got %v", k)
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &RRF{k: k, topN: topN}, nil
}

func (f *RRF) K() float64 {
	return f.k
}

func (f *RRF) TopN() int {
	return f.topN
}

// Scores returns every distinct document with its fused score, ordered by
// descending score. Equal scores keep the order in which the document was
// first seen across the input lists.
func (f *RRF) Scores(lists []rag.RetrievalResult) []rag.FusedScore {
	index := make(map[string]int)
	scored := make([]rag.FusedScore, 0)

	for _, list := range lists {
		for i, doc := range list.Documents {
			contribution := 1 / (float64(i+1) + f.k)
			if pos, ok := index[doc.Content]; ok {
				scored[pos].Score += contribution
				continue
			}
			index[doc.Content] = len(scored)
			scored = append(scored, rag.FusedScore{Document: doc, Score: contribution})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// Fuse returns at most TopN documents in fused order.
func (f *RRF) Fuse(lists []rag.RetrievalResult) []rag.Document {
	scored := f.Scores(lists)
	if len(scored) > f.topN {
		scored = scored[:f.topN]
	}

	docs := make([]rag.Document, len(scored))
	for i, item := range scored {
		docs[i] = item.Document
	}
	return docs
}
