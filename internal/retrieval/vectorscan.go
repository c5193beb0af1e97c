package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/arjunblj/memorycore/internal/llmiface"
	"github.com/arjunblj/memorycore/internal/store"
)

type vectorMatch struct {
	id    int64
	score float64
}

// topKCosine scans the given vec table in full and returns the k
// highest-cosine-similarity rows against the (already L2-normalized) query
// vector. A full scan is appropriate at this spec's scale (a single
// person's memory store, not a corpus-wide ANN index) — no pack example
// wires a vector-index library, and a brute-force scan is the honest
// implementation of the "top-k cosine search" §4.C asks for.
func topKCosine(ctx context.Context, db *sql.DB, table, idCol string, query llmiface.Vector, queryNorm float64, k int) ([]vectorMatch, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s, embedding, norm FROM %s", idCol, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []vectorMatch
	for rows.Next() {
		var id int64
		var blob []byte
		var norm float64
		if err := rows.Scan(&id, &blob, &norm); err != nil {
			return nil, err
		}
		if norm == 0 || queryNorm == 0 {
			continue
		}
		vec := store.DecodeVector(blob)
		if len(vec) != len(query) {
			continue // dimension mismatch: stale row from a prior embedder, skip rather than crash
		}
		var dot float64
		for i := range vec {
			dot += float64(vec[i]) * float64(query[i])
		}
		matches = append(matches, vectorMatch{id: id, score: dot / (norm * queryNorm)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// l2Normalize returns a unit-length copy of v and that copy's norm (1), per
// §4.C: "normalize to unit length (L2)". A zero vector is returned as is
// with norm 0.
func l2Normalize(v llmiface.Vector) (llmiface.Vector, float64) {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v, 0
	}
	out := make(llmiface.Vector, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out, 1 // a unit vector's own norm is 1 by construction
}
