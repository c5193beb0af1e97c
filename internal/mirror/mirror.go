// Package mirror implements the Mirror (§4.G step 6): a best-effort,
// write-only projection of promoted lessons to disk for human inspection.
//
// Grounded on the teacher's fsrepo.NodeRepository.saveNodeMeta (yaml.Marshal
// + os.WriteFile to a root-relative path) — the same encode-and-write shape,
// generalized from one node.yaml file per directory to one mirror file per
// sink root. The teacher's own fsrepo/yaml_parser.go is a hand-rolled line
// parser whose header comment admits "basic implementation - for production
// use gopkg.in/yaml.v3" — this package uses that real dependency instead of
// imitating the hand-rolled parser (see DESIGN.md's Open Question log).
package mirror

import (
	"context"

	"github.com/arjunblj/memorycore/internal/store"
)

// Sink receives the full set of promoted lessons on every Consolidation Loop
// tick that runs step 6. Implementations must be safe to call repeatedly
// with the same lessons (step 6 is idempotent, per spec.md §4.G).
type Sink interface {
	Write(ctx context.Context, lessons []store.Lesson) error
}
