// Package memory implements the Memory Store (§4.D): the CRUD + dedupe +
// dirty-queue + capsule surface that the Extractor and Consolidation Loop
// depend on, built atop internal/store and internal/retrieval.
//
// Grounded on the teacher's store/sqlite.go method-set shape (small exported
// methods over a shared *sql.DB, e.g. Put/Get/List*) rather than a
// repository interface with mocks — no pack example mocks its storage
// layer; every example tests against a real SQLite file or :memory: db.
package memory

import (
	"database/sql"

	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/llmiface"
	"github.com/arjunblj/memorycore/internal/retrieval"
)

// Store is the Memory Store. One instance per process, constructed once by
// the composition root and shared by every per-chat task (§9: "global
// mutable state ... confined behind a handle a composition root constructs
// once per process").
type Store struct {
	db            *sql.DB
	embedder      llmiface.Embedder
	vectorEnabled bool
	retrieval     retrieval.Config
	clock         idtime.Clock
	newPersonID   func() idtime.PersonID
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithEmbedder attaches the optional vector collaborator. Absent, all
// search is lexical-only (§4.C).
func WithEmbedder(e llmiface.Embedder, vectorEnabled bool) Option {
	return func(s *Store) {
		s.embedder = e
		s.vectorEnabled = vectorEnabled
	}
}

// WithRetrievalConfig overrides the default RRF/recency/confidence
// parameters.
func WithRetrievalConfig(cfg retrieval.Config) Option {
	return func(s *Store) { s.retrieval = cfg }
}

// WithClock overrides the default system clock, for deterministic tests.
func WithClock(c idtime.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithPersonIDGenerator overrides how new PersonIDs are minted.
func WithPersonIDGenerator(f func() idtime.PersonID) Option {
	return func(s *Store) { s.newPersonID = f }
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		retrieval: retrieval.DefaultConfig(),
		clock:     idtime.SystemClock,
		newPersonID: func() idtime.PersonID {
			return idtime.PersonID(randomID("p"))
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) now() idtime.Millis { return s.clock() }
