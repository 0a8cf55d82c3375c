package inmemdb

import (
	"sync"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

type (
	// DB is an in-process stand-in for the PostgreSQL schema, constraints included.
	DB struct {
		packages     *packageTable
		sessions     *sessionTable
		interactions *interactionTable
	}

	packageTable struct {
		sync.RWMutex
		table map[string]scorm.Package
	}

	sessionTable struct {
		sync.RWMutex
		table map[string]scorm.Session
	}

	interactionTable struct {
		sync.RWMutex
		seq   int64
		ids   map[string]struct{}
		table map[string][]interactionRow // by session id, in insertion order
	}

	interactionRow struct {
		scorm.Interaction
		seq int64
	}
)

func Open() *DB {
	return &DB{
		packages:     &packageTable{table: make(map[string]scorm.Package)},
		sessions:     &sessionTable{table: make(map[string]scorm.Session)},
		interactions: &interactionTable{ids: make(map[string]struct{}), table: make(map[string][]interactionRow)},
	}
}
