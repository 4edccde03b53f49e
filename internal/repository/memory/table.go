package memory

import (
	"time"

	"swapstation/internal/shared/apperr"

	"github.com/google/uuid"
)

// table is one arena of records keyed by id. It is guarded by the owning
// Store's mutex.
type table[T any] struct {
	name    string
	rows    map[uuid.UUID]*T
	index   map[string]uuid.UUID
	id      func(*T) uuid.UUID
	version func(*T) *int64
	clone   func(*T) *T
	keys    func(*T) []string
	stamp   func(row *T, now time.Time, created bool)
}

func (t *table[T]) get(id uuid.UUID) (*T, bool) {
	row, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return t.clone(row), true
}

func (t *table[T]) owner(key string) (uuid.UUID, bool) {
	id, ok := t.index[key]
	return id, ok
}

func (t *table[T]) put(row *T) {
	id := t.id(row)
	if old, ok := t.rows[id]; ok && t.keys != nil {
		for _, k := range t.keys(old) {
			delete(t.index, k)
		}
	}
	t.rows[id] = row
	if t.keys != nil {
		for _, k := range t.keys(row) {
			t.index[k] = id
		}
	}
}

// pending holds the writes a tx made to one table. base records the
// committed version each write was made against; zero marks an insert.
type pending[T any] struct {
	t    *table[T]
	rows map[uuid.UUID]*T
	base map[uuid.UUID]int64
}

func newPending[T any](t *table[T]) *pending[T] {
	return &pending[T]{t: t, rows: make(map[uuid.UUID]*T), base: make(map[uuid.UUID]int64)}
}

// get returns the tx view of a row. The caller holds at least a read lock.
func (p *pending[T]) get(id uuid.UUID) (*T, bool) {
	if row, ok := p.rows[id]; ok {
		return p.t.clone(row), true
	}
	return p.t.get(id)
}

// list returns the tx view of every row accepted by keep.
func (p *pending[T]) list(keep func(*T) bool) []T {
	var out []T
	for id, row := range p.t.rows {
		if staged, ok := p.rows[id]; ok {
			row = staged
		}
		if keep(row) {
			out = append(out, *p.t.clone(row))
		}
	}
	for id, row := range p.rows {
		if _, committed := p.t.rows[id]; committed {
			continue
		}
		if keep(row) {
			out = append(out, *p.t.clone(row))
		}
	}
	return out
}

func (p *pending[T]) keyTaken(key string, self uuid.UUID) bool {
	for id, row := range p.rows {
		if id == self {
			continue
		}
		for _, k := range p.t.keys(row) {
			if k == key {
				return true
			}
		}
	}
	if owner, ok := p.t.owner(key); ok && owner != self {
		if _, rewritten := p.rows[owner]; !rewritten {
			return true
		}
	}
	return false
}

func (p *pending[T]) create(row *T, now time.Time) error {
	id := p.t.id(row)
	if _, ok := p.get(id); ok {
		return apperr.Conflict("%s %s already exists", p.t.name, id)
	}
	if p.t.keys != nil {
		for _, k := range p.t.keys(row) {
			if p.keyTaken(k, id) {
				return apperr.Conflict("%s %s already exists", p.t.name, k)
			}
		}
	}
	*p.t.version(row) = 1
	if p.t.stamp != nil {
		p.t.stamp(row, now, true)
	}
	p.rows[id] = p.t.clone(row)
	p.base[id] = 0
	return nil
}

func (p *pending[T]) update(row *T, now time.Time) error {
	id := p.t.id(row)
	expected := *p.t.version(row)

	current, ok := p.get(id)
	if !ok {
		return apperr.NotFound("%s %s", p.t.name, id)
	}
	if *p.t.version(current) != expected {
		return apperr.RaceLost("%s %s changed concurrently", p.t.name, id)
	}
	if _, staged := p.rows[id]; !staged {
		p.base[id] = expected
	}
	if p.t.keys != nil {
		for _, k := range p.t.keys(row) {
			if p.keyTaken(k, id) {
				return apperr.Conflict("%s %s already exists", p.t.name, k)
			}
		}
	}

	*p.t.version(row) = expected + 1
	if p.t.stamp != nil {
		p.t.stamp(row, now, false)
	}
	p.rows[id] = p.t.clone(row)
	return nil
}

// validate checks the staged writes against the committed state. The caller
// holds the write lock.
func (p *pending[T]) validate() error {
	for id, base := range p.base {
		committed, ok := p.t.rows[id]
		switch {
		case base == 0 && ok:
			return apperr.Conflict("%s %s already exists", p.t.name, id)
		case base != 0 && !ok:
			return apperr.NotFound("%s %s", p.t.name, id)
		case base != 0 && *p.t.version(committed) != base:
			return apperr.RaceLost("%s %s changed concurrently", p.t.name, id)
		}
	}
	if p.t.keys != nil {
		for id, row := range p.rows {
			for _, k := range p.t.keys(row) {
				if p.keyTaken(k, id) {
					return apperr.Conflict("%s %s already exists", p.t.name, k)
				}
			}
		}
	}
	return nil
}

func (p *pending[T]) apply() {
	for _, row := range p.rows {
		p.t.put(row)
	}
}
