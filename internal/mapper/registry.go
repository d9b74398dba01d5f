package mapper

import (
	"sort"
	"sync"

	"github.com/koustreak/backoffice/internal/errs"
)

// Registry hands out the table and view mappers built at startup.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*TableMapper
	views  map[string]*ViewMapper
}

func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]*TableMapper),
		views:  make(map[string]*ViewMapper),
	}
}

// Register adds m under its table name. Registering a table twice is an error.
func (r *Registry) Register(m *TableMapper) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[m.Table()]; ok {
		return errs.Newf(errs.ErrKindConflict, "table %s already registered", m.Table())
	}
	r.tables[m.Table()] = m
	return nil
}

// RegisterView adds v under its name.
func (r *Registry) RegisterView(v *ViewMapper) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.views[v.Name()]; ok {
		return errs.Newf(errs.ErrKindConflict, "view %s already registered", v.Name())
	}
	r.views[v.Name()] = v
	return nil
}

// Table returns the mapper for name or errs.ErrKindNotFound.
func (r *Registry) Table(name string) (*TableMapper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.tables[name]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s is not mapped", name)
	}
	return m, nil
}

// View returns the view mapper for name or errs.ErrKindNotFound.
func (r *Registry) View(name string) (*ViewMapper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[name]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "view %s is not mapped", name)
	}
	return v, nil
}

// Tables returns the registered table names, sorted.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tables))
	for n := range r.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Views returns the registered view names, sorted.
func (r *Registry) Views() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.views))
	for n := range r.views {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
