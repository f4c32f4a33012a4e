package document

import (
	"sort"
	"sync"
)

// Memory is an in-memory Document. It is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	concepts   map[QName]Concept
	rels       []Relationship
	facts      []Fact
	namespaces map[string]bool
}

var _ Document = (*Memory)(nil)

// NewMemory returns an empty document that knows the given namespaces.
func NewMemory(namespaces ...string) *Memory {
	m := &Memory{
		concepts:   make(map[QName]Concept),
		namespaces: make(map[string]bool),
	}
	for _, ns := range namespaces {
		m.namespaces[ns] = true
	}
	return m
}

// AddNamespace marks uri as available.
func (m *Memory) AddNamespace(uri string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces[uri] = true
}

// AddConcept adds or replaces a concept. Its namespace becomes available.
func (m *Memory) AddConcept(c Concept) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concepts[c.Name] = c
	if c.Name.Namespace != "" {
		m.namespaces[c.Name.Namespace] = true
	}
}

// AddRelationship appends an arc.
func (m *Memory) AddRelationship(r Relationship) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels = append(m.rels, r)
}

// AddFact appends a fact.
func (m *Memory) AddFact(f Fact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts = append(m.facts, f)
}

func (m *Memory) Concept(name QName) (Concept, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.concepts[name]
	return c, ok
}

func (m *Memory) Relationships(arcrole, role string, from QName) []Relationship {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Relationship
	for _, r := range m.rels {
		if r.Arcrole == arcrole && (role == "" || r.Role == role) && r.From == from {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (m *Memory) Roots(arcrole, role string) []QName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sources := make(map[QName]bool)
	targets := make(map[QName]bool)
	for _, r := range m.rels {
		if r.Arcrole != arcrole || (role != "" && r.Role != role) {
			continue
		}
		sources[r.From] = true
		targets[r.To] = true
	}
	var out []QName
	for q := range sources {
		if !targets[q] {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (m *Memory) Facts(concept QName, yield func(Fact) bool) {
	m.mu.RLock()
	facts := m.facts
	m.mu.RUnlock()
	for _, f := range facts {
		if concept != (QName{}) && f.Concept != concept {
			continue
		}
		if !yield(f) {
			return
		}
	}
}

func (m *Memory) Available(uri string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namespaces[uri]
}
