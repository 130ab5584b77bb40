package graph

// BindingSet is an insertion-ordered set of binding names that can also hold
// the "all" state. Once all, it stays all. The zero value is an empty set.
type BindingSet struct {
	all   bool
	names []string
	index map[string]struct{}
}

// NewBindingSet returns a set holding names. A "*" entry makes the set all.
func NewBindingSet(names ...string) BindingSet {
	var s BindingSet
	s.Add(names...)
	return s
}

// Add inserts names and reports whether the set grew.
func (s *BindingSet) Add(names ...string) bool {
	grew := false
	for _, n := range names {
		if n == Wildcard {
			if s.MarkAll() {
				grew = true
			}
			continue
		}
		if s.index == nil {
			s.index = make(map[string]struct{})
		}
		if _, ok := s.index[n]; ok {
			continue
		}
		s.index[n] = struct{}{}
		s.names = append(s.names, n)
		if !s.all {
			grew = true
		}
	}
	return grew
}

// AddSet merges other into s and reports whether s grew.
func (s *BindingSet) AddSet(other BindingSet) bool {
	grew := s.Add(other.names...)
	if other.all && s.MarkAll() {
		grew = true
	}
	return grew
}

// MarkAll switches the set to the all state and reports whether it changed.
func (s *BindingSet) MarkAll() bool {
	if s.all {
		return false
	}
	s.all = true
	return true
}

// IsAll reports whether every binding is live.
func (s BindingSet) IsAll() bool {
	return s.all
}

// Has reports whether name is in the set. An all set has every name.
func (s BindingSet) Has(name string) bool {
	if s.all {
		return true
	}
	_, ok := s.index[name]
	return ok
}

// Empty reports whether the set holds nothing.
func (s BindingSet) Empty() bool {
	return !s.all && len(s.names) == 0
}

// Len is the number of concrete names. All sets may hold zero concrete names.
func (s BindingSet) Len() int {
	return len(s.names)
}

// Names returns the concrete names in insertion order.
func (s BindingSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Slice returns ["*"] for all sets and the concrete names otherwise.
func (s BindingSet) Slice() []string {
	if s.all {
		return []string{Wildcard}
	}
	return s.Names()
}

// Reset empties the set.
func (s *BindingSet) Reset() {
	s.all = false
	s.names = nil
	s.index = nil
}
