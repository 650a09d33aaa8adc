package tracker

// orderedSet is an insertion-ordered set of strings.
type orderedSet struct {
	items []string
	index map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]struct{})}
}

// add inserts v if absent and reports whether it was inserted.
func (s *orderedSet) add(v string) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// values returns a copy of the items in insertion order.
func (s *orderedSet) values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

func (s *orderedSet) clone() *orderedSet {
	c := &orderedSet{
		items: s.values(),
		index: make(map[string]struct{}, len(s.index)),
	}
	for k := range s.index {
		c.index[k] = struct{}{}
	}
	return c
}

func (s *orderedSet) equal(o *orderedSet) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.items) != len(o.items) {
		return false
	}
	for i := range s.items {
		if s.items[i] != o.items[i] {
			return false
		}
	}
	return true
}
