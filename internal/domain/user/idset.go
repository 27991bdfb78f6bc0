package user

// IDSet is an insertion-ordered set of user ids.
// The zero value is an empty set.
type IDSet []string

// Contains reports whether id is in the set.
func (s IDSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add appends id unless it is already present. It reports whether the set changed.
func (s IDSet) Add(id string) (IDSet, bool) {
	if s.Contains(id) {
		return s, false
	}
	return append(s, id), true
}

// Remove drops id from the set. Removing an absent id is a no-op.
func (s IDSet) Remove(id string) (IDSet, bool) {
	for i, v := range s {
		if v == id {
			out := make(IDSet, 0, len(s)-1)
			out = append(out, s[:i]...)
			return append(out, s[i+1:]...), true
		}
	}
	return s, false
}

// Intersect returns the ids of s that are also in other, in the order of s.
func (s IDSet) Intersect(other IDSet) IDSet {
	if len(s) == 0 || len(other) == 0 {
		return IDSet{}
	}
	lookup := make(map[string]struct{}, len(other))
	for _, v := range other {
		lookup[v] = struct{}{}
	}
	out := make(IDSet, 0)
	for _, v := range s {
		if _, ok := lookup[v]; ok {
			out = append(out, v)
		}
	}
	return out
}
