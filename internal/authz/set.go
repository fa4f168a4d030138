package authz

import "sort"

// Admin is the wildcard permission code that satisfies every check.
const Admin = "admin"

// Set is a resolved permission set.
type Set map[string]struct{}

func NewSet(codes ...string) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

func (s Set) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Grants reports whether s holds code exactly or holds the admin wildcard.
// Both checks always run.
func (s Set) Grants(code string) bool {
	exact := s.Has(code)
	wildcard := s.Has(Admin)
	return exact || wildcard
}

// Codes returns the members sorted.
func (s Set) Codes() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
