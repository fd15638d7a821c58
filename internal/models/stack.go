package models

// Stack is an ordered group of consecutive, visually near-identical captures.
// ID is 0 for singleton stacks (no persisted assignment); multi-item stacks
// carry a positive, monotonically increasing id.
type Stack struct {
	ID      int64      `json:"id"`
	Members []PhotoRef `json:"members"`
}

// Size returns the number of members in the stack.
func (s *Stack) Size() int {
	return len(s.Members)
}

// DuplicateGroup is a seed photo plus every other photo scoring above the
// duplicate threshold against it.
type DuplicateGroup struct {
	SeedID  string   `json:"seed_id"`
	Members []string `json:"members"` // includes the seed, in scan order
}
