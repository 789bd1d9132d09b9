package queue

import "fmt"

// The allocator functions are pure: they only rewrite the list they are given.

// Append places g at the tail and returns the extended list.
func Append(list []Group, g Group) []Group {
	g.Position = len(list) + 1
	return append(list, g)
}

// Remove deletes group id and compacts every later position by one.
// A missing id is a no-op and reports false; concurrent removal is expected.
func Remove(list []Group, id string) ([]Group, bool) {
	idx := -1
	for i := range list {
		if list[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return list, false
	}
	pos := list[idx].Position
	list = append(list[:idx], list[idx+1:]...)
	for i := range list {
		if list[i].Position > pos {
			list[i].Position--
		}
	}
	return list, true
}

// Delay moves group id down by amount slots, clamped to the tail, and clears its helper.
// Groups in (pos, pos+amount] shift up by one. It returns the applied amount.
func Delay(list []Group, id string, amount int) (int, error) {
	if amount < 1 {
		return 0, fmt.Errorf("%w: delay must be >= 1, got %d", ErrInvalidArgument, amount)
	}
	idx := -1
	for i := range list {
		if list[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, fmt.Errorf("%w: group %s", ErrNotFound, id)
	}

	pos := list[idx].Position
	list[idx].Helper = ""
	if pos+amount > len(list) {
		amount = len(list) - pos
	}
	if amount <= 0 {
		return 0, nil
	}
	for i := range list {
		if i != idx && list[i].Position > pos && list[i].Position <= pos+amount {
			list[i].Position--
		}
	}
	list[idx].Position = pos + amount
	return amount, nil
}

// CheckPositions verifies that positions form exactly 1..len(list) with no duplicates.
func CheckPositions(list []Group) error {
	seen := make([]bool, len(list)+1)
	for _, g := range list {
		if g.Position < 1 || g.Position > len(list) || seen[g.Position] {
			return fmt.Errorf("position %d of group %s breaks 1..%d ordering", g.Position, g.ID, len(list))
		}
		seen[g.Position] = true
	}
	return nil
}
