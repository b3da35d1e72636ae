package pagination

import "fmt"

// DefaultMaxGroupSize is the number of objects fetched and shown per group.
// The catalog API asks clients to stay below 80 requests per second, so a
// group is kept well under that.
const DefaultMaxGroupSize = 18

// GroupMap maps a 1-based group index to the ordered IDs in that group.
type GroupMap map[int][]int

// NumberOfGroups returns ceil(count / maxGroupSize).
func NumberOfGroups(count, maxGroupSize int) int {
	if maxGroupSize <= 0 {
		panic(fmt.Sprintf("pagination: maxGroupSize must be positive (got %d)", maxGroupSize))
	}
	if count <= 0 {
		return 0
	}
	if count%maxGroupSize == 0 {
		return count / maxGroupSize
	}
	return count/maxGroupSize + 1
}

// Partition splits ids into groups of at most maxGroupSize, preserving order.
// Group i holds ids[(i-1)*maxGroupSize : min(i*maxGroupSize, len(ids))].
// It panics if maxGroupSize is not positive.
func Partition(ids []int, maxGroupSize int) GroupMap {
	numberOfGroups := NumberOfGroups(len(ids), maxGroupSize)
	groups := make(GroupMap, numberOfGroups)

	for i := 1; i <= numberOfGroups; i++ {
		start := (i - 1) * maxGroupSize
		end := i * maxGroupSize
		if end > len(ids) {
			end = len(ids)
		}

		// Copy so callers cannot mutate the source slice through a group
		group := make([]int, end-start)
		copy(group, ids[start:end])
		groups[i] = group
	}

	return groups
}

// Len returns the number of groups.
func (g GroupMap) Len() int {
	return len(g)
}

// Group returns the IDs of group i (1-based).
func (g GroupMap) Group(i int) ([]int, bool) {
	ids, ok := g[i]
	return ids, ok
}

// Size returns the number of IDs in group i, or 0 if the group does not exist.
func (g GroupMap) Size(i int) int {
	return len(g[i])
}

// Flatten concatenates all groups in index order.
func (g GroupMap) Flatten() []int {
	var ids []int
	for i := 1; i <= len(g); i++ {
		ids = append(ids, g[i]...)
	}
	return ids
}
