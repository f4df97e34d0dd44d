// Package pickup chooses which item clusters a combatant should collect
// on its way to its current objective.
package pickup

// SubsetIter enumerates ordered selections of distinct indices from
// [0, Range) with at most MaxSize members, depth first. Extensions of a
// selection come directly after it, so Skip can discard a whole branch:
//
//	(), (0), (0 1), (0 1 2), (0 1 3), ..., (0 2), (0 2 1), ...
type SubsetIter struct {
	maxSize int
	rng     int
	index   []int
	used    []bool
	size    int
	valid   bool
}

// NewSubsetIter returns an iterator positioned on the empty selection.
func NewSubsetIter(maxSize, rng int) *SubsetIter {
	it := &SubsetIter{
		maxSize: max(maxSize, 0),
		rng:     max(rng, 0),
	}
	it.index = make([]int, it.maxSize)
	it.used = make([]bool, it.rng)
	it.Start()
	return it
}

// Start rewinds to the empty selection.
func (it *SubsetIter) Start() {
	clear(it.used)
	it.size = 0
	it.valid = true
}

// Valid reports whether the iterator holds a selection.
func (it *SubsetIter) Valid() bool { return it.valid }

// Len is the size of the current selection.
func (it *SubsetIter) Len() int { return it.size }

// Indices returns the current selection. The slice is reused by the next
// call to Next or Skip.
func (it *SubsetIter) Indices() []int { return it.index[:it.size] }

// At returns the i-th member of the current selection.
func (it *SubsetIter) At(i int) int { return it.index[i] }

// Last returns the most recently added member.
func (it *SubsetIter) Last() int { return it.index[it.size-1] }

// Next moves to the next selection, extending the current one when
// possible. It reports whether a selection exists.
func (it *SubsetIter) Next() bool {
	return it.advance(it.maxSize)
}

// Skip moves past every extension of the current selection.
func (it *SubsetIter) Skip() bool {
	return it.advance(it.size)
}

func (it *SubsetIter) advance(limit int) bool {
	if limit <= 0 && it.size == 0 {
		it.valid = false
		return false
	}

	var change int
	if it.size < limit {
		change = it.size
		it.size++
		it.index[change] = -1
	} else {
		change = it.size - 1
		it.used[it.index[change]] = false
	}

	it.valid = false
	for !it.valid {
		it.index[change]++
		if it.index[change] >= it.rng {
			it.size--
			if it.size == 0 {
				break
			}
			change--
			it.used[it.index[change]] = false
			continue
		}
		if it.used[it.index[change]] {
			continue
		}
		it.used[it.index[change]] = true
		it.valid = true
	}
	return it.valid
}
