package tagging

// A VictimFinder decides which block should be evicted from a set.
type VictimFinder interface {
	FindVictim(tags TagArray, setID int) Block
}

// LRUVictimFinder evicts the least recently used block.
type LRUVictimFinder struct{}

// NewLRUVictimFinder returns a newly constructed LRU evictor.
func NewLRUVictimFinder() *LRUVictimFinder {
	return &LRUVictimFinder{}
}

// FindVictim returns an invalid block of the set if one exists, otherwise
// the least recently used block.
func (e *LRUVictimFinder) FindVictim(tags TagArray, setID int) Block {
	set := tags.GetSet(setID)

	for _, wayID := range set.LRUQueue {
		block := set.Blocks[wayID]
		if !block.IsValid {
			return block
		}
	}

	return set.Blocks[set.LRUQueue[0]]
}
