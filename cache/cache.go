// Package cache implements the unified 4-way set-associative write-back
// cache that sits between the pipeline and physical memory.
package cache

import (
	"fmt"

	"github.com/aquariumsim/aquarium/cache/internal/tagging"
)

// Geometry of the cache: 32 sets of 4 ways of 64-byte blocks, 8 KiB total.
const (
	NumSets   = 32
	NumWays   = 4
	BlockSize = 64
)

// Latencies in cycles. A miss pays the memory latency; evicting a dirty
// block pays it a second time for the writeback.
const (
	HitLatency  = 10
	MissLatency = 100
)

// A Backend is the physical memory the cache fills from and writes back to.
type Backend interface {
	ReadRaw(pa uint32, length int) []byte
	WriteRaw(pa uint32, data []byte)
}

// Counters holds the access statistics of the cache.
type Counters struct {
	Reads     uint64
	ReadHits  uint64
	Writes    uint64
	WriteHits uint64
}

// A Cache is the unified data/instruction cache. Reads allocate on miss;
// writes do not (no-allocate): a missing store writes through to the
// backend.
type Cache struct {
	tags         tagging.TagArray
	victimFinder tagging.VictimFinder
	data         [NumSets][NumWays][BlockSize]byte
	backend      Backend

	enabled  bool
	counters Counters
}

// New creates an enabled cache over the given backend.
func New(backend Backend) *Cache {
	return &Cache{
		tags:         tagging.NewTagArray(NumSets, NumWays),
		victimFinder: tagging.NewLRUVictimFinder(),
		backend:      backend,
		enabled:      true,
	}
}

// SetEnabled turns the cache on or off. When disabled, every access
// bypasses to the backend with a flat miss latency and the counters are
// left untouched.
func (c *Cache) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// Enabled reports whether the cache is on.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Counters returns the access statistics collected so far.
func (c *Cache) Counters() Counters {
	return c.counters
}

func splitAddr(pa uint32) (tag uint32, setID int, offset int) {
	return pa >> 11, int(pa >> 6 & (NumSets - 1)), int(pa & (BlockSize - 1))
}

func blockBase(tag uint32, setID int) uint32 {
	return tag<<11 | uint32(setID)<<6
}

func checkSize(pa uint32, size int) {
	switch size {
	case 1, 2, 4:
	default:
		panic(fmt.Sprintf("invalid access size %d", size))
	}

	if int(pa&(BlockSize-1))+size > BlockSize {
		panic(fmt.Sprintf(
			"access at 0x%08x size %d crosses a block boundary", pa, size))
	}
}

// Read returns size bytes at pa and the latency of the access in cycles.
func (c *Cache) Read(pa uint32, size int) ([]byte, int) {
	return c.read(pa, size, true)
}

// Fetch reads size bytes at pa for an instruction fetch. Fetches share the
// unified cache with data accesses but are excluded from the hit-rate
// counters.
func (c *Cache) Fetch(pa uint32, size int) ([]byte, int) {
	return c.read(pa, size, false)
}

func (c *Cache) read(pa uint32, size int, counted bool) ([]byte, int) {
	checkSize(pa, size)

	if !c.enabled {
		return c.backend.ReadRaw(pa, size), MissLatency
	}

	if counted {
		c.counters.Reads++
	}

	tag, setID, offset := splitAddr(pa)

	if block, found := c.tags.Lookup(tag, setID); found {
		if counted {
			c.counters.ReadHits++
		}
		c.tags.Visit(block)

		line := &c.data[setID][block.WayID]
		return append([]byte(nil), line[offset:offset+size]...), HitLatency
	}

	block, latency := c.install(tag, setID)

	line := &c.data[setID][block.WayID]
	return append([]byte(nil), line[offset:offset+size]...), latency
}

// Write stores data at pa and returns the latency of the access in cycles.
// A hit updates the block and marks it dirty; a miss writes through to the
// backend without allocating.
func (c *Cache) Write(pa uint32, data []byte) int {
	checkSize(pa, len(data))

	if !c.enabled {
		c.backend.WriteRaw(pa, data)
		return MissLatency
	}

	c.counters.Writes++

	tag, setID, offset := splitAddr(pa)

	if block, found := c.tags.Lookup(tag, setID); found {
		c.counters.WriteHits++

		copy(c.data[setID][block.WayID][offset:], data)
		block.IsDirty = true
		c.tags.Update(block)
		c.tags.Visit(block)

		return HitLatency
	}

	c.backend.WriteRaw(pa, data)

	return MissLatency
}

// install evicts the victim way of the set, fills it with the block holding
// tag, and returns the installed block and the miss latency.
func (c *Cache) install(tag uint32, setID int) (tagging.Block, int) {
	latency := MissLatency

	victim := c.victimFinder.FindVictim(c.tags, setID)
	if victim.IsValid && victim.IsDirty {
		base := blockBase(victim.Tag, setID)
		c.backend.WriteRaw(base, c.data[setID][victim.WayID][:])
		latency += MissLatency
	}

	fill := c.backend.ReadRaw(blockBase(tag, setID), BlockSize)
	copy(c.data[setID][victim.WayID][:], fill)

	block := tagging.Block{
		Tag:     tag,
		SetID:   setID,
		WayID:   victim.WayID,
		IsValid: true,
	}
	c.tags.Update(block)
	c.tags.Visit(block)

	return block, latency
}

// Flush writes every dirty block back to the backend and invalidates the
// whole cache. Counters are preserved.
func (c *Cache) Flush() {
	for setID := 0; setID < NumSets; setID++ {
		set := c.tags.GetSet(setID)
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				base := blockBase(block.Tag, setID)
				c.backend.WriteRaw(base, c.data[setID][block.WayID][:])
			}
		}
	}

	c.tags.Reset()
}

// A BlockState describes one way of one set for snapshots.
type BlockState struct {
	SetID   int    `json:"set"`
	WayID   int    `json:"way"`
	Tag     uint32 `json:"tag"`
	IsValid bool   `json:"valid"`
	IsDirty bool   `json:"dirty"`
}

// State returns the bookkeeping of every way of every set, ordered by set
// then way.
func (c *Cache) State() []BlockState {
	out := make([]BlockState, 0, NumSets*NumWays)

	for setID := 0; setID < NumSets; setID++ {
		set := c.tags.GetSet(setID)
		for _, block := range set.Blocks {
			out = append(out, BlockState{
				SetID:   block.SetID,
				WayID:   block.WayID,
				Tag:     block.Tag,
				IsValid: block.IsValid,
				IsDirty: block.IsDirty,
			})
		}
	}

	return out
}

// ValidBitmap returns one bitmask per set with bit w set when way w holds a
// valid block.
func (c *Cache) ValidBitmap() []uint8 {
	out := make([]uint8, NumSets)

	for setID := 0; setID < NumSets; setID++ {
		set := c.tags.GetSet(setID)
		for _, block := range set.Blocks {
			if block.IsValid {
				out[setID] |= 1 << block.WayID
			}
		}
	}

	return out
}

// BlockData returns a copy of the 64 data bytes held by the given way.
func (c *Cache) BlockData(setID, wayID int) []byte {
	return append([]byte(nil), c.data[setID][wayID][:]...)
}
