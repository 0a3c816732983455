package tagging

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tags", func() {
	var tags TagArray

	BeforeEach(func() {
		tags = NewTagArray(32, 4)
	})

	It("should miss on an empty array", func() {
		_, found := tags.Lookup(0x100, 0)
		Expect(found).To(BeFalse())
	})

	It("should lookup an installed block", func() {
		tags.Update(Block{Tag: 0x100, SetID: 3, WayID: 1, IsValid: true})

		block, found := tags.Lookup(0x100, 3)
		Expect(found).To(BeTrue())
		Expect(block.WayID).To(Equal(1))
	})

	It("should not find a block in another set", func() {
		tags.Update(Block{Tag: 0x100, SetID: 3, WayID: 1, IsValid: true})

		_, found := tags.Lookup(0x100, 4)
		Expect(found).To(BeFalse())
	})

	It("should move a visited way to the MRU position", func() {
		block := Block{Tag: 0x100, SetID: 0, WayID: 0, IsValid: true}
		tags.Update(block)
		tags.Visit(block)

		set := tags.GetSet(0)
		Expect(set.LRUQueue).To(Equal([]int{1, 2, 3, 0}))
	})

	It("should invalidate everything on reset", func() {
		tags.Update(Block{Tag: 0x100, SetID: 0, WayID: 0, IsValid: true})
		tags.Reset()

		_, found := tags.Lookup(0x100, 0)
		Expect(found).To(BeFalse())
	})
})

var _ = Describe("LRUVictimFinder", func() {
	var (
		tags   TagArray
		finder *LRUVictimFinder
	)

	BeforeEach(func() {
		tags = NewTagArray(32, 4)
		finder = NewLRUVictimFinder()
	})

	It("should prefer an invalid way", func() {
		for w := 0; w < 3; w++ {
			block := Block{
				Tag:     uint32(w),
				SetID:   0,
				WayID:   w,
				IsValid: true,
			}
			tags.Update(block)
			tags.Visit(block)
		}

		victim := finder.FindVictim(tags, 0)
		Expect(victim.WayID).To(Equal(3))
		Expect(victim.IsValid).To(BeFalse())
	})

	It("should evict the least recently used way when the set is full", func() {
		for w := 0; w < 4; w++ {
			block := Block{
				Tag:     uint32(w),
				SetID:   0,
				WayID:   w,
				IsValid: true,
			}
			tags.Update(block)
			tags.Visit(block)
		}

		// Touch way 0 again so way 1 becomes LRU.
		tags.Visit(Block{SetID: 0, WayID: 0})

		victim := finder.FindVictim(tags, 0)
		Expect(victim.WayID).To(Equal(1))
	})
})
