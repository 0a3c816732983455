package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/aquariumsim/aquarium/mem"
)

var _ = Describe("MMU", func() {
	var (
		memory *mem.Memory
		mmu    *MMU
	)

	BeforeEach(func() {
		memory = mem.NewMemory()
		mmu = NewMMU(memory)
	})

	It("should map identity when paging is disabled", func() {
		pa, err := mmu.Translate(0xdeadbeec, AccessLoad, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(pa).To(Equal(uint32(0xdeadbeec)))
	})

	Context("with paging enabled", func() {
		BeforeEach(func() {
			mmu.SetTableBase(0x10000)
			mmu.SetTableAllocBase(0x11000)
		})

		It("should fault on an unmapped address", func() {
			_, err := mmu.Translate(0x40000000, AccessFetch, false)

			var fault *PageFault
			Expect(err).To(BeAssignableToTypeOf(fault))
			Expect(err.(*PageFault).VA).To(Equal(uint32(0x40000000)))
			Expect(err.(*PageFault).Access).To(Equal(AccessFetch))
		})

		It("should translate a mapped page", func() {
			mmu.MapPage(0x40001000, 0x00003000, PermRead|PermWrite)

			pa, err := mmu.Translate(0x40001234, AccessLoad, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(pa).To(Equal(uint32(0x00003234)))
		})

		It("should keep distinct pages distinct", func() {
			mmu.MapPage(0x40000000, 0x00003000, PermRead)
			mmu.MapPage(0x40001000, 0x00005000, PermRead)

			pa, err := mmu.Translate(0x40000010, AccessLoad, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(pa).To(Equal(uint32(0x00003010)))

			pa, err = mmu.Translate(0x40001010, AccessLoad, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(pa).To(Equal(uint32(0x00005010)))
		})

		It("should fault a store to a read-only page", func() {
			mmu.MapPage(0x40001000, 0x00003000, PermRead)

			_, err := mmu.Translate(0x40001000, AccessStore, false)

			var fault *PermissionFault
			Expect(err).To(BeAssignableToTypeOf(fault))
		})

		It("should fault a fetch from a non-executable page", func() {
			mmu.MapPage(0x40001000, 0x00003000, PermRead|PermWrite)

			_, err := mmu.Translate(0x40001000, AccessFetch, false)

			var fault *PermissionFault
			Expect(err).To(BeAssignableToTypeOf(fault))
		})

		It("should fault user access to a kernel page", func() {
			mmu.MapPage(0x40001000, 0x00003000, PermRead)

			_, err := mmu.Translate(0x40001000, AccessLoad, true)

			var fault *PermissionFault
			Expect(err).To(BeAssignableToTypeOf(fault))

			_, err = mmu.Translate(0x40001000, AccessLoad, false)
			Expect(err).ToNot(HaveOccurred())
		})

		It("should allow user access to a user page", func() {
			mmu.MapPage(0x40001000, 0x00003000, PermRead|PermUser)

			_, err := mmu.Translate(0x40001000, AccessLoad, true)
			Expect(err).ToNot(HaveOccurred())
		})
	})
})
