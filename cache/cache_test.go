package cache

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"
)

var _ = Describe("Cache", func() {
	var (
		mockCtrl *gomock.Controller
		backend  *MockBackend
		c        *Cache
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		backend = NewMockBackend(mockCtrl)
		c = New(backend)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	fill := func(first byte) []byte {
		block := make([]byte, BlockSize)
		for i := range block {
			block[i] = first + byte(i)
		}
		return block
	}

	It("should fetch a block from the backend on a read miss", func() {
		backend.EXPECT().
			ReadRaw(uint32(0x3000), BlockSize).
			Return(fill(0x10))

		data, latency := c.Read(0x3000, 4)

		Expect(latency).To(Equal(MissLatency))
		Expect(data).To(Equal([]byte{0x10, 0x11, 0x12, 0x13}))
	})

	It("should hit on the second read of the same block", func() {
		backend.EXPECT().
			ReadRaw(uint32(0x3000), BlockSize).
			Return(fill(0x10))

		c.Read(0x3000, 4)
		data, latency := c.Read(0x3004, 4)

		Expect(latency).To(Equal(HitLatency))
		Expect(data).To(Equal([]byte{0x14, 0x15, 0x16, 0x17}))
		Expect(c.Counters().Reads).To(Equal(uint64(2)))
		Expect(c.Counters().ReadHits).To(Equal(uint64(1)))
	})

	It("should write through on a store miss without allocating", func() {
		backend.EXPECT().WriteRaw(uint32(0x3000), []byte{1, 2, 3, 4})

		latency := c.Write(0x3000, []byte{1, 2, 3, 4})

		Expect(latency).To(Equal(MissLatency))
		Expect(c.ValidBitmap()[0]).To(Equal(uint8(0)))
	})

	It("should update the block and mark it dirty on a store hit", func() {
		backend.EXPECT().
			ReadRaw(uint32(0x3000), BlockSize).
			Return(fill(0))

		c.Read(0x3000, 4)
		latency := c.Write(0x3000, []byte{0xaa, 0xbb, 0xcc, 0xdd})

		Expect(latency).To(Equal(HitLatency))

		data, _ := c.Read(0x3000, 4)
		Expect(data).To(Equal([]byte{0xaa, 0xbb, 0xcc, 0xdd}))

		state := c.State()
		Expect(state[0].IsDirty).To(BeTrue())
	})

	It("should evict the LRU way and write back its dirty data", func() {
		// Five distinct tags mapping to set 0. Addresses differ in
		// bits 11 and up.
		addrs := []uint32{0x0000, 0x0800, 0x1000, 0x1800, 0x2000}

		for _, a := range addrs[:4] {
			backend.EXPECT().
				ReadRaw(a, BlockSize).
				Return(fill(byte(a >> 11)))
		}

		c.Read(addrs[0], 4)
		c.Write(addrs[0], []byte{0xff, 0xff, 0xff, 0xff})

		for _, a := range addrs[1:4] {
			c.Read(a, 4)
		}

		// Installing the fifth tag evicts the first, whose dirty
		// block must reach the backend first.
		dirty := fill(0)
		copy(dirty, []byte{0xff, 0xff, 0xff, 0xff})
		gomock.InOrder(
			backend.EXPECT().WriteRaw(addrs[0], dirty),
			backend.EXPECT().
				ReadRaw(addrs[4], BlockSize).
				Return(fill(4)),
		)

		_, latency := c.Read(addrs[4], 4)

		Expect(latency).To(Equal(2 * MissLatency))

		// The first tag is gone.
		backend.EXPECT().
			ReadRaw(addrs[0], BlockSize).
			Return(dirty)
		_, latency = c.Read(addrs[0], 4)
		Expect(latency).To(Equal(MissLatency))
	})

	It("should keep at most one valid way per tag in a set", func() {
		backend.EXPECT().
			ReadRaw(uint32(0x3000), BlockSize).
			Return(fill(0)).
			Times(1)

		c.Read(0x3000, 4)
		c.Read(0x3000, 4)
		c.Read(0x3000, 4)

		count := 0
		for _, b := range c.State() {
			if b.IsValid && b.SetID == 0 && b.Tag == 0x3000>>11 {
				count++
			}
		}
		Expect(count).To(Equal(1))
	})

	It("should bypass to the backend when disabled", func() {
		c.SetEnabled(false)

		backend.EXPECT().
			ReadRaw(uint32(0x3000), 4).
			Return([]byte{1, 2, 3, 4})
		backend.EXPECT().WriteRaw(uint32(0x3004), []byte{5, 6})

		_, readLatency := c.Read(0x3000, 4)
		writeLatency := c.Write(0x3004, []byte{5, 6})

		Expect(readLatency).To(Equal(MissLatency))
		Expect(writeLatency).To(Equal(MissLatency))
		Expect(c.Counters()).To(Equal(Counters{}))
	})

	It("should write dirty blocks back on flush", func() {
		backend.EXPECT().
			ReadRaw(uint32(0x3000), BlockSize).
			Return(fill(0))

		c.Read(0x3000, 4)
		c.Write(0x3000, []byte{9, 9, 9, 9})

		dirty := fill(0)
		copy(dirty, []byte{9, 9, 9, 9})
		backend.EXPECT().WriteRaw(uint32(0x3000), dirty)

		c.Flush()

		for _, b := range c.State() {
			Expect(b.IsValid).To(BeFalse())
		}
	})
})
