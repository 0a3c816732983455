// Package mem provides the physical memory of the simulated machine,
// including the MMIO control region and the VGA text buffer side channel.
package mem

// A Storage keeps the data of the guest system.
//
// Storage manages memory in 4-KiB units and allocates a unit only when it is
// first written, so the full 32-bit physical space can be modeled without
// allocating 4 GiB up front. Reads from untouched units return zeros.
type Storage struct {
	unitSize uint32
	data     map[uint32][]byte
}

// NewStorage creates an empty sparse storage covering the 32-bit physical
// address space.
func NewStorage() *Storage {
	return &Storage{
		unitSize: 4096,
		data:     make(map[uint32][]byte),
	}
}

func (s *Storage) parseAddress(addr uint32) (baseAddr, inUnitAddr uint32) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}

func (s *Storage) unit(addr uint32, allocate bool) []byte {
	baseAddr, _ := s.parseAddress(addr)

	unit, ok := s.data[baseAddr]
	if !ok && allocate {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

// Read copies length bytes starting at address. Unallocated memory reads as
// zero.
func (s *Storage) Read(address uint32, length int) []byte {
	res := make([]byte, length)
	currAddr := address
	dataOffset := 0

	for dataOffset < length {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenInUnit := int(baseAddr + s.unitSize - currAddr)
		lenToRead := length - dataOffset
		if lenToRead > lenInUnit {
			lenToRead = lenInUnit
		}

		if unit := s.unit(currAddr, false); unit != nil {
			copy(res[dataOffset:dataOffset+lenToRead],
				unit[inUnitAddr:inUnitAddr+uint32(lenToRead)])
		}

		dataOffset += lenToRead
		currAddr += uint32(lenToRead)
	}

	return res
}

// Write copies data into the storage starting at address, allocating units
// as needed.
func (s *Storage) Write(address uint32, data []byte) {
	currAddr := address
	dataOffset := 0

	for dataOffset < len(data) {
		baseAddr, inUnitAddr := s.parseAddress(currAddr)
		lenInUnit := int(baseAddr + s.unitSize - currAddr)
		lenToWrite := len(data) - dataOffset
		if lenToWrite > lenInUnit {
			lenToWrite = lenInUnit
		}

		unit := s.unit(currAddr, true)
		copy(unit[inUnitAddr:inUnitAddr+uint32(lenToWrite)],
			data[dataOffset:dataOffset+lenToWrite])

		dataOffset += lenToWrite
		currAddr += uint32(lenToWrite)
	}
}

// Reset drops all allocated units, returning the storage to all zeros.
func (s *Storage) Reset() {
	s.data = make(map[uint32][]byte)
}
