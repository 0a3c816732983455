// Package vm implements the two-level paging MMU.
//
// A virtual address splits into [dir:10][table:10][offset:12]. Both levels
// hold 1024 4-byte entries. An entry's low bits carry the permission flags
// and bits 12..31 carry the physical frame base:
//
//	bit 0  present
//	bit 1  readable
//	bit 2  writable
//	bit 3  executable
//	bit 4  user-accessible
//
// When the page-table base register is zero, paging is off and virtual
// addresses map to physical addresses unchanged.
package vm

import (
	"fmt"

	"github.com/aquariumsim/aquarium/bits"
)

// PageSize is the size of one page in bytes.
const PageSize = 4096

// Perm is the permission bit set of a page-table entry.
type Perm uint32

// The permission bits.
const (
	PermPresent Perm = 1 << 0
	PermRead    Perm = 1 << 1
	PermWrite   Perm = 1 << 2
	PermExec    Perm = 1 << 3
	PermUser    Perm = 1 << 4
)

const frameMask = 0xfffff000

// Access distinguishes the three kinds of memory access for permission
// checks.
type Access int

// The access kinds.
const (
	AccessFetch Access = iota
	AccessLoad
	AccessStore
)

func (a Access) String() string {
	switch a {
	case AccessFetch:
		return "fetch"
	case AccessLoad:
		return "load"
	case AccessStore:
		return "store"
	default:
		return "unknown"
	}
}

// A PageFault reports a translation through a non-present entry.
type PageFault struct {
	VA     uint32
	Access Access
}

func (f *PageFault) Error() string {
	return fmt.Sprintf("page fault: %s at 0x%08x", f.Access, f.VA)
}

// A PermissionFault reports an access that the page's permission bits or
// the current privilege level do not allow.
type PermissionFault struct {
	VA     uint32
	Access Access
}

func (f *PermissionFault) Error() string {
	return fmt.Sprintf("permission fault: %s at 0x%08x", f.Access, f.VA)
}

// A PhysMem provides the raw physical reads and writes the page-table walk
// uses. Walks bypass the cache.
type PhysMem interface {
	ReadRaw(pa uint32, length int) []byte
	WriteRaw(pa uint32, data []byte)
}

// An MMU translates virtual addresses by walking the two-level page table
// rooted at the page-table base register.
type MMU struct {
	phys PhysMem

	tableBase uint32

	// nextTablePage is the bump allocator MapPage draws second-level
	// table frames from.
	nextTablePage uint32
}

// NewMMU creates an MMU with paging disabled.
func NewMMU(phys PhysMem) *MMU {
	return &MMU{phys: phys}
}

// SetTableBase points the MMU at the page directory. Zero disables paging.
func (m *MMU) SetTableBase(pa uint32) {
	m.tableBase = pa
}

// TableBase returns the current page directory address.
func (m *MMU) TableBase() uint32 {
	return m.tableBase
}

// Enabled reports whether paging is on.
func (m *MMU) Enabled() bool {
	return m.tableBase != 0
}

// SetTableAllocBase sets where MapPage allocates second-level tables.
func (m *MMU) SetTableAllocBase(pa uint32) {
	m.nextTablePage = pa
}

func splitVA(va uint32) (dirIdx, tblIdx, offset uint32) {
	return bits.Field(va, 22, 10), bits.Field(va, 12, 10), bits.Field(va, 0, 12)
}

func (m *MMU) readEntry(base, idx uint32) uint32 {
	return bits.U32(m.phys.ReadRaw(base+idx*4, 4))
}

func (m *MMU) writeEntry(base, idx, entry uint32) {
	m.phys.WriteRaw(base+idx*4, bits.BytesU32(entry))
}

func permAllows(perm Perm, access Access, user bool) bool {
	if user && perm&PermUser == 0 {
		return false
	}

	switch access {
	case AccessFetch:
		return perm&PermExec != 0
	case AccessLoad:
		return perm&PermRead != 0
	case AccessStore:
		return perm&PermWrite != 0
	}

	return false
}

// Translate maps va to a physical address for the given access kind. The
// user flag is true when the access happens at user privilege.
func (m *MMU) Translate(va uint32, access Access, user bool) (uint32, error) {
	if !m.Enabled() {
		return va, nil
	}

	dirIdx, tblIdx, offset := splitVA(va)

	dirEntry := m.readEntry(m.tableBase, dirIdx)
	if Perm(dirEntry)&PermPresent == 0 {
		return 0, &PageFault{VA: va, Access: access}
	}

	tblEntry := m.readEntry(dirEntry&frameMask, tblIdx)
	if Perm(tblEntry)&PermPresent == 0 {
		return 0, &PageFault{VA: va, Access: access}
	}

	if !permAllows(Perm(tblEntry), access, user) {
		return 0, &PermissionFault{VA: va, Access: access}
	}

	return tblEntry&frameMask | offset, nil
}

// MapPage installs a translation from the page containing va to the frame
// containing pa, with the given permissions. A missing second-level table
// is allocated from the table allocation area. MapPage panics if paging is
// disabled or no allocation area is configured when a table is needed.
func (m *MMU) MapPage(va, pa uint32, perm Perm) {
	if !m.Enabled() {
		panic("MapPage with paging disabled")
	}

	dirIdx, tblIdx, _ := splitVA(va)

	dirEntry := m.readEntry(m.tableBase, dirIdx)
	if Perm(dirEntry)&PermPresent == 0 {
		if m.nextTablePage == 0 {
			panic("no table allocation area configured")
		}

		tablePA := m.nextTablePage
		m.nextTablePage += PageSize

		dirEntry = tablePA&frameMask | uint32(PermPresent)
		m.writeEntry(m.tableBase, dirIdx, dirEntry)
	}

	entry := pa&frameMask | uint32(perm|PermPresent)
	m.writeEntry(dirEntry&frameMask, tblIdx, entry)
}
