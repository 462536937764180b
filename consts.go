package angelos7

// BlockSize is the fixed on-disk size of a sealed block, in bytes.
const BlockSize = 4096

// DataSize is the number of application payload bytes carried by one block.
// previous(4) + next(4) + index(4) + stream(16) + digest(20) + payload(DataSize)
// must sum, once sealed, to at most BlockSize. Fixed at 4008 per the format's
// compatibility-critical parameters; see DESIGN.md Open Question 1.
const DataSize = 4008

// PlaintextBlockSize is the size of the plaintext block layout before
// sealing: 4+4+4+16+20+DataSize.
const PlaintextBlockSize = 4 + 4 + 4 + 16 + 20 + DataSize

// PageSize is the B+Tree node page size, DataSize/4 per spec.
const PageSize = DataSize / 4

// ReservedBlocks is the number of blocks reserved for bootstrap at the start
// of the archive (slots 0-7).
const ReservedBlocks = 8

// Reserved block slots, see SPEC_FULL.md §4.7.
const (
	BlockHeader          = 0
	BlockOperations      = 1
	BlockSwap            = 2
	BlockReserved3       = 3
	BlockReserved4       = 4
	BlockStreamIndexHead = 5
	BlockTrashHead       = 6
	BlockJournalHead     = 7
)

// Internal stream identifiers occupy the first three stream IDs.
const (
	StreamIndex = iota
	StreamTrash
	StreamJournal
)

// HeaderMagic is the 8-byte ASCII magic at the start of block 0's payload.
const HeaderMagic = "archive7"

// HeaderVersionMajor and HeaderVersionMinor are the on-disk format version.
const (
	HeaderVersionMajor uint16 = 2
	HeaderVersionMinor uint16 = 0
)

// MaxNameBytes is the maximum length of an entry name, in UTF-8 bytes.
const MaxNameBytes = 256
