package block

import "nextgraph.dev/broker/types"

// Store is the content-addressed block store contract of spec §4.B.
type Store interface {
	// Get loads the block stored under (overlay, id), re-deriving the
	// id from the decoded content and failing with
	// types.StorageDataCorruption on mismatch.
	Get(overlay types.OverlayId, id types.BlockId) (*Block, error)

	// Put recomputes the block's id from its content and stores it
	// under that id, ignoring any id the caller might otherwise have
	// attached.
	Put(overlay types.OverlayId, b *Block) (types.BlockId, error)

	// Del removes the block and reports the number of bytes freed
	// (the padded on-disk size).
	Del(overlay types.OverlayId, id types.BlockId) (uint64, error)

	// Len reports the number of blocks currently stored.
	Len() (uint64, error)

	Close() error
}
