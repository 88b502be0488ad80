package broker

import (
	"nextgraph.dev/broker/storage/block"
	"nextgraph.dev/broker/types"
)

// PutBlock stores b under overlay, returning its content-derived id
// (spec §4.D "put_block(overlay, block)").
func (b *Broker) PutBlock(overlay types.OverlayId, blk *block.Block) (types.BlockId, error) {
	id, err := b.blockStore.Put(overlay, blk)
	if err != nil {
		return types.BlockId{}, types.FromStorageError(asStorageError(err))
	}
	return id, nil
}

// HasBlock reports whether a block is present and readable: it loads
// the block through the store's Get, which decodes it and rechecks its
// id, so a corrupted block reports false.
func (b *Broker) HasBlock(overlay types.OverlayId, id types.BlockId) bool {
	_, err := b.blockStore.Get(overlay, id)
	return err == nil
}

// GetBlock loads a single block (spec §4.D "get_block(overlay,id) -> Block").
func (b *Broker) GetBlock(overlay types.OverlayId, id types.BlockId) (*block.Block, error) {
	blk, err := b.blockStore.Get(overlay, id)
	if err != nil {
		return nil, types.FromStorageError(asStorageError(err))
	}
	return blk, nil
}

// GetCommit returns the closure of a commit object by DAG walk over
// children (spec §4.D "get_commit ... DAG walk over children").
func (b *Broker) GetCommit(overlay types.OverlayId, id types.ObjectId) ([]*block.Block, error) {
	bolt, ok := b.blockStore.(*block.BoltStore)
	if !ok {
		return nil, types.ErrBrokerError
	}
	var root types.BlockId
	copy(root[:], id[:])
	blocks, err := bolt.CommitClosure(overlay, root)
	if err != nil {
		return nil, types.FromStorageError(asStorageError(err))
	}
	return blocks, nil
}

func asStorageError(err error) types.StorageError {
	if se, ok := err.(types.StorageError); ok {
		return se
	}
	return types.StorageBackendError
}
