package bar

import (
	"context"

	"github.com/asheshgoplani/barkeep/internal/config"
	"github.com/asheshgoplani/barkeep/internal/protocol"
)

// runningBlock pairs a block with the handles needed to stop it: its
// cancel func and a channel closed once its listen loop has fully
// unwound.
type runningBlock struct {
	block  *Block
	cancel context.CancelFunc
	done   chan struct{}
}

// BlockSet owns the currently active blocks, in configured order.
// It is only ever touched from the bar's run loop.
type BlockSet struct {
	inner []runningBlock
}

// RemoveAll cancels every block and waits for each to acknowledge its
// stop before returning. Idempotent on an empty set. No two
// generations of the same block id can overlap: the old generation is
// fully gone before AddAll may run.
func (s *BlockSet) RemoveAll() {
	for _, rb := range s.inner {
		rb.cancel()
		<-rb.done
	}
	s.inner = nil
}

// AddAll populates the set from cfgs, assigning sequential ids from 1,
// and starts each block's listen loop. The set must be empty; callers
// always RemoveAll first.
func (s *BlockSet) AddAll(ctx context.Context, cfgs []config.Block, global protocol.Body, cmdDir string, notify notifyFunc) {
	if len(s.inner) != 0 {
		panic("bar: AddAll on a non-empty block set")
	}

	total := len(cfgs)
	for i, bc := range cfgs {
		blockCtx, cancel := context.WithCancel(ctx)
		blk := newBlock(bc, global, cmdDir, i+1, total, notify)
		done := make(chan struct{})
		go func() {
			defer close(done)
			blk.Listen(blockCtx)
		}()
		s.inner = append(s.inner, runningBlock{block: blk, cancel: cancel, done: done})
	}
}

// Snapshots returns a copy of every block's body, in configured order.
func (s *BlockSet) Snapshots() []protocol.Body {
	bodies := make([]protocol.Body, len(s.inner))
	for i, rb := range s.inner {
		bodies[i] = rb.block.Snapshot()
	}
	return bodies
}

// Len returns the number of active blocks.
func (s *BlockSet) Len() int {
	return len(s.inner)
}
