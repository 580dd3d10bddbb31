// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/wire"
)

// mockLeaf is one position of the mock chain's output MMR.  Spent
// leaves keep their position so paging stays stable.
type mockLeaf struct {
	output  ChainOutput
	spentAt uint64 // block height the output was spent at, zero if unspent
}

// MockNode is an in-memory NodeClient.  It models the pieces of a full
// node the wallet observes: a chain tip, an append-only output MMR
// with one-based positions, a kernel index, and a transaction pool
// that is applied when a block is mined.
//
// Test helpers drive the chain: MineBlockWithCoinbase appends a block,
// Reorg rewinds one, and SetErr makes every call fail to exercise the
// wallet's degraded paths.  All methods are safe for concurrent use.
type MockNode struct {
	mtx sync.Mutex

	height  uint64
	gen     uint64 // bumped on every chain mutation, feeds the tip hash
	leaves  []mockLeaf
	kernels []LocatedKernel
	mempool []*wire.Transaction

	version NodeVersionInfo
	err     error
}

var _ NodeClient = (*MockNode)(nil)

// NewMockNode returns an empty mock chain at height zero.
func NewMockNode() *MockNode {
	return &MockNode{
		version: NodeVersionInfo{
			NodeVersion:        "2.0.0",
			BlockHeaderVersion: 6,
			Verified:           true,
		},
	}
}

// SetErr forces every subsequent node call to fail with err.  Passing
// nil restores normal operation.
func (n *MockNode) SetErr(err error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.err = err
}

// Height returns the current chain height.
func (n *MockNode) Height() uint64 {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.height
}

// MineBlock mines an empty block on top of the chain, applying any
// pooled transactions, and returns the new height.
func (n *MockNode) MineBlock() uint64 {
	return n.MineBlockWithCoinbase(nil)
}

// MineBlocks mines count empty blocks and returns the final height.
func (n *MockNode) MineBlocks(count int) uint64 {
	var height uint64
	for i := 0; i < count; i++ {
		height = n.MineBlock()
	}
	return height
}

// MineBlockWithCoinbase mines a block containing the given coinbase
// output plus every pooled transaction, and returns the new height.
func (n *MockNode) MineBlockWithCoinbase(coinbase *wire.Output) uint64 {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	n.height++
	n.gen++
	if coinbase != nil {
		n.appendLeaf(ChainOutput{
			Commit:     coinbase.Commit,
			Proof:      coinbase.Proof,
			IsCoinbase: true,
			Height:     n.height,
		})
	}
	for _, tx := range n.mempool {
		for _, in := range tx.Body.Inputs {
			if leaf := n.findUnspent(in.Commit); leaf != nil {
				leaf.spentAt = n.height
			}
		}
		for i := range tx.Body.Outputs {
			out := &tx.Body.Outputs[i]
			n.appendLeaf(ChainOutput{
				Commit:     out.Commit,
				Proof:      out.Proof,
				IsCoinbase: out.Features == wire.CoinbaseOutput,
				Height:     n.height,
			})
		}
		for i := range tx.Body.Kernels {
			n.kernels = append(n.kernels, LocatedKernel{
				Kernel:   tx.Body.Kernels[i],
				Height:   n.height,
				MMRIndex: uint64(len(n.kernels) + 1),
			})
		}
	}
	n.mempool = nil
	return n.height
}

// Reorg rewinds the chain to the given height.  Outputs created above
// it vanish, outputs spent above it return to the unspent set, and
// kernels included above it are forgotten.
func (n *MockNode) Reorg(height uint64) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	if height >= n.height {
		return
	}
	n.gen++
	n.height = height

	// Leaves are appended in height order, so everything above the
	// reorg point is a suffix.
	keep := len(n.leaves)
	for keep > 0 && n.leaves[keep-1].output.Height > height {
		keep--
	}
	n.leaves = n.leaves[:keep]
	for i := range n.leaves {
		if n.leaves[i].spentAt > height {
			n.leaves[i].spentAt = 0
		}
	}

	keep = len(n.kernels)
	for keep > 0 && n.kernels[keep-1].Height > height {
		keep--
	}
	n.kernels = n.kernels[:keep]
}

// appendLeaf adds an output at the next MMR position.  The caller must
// hold the mutex.
func (n *MockNode) appendLeaf(out ChainOutput) {
	out.MMRIndex = uint64(len(n.leaves) + 1)
	n.leaves = append(n.leaves, mockLeaf{output: out})
}

// findUnspent returns the unspent leaf with the given commitment.  The
// caller must hold the mutex.
func (n *MockNode) findUnspent(com commit.Commitment) *mockLeaf {
	for i := range n.leaves {
		if n.leaves[i].spentAt == 0 && n.leaves[i].output.Commit == com {
			return &n.leaves[i]
		}
	}
	return nil
}

// GetChainTip returns the mock chain head.
func (n *MockNode) GetChainTip(ctx context.Context) (*Tip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	return &Tip{
		Height:          n.height,
		LastBlockPushed: fmt.Sprintf("%016x%016x", n.height, n.gen),
		TotalDifficulty: n.height,
	}, nil
}

// GetVersionInfo returns the mock node build information, or nil when
// the node is failing.
func (n *MockNode) GetVersionInfo(ctx context.Context) *NodeVersionInfo {
	if ctx.Err() != nil {
		return nil
	}
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if n.err != nil {
		return nil
	}
	info := n.version
	return &info
}

// PostTx validates the transaction and admits it to the pool.  It is
// included in the chain by the next mined block.
func (n *MockNode) PostTx(ctx context.Context, tx *wire.Transaction,
	fluff bool) error {

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Validate(); err != nil {
		return err
	}

	n.mtx.Lock()
	defer n.mtx.Unlock()
	if n.err != nil {
		return n.err
	}
	for _, in := range tx.Body.Inputs {
		if n.findUnspent(in.Commit) == nil {
			return fmt.Errorf("input not found in utxo set: %s",
				in.Commit)
		}
	}
	n.mempool = append(n.mempool, tx)
	return nil
}

// GetKernel searches the kernel index by excess commitment within the
// given height bounds.
func (n *MockNode) GetKernel(ctx context.Context, excess commit.Commitment,
	minHeight, maxHeight uint64) (*LocatedKernel, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	for i := range n.kernels {
		k := &n.kernels[i]
		if k.Kernel.Excess != excess {
			continue
		}
		if k.Height < minHeight {
			continue
		}
		if maxHeight != 0 && k.Height > maxHeight {
			continue
		}
		located := *k
		return &located, nil
	}
	return nil, nil
}

// GetOutputsFromNode reports which of the given commitments are
// currently unspent.
func (n *MockNode) GetOutputsFromNode(ctx context.Context,
	commits []commit.Commitment) (map[commit.Commitment]NodeOutput, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	found := make(map[commit.Commitment]NodeOutput, len(commits))
	for _, com := range commits {
		if leaf := n.findUnspent(com); leaf != nil {
			found[com] = NodeOutput{
				Commit:   leaf.output.Commit,
				Height:   leaf.output.Height,
				MMRIndex: leaf.output.MMRIndex,
			}
		}
	}
	return found, nil
}

// GetOutputsByPMMRIndex pages unspent outputs by MMR position.
func (n *MockNode) GetOutputsByPMMRIndex(ctx context.Context, startIndex,
	endIndex, max uint64) (*OutputListing, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if n.err != nil {
		return nil, n.err
	}

	if startIndex == 0 {
		startIndex = 1
	}
	highest := uint64(len(n.leaves))
	limit := highest
	if endIndex != 0 && endIndex < limit {
		limit = endIndex
	}

	listing := &OutputListing{HighestIndex: highest}
	last := startIndex - 1
	for pos := startIndex; pos <= limit; pos++ {
		last = pos
		leaf := &n.leaves[pos-1]
		if leaf.spentAt != 0 {
			continue
		}
		listing.Outputs = append(listing.Outputs, leaf.output)
		if max != 0 && uint64(len(listing.Outputs)) >= max {
			break
		}
	}
	listing.LastRetrievedIndex = last
	return listing, nil
}

// HeightRangeToPMMRIndices maps a height range onto the MMR positions
// it covers.
func (n *MockNode) HeightRangeToPMMRIndices(ctx context.Context, startHeight,
	endHeight uint64) (uint64, uint64, error) {

	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	n.mtx.Lock()
	defer n.mtx.Unlock()
	if n.err != nil {
		return 0, 0, n.err
	}

	var low, high uint64
	for i := range n.leaves {
		h := n.leaves[i].output.Height
		if h < startHeight || (endHeight != 0 && h > endHeight) {
			continue
		}
		pos := uint64(i + 1)
		if low == 0 {
			low = pos
		}
		high = pos
	}
	if low == 0 {
		// Nothing in range; point past the end so a scan terminates
		// immediately.
		low = uint64(len(n.leaves)) + 1
		high = uint64(len(n.leaves))
	}
	return low, high, nil
}
