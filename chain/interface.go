// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chain provides the wallet's view of a full node: the chain
// tip, confirmed outputs and kernels, the output MMR for scanning, and
// the transaction pool for posting.  The node is reached over its REST
// API; the wallet never holds chain state of its own beyond what the
// transaction store records.
package chain

import (
	"context"

	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/wire"
)

// Tip describes the node's current chain head.
type Tip struct {
	// Height is the height of the latest block.
	Height uint64 `json:"height"`

	// LastBlockPushed is the hash of the latest block.
	LastBlockPushed string `json:"last_block_pushed"`

	// PrevBlockToLast is the hash of the block before the latest.
	PrevBlockToLast string `json:"prev_block_to_last"`

	// TotalDifficulty is the accumulated chain work.
	TotalDifficulty uint64 `json:"total_difficulty"`
}

// NodeVersionInfo reports the node build the wallet is talking to.
// Verified is false when the node predates the version endpoint and the
// values are placeholders.
type NodeVersionInfo struct {
	NodeVersion        string `json:"node_version"`
	BlockHeaderVersion uint16 `json:"block_header_version"`
	Verified           bool   `json:"verified"`
}

// LocatedKernel is a kernel found in the chain along with where it was
// included.
type LocatedKernel struct {
	Kernel   wire.TxKernel
	Height   uint64
	MMRIndex uint64
}

// NodeOutput is a confirmed output as reported by an output lookup.
type NodeOutput struct {
	// Commit is the output commitment.
	Commit commit.Commitment

	// Height is the block height the output was confirmed at.
	Height uint64

	// MMRIndex is the output's one based position in the output MMR.
	MMRIndex uint64
}

// ChainOutput is an output returned by an MMR range listing, carrying
// enough material to attempt a range proof rewind.
type ChainOutput struct {
	Commit     commit.Commitment
	Proof      wire.RangeProof
	IsCoinbase bool
	Height     uint64
	MMRIndex   uint64
}

// OutputListing is one page of the node's output MMR.
type OutputListing struct {
	// HighestIndex is the last position in the MMR at the time of the
	// request.
	HighestIndex uint64

	// LastRetrievedIndex is the position of the last output in this
	// page; the next page starts after it.
	LastRetrievedIndex uint64

	// Outputs are the unspent outputs in the requested range.
	Outputs []ChainOutput
}

// NodeClient is the wallet's interface to a full node.  Heights and
// MMR indices are one based; a zero maximum height or end index means
// no upper bound.
//
// Implementations must be safe for concurrent use.  The wallet issues
// node calls outside its own state lock, so calls for the same wallet
// may overlap.
type NodeClient interface {
	// GetChainTip returns the node's current chain head.
	GetChainTip(ctx context.Context) (*Tip, error)

	// GetVersionInfo returns the node's build information.  A node too
	// old to report a version yields an unverified placeholder rather
	// than an error; nil is returned only when the node is unreachable.
	GetVersionInfo(ctx context.Context) *NodeVersionInfo

	// PostTx submits a finalized transaction to the node's transaction
	// pool.  When fluff is set the node broadcasts immediately instead
	// of routing the transaction through its propagation stem.
	PostTx(ctx context.Context, tx *wire.Transaction, fluff bool) error

	// GetKernel searches the chain for a kernel by its excess
	// commitment, bounded to the given height range.  It returns
	// nil with no error when the kernel is not in the chain.
	GetKernel(ctx context.Context, excess commit.Commitment,
		minHeight, maxHeight uint64) (*LocatedKernel, error)

	// GetOutputsFromNode looks up which of the given commitments are
	// unspent in the chain.  Commitments absent from the result are
	// unknown to the node: either never confirmed or already spent.
	GetOutputsFromNode(ctx context.Context,
		commits []commit.Commitment) (map[commit.Commitment]NodeOutput, error)

	// GetOutputsByPMMRIndex returns up to max unspent outputs with MMR
	// positions in [startIndex, endIndex].
	GetOutputsByPMMRIndex(ctx context.Context, startIndex, endIndex,
		max uint64) (*OutputListing, error)

	// HeightRangeToPMMRIndices maps a block height range to the MMR
	// positions it covers.
	HeightRangeToPMMRIndices(ctx context.Context, startHeight,
		endHeight uint64) (lowIndex, highIndex uint64, err error)
}
