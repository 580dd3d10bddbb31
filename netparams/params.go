// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

// Params is used to group parameters for various networks such as the
// main network and test networks.
type Params struct {
	// Name is the canonical network name.
	Name string

	// DefaultNodeAPIAddr is the address of the node REST API the wallet
	// connects to when no address is configured.
	DefaultNodeAPIAddr string

	// CoinbaseMaturity is the number of blocks a coinbase output must
	// age before it can be spent.
	CoinbaseMaturity uint64

	// BlockHeaderVersion is the header version the wallet expects the
	// node to report for freshly mined blocks.
	BlockHeaderVersion uint16

	// UnconfirmedGraceWindow is the number of blocks an unconfirmed
	// output is protected from deletion during a chain scan.  Within
	// the window the negotiation that created the output may still be
	// completed by the counterparty.
	UnconfirmedGraceWindow uint64
}

// MainNetParams contains parameters specific to running the wallet
// against a main network node.  The grace window is one day of blocks,
// giving a counterparty that long to finish a negotiation before a
// scan may sweep the unconfirmed outputs.
var MainNetParams = Params{
	Name:                   "mainnet",
	DefaultNodeAPIAddr:     "http://127.0.0.1:3413",
	CoinbaseMaturity:       1440,
	BlockHeaderVersion:     6,
	UnconfirmedGraceWindow: 1440,
}

// TestNetParams contains parameters specific to running the wallet
// against a test network node.
var TestNetParams = Params{
	Name:                   "testnet",
	DefaultNodeAPIAddr:     "http://127.0.0.1:13413",
	CoinbaseMaturity:       1440,
	BlockHeaderVersion:     6,
	UnconfirmedGraceWindow: 1440,
}

// SimNetParams contains parameters for the simulation test network.
// The short coinbase maturity keeps integration tests from mining
// hundreds of blocks before a reward becomes spendable.
var SimNetParams = Params{
	Name:                   "simnet",
	DefaultNodeAPIAddr:     "http://127.0.0.1:23413",
	CoinbaseMaturity:       3,
	BlockHeaderVersion:     6,
	UnconfirmedGraceWindow: 5,
}
