// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mwsuite/mwwallet/aggsig"
	"github.com/mwsuite/mwwallet/commit"
	"github.com/mwsuite/mwwallet/mwutil"
	"github.com/mwsuite/mwwallet/wire"
)

const (
	// defaultRequestTimeout bounds every node API request.
	defaultRequestTimeout = 30 * time.Second

	// outputLookupChunkSize caps the number of commitment ids placed in
	// a single output lookup query string.
	outputLookupChunkSize = 200

	// apiAuthUser is the basic auth user name the node API expects; the
	// configured API secret is the password.
	apiAuthUser = "mwsuite"

	// maxErrorBody caps how much of an error response is read back for
	// diagnostics.
	maxErrorBody = 1024
)

// kernelLookupMinVersion is the newest node version that does not
// support kernel lookup.  Nodes must be strictly newer.
var kernelLookupMinVersion = semver{2, 0, 0}

// errNotFound distinguishes a 404 response from other failures.
var errNotFound = errors.New("not found")

// HTTPClient talks to a node's REST API.  It implements NodeClient and
// is safe for concurrent use.
type HTTPClient struct {
	nodeURL   string
	apiSecret string
	client    *http.Client

	mtx         sync.Mutex
	versionInfo *NodeVersionInfo
}

// compile time check
var _ NodeClient = (*HTTPClient)(nil)

// NewHTTPClient returns a node client for the API at nodeURL.  The
// secret may be empty when the node does not require authentication.
func NewHTTPClient(nodeURL, apiSecret string) *HTTPClient {
	return &HTTPClient{
		nodeURL:   strings.TrimRight(nodeURL, "/"),
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: defaultRequestTimeout},
	}
}

// get performs a GET against path and decodes the JSON response into
// result.  A JSON null leaves result untouched.
func (c *HTTPClient) get(ctx context.Context, path string,
	result interface{}) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.nodeURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, result)
}

// postJSON performs a POST with a JSON body and discards any response
// payload.
func (c *HTTPClient) postJSON(ctx context.Context, path string,
	body interface{}) error {

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.nodeURL+path, strings.NewReader(string(b)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *HTTPClient) do(req *http.Request, result interface{}) error {
	if c.apiSecret != "" {
		req.SetBasicAuth(apiAuthUser, c.apiSecret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("node returned %s: %s", resp.Status,
			strings.TrimSpace(string(body)))
	}

	if result == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if string(body) == "null" {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("malformed node response: %v", err)
	}
	return nil
}

// GetChainTip returns the node's current chain head.
func (c *HTTPClient) GetChainTip(ctx context.Context) (*Tip, error) {
	tip := new(Tip)
	if err := c.get(ctx, "/v1/chain", tip); err != nil {
		return nil, fmt.Errorf("getting chain tip from node: %w", err)
	}
	return tip, nil
}

// GetVersionInfo returns the node's build information, caching the
// answer for the life of the client.  A node old enough to lack the
// version endpoint yields an unverified placeholder so offline
// operations keep working; nil is returned only when the node cannot
// be reached at all.
func (c *HTTPClient) GetVersionInfo(ctx context.Context) *NodeVersionInfo {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.versionInfo != nil {
		return c.versionInfo
	}

	info := new(NodeVersionInfo)
	err := c.get(ctx, "/v1/version", info)
	switch {
	case errors.Is(err, errNotFound):
		return &NodeVersionInfo{
			NodeVersion:        "1.0.0",
			BlockHeaderVersion: 1,
			Verified:           false,
		}
	case err != nil:
		log.Errorf("Unable to contact node for version info: %v", err)
		return nil
	}

	info.Verified = true
	c.versionInfo = info
	return info
}

// txWrapper is the pool submission envelope: the transaction's
// canonical encoding, hex wrapped.
type txWrapper struct {
	TxHex string `json:"tx_hex"`
}

// PostTx submits a finalized transaction to the node's pool.
func (c *HTTPClient) PostTx(ctx context.Context, tx *wire.Transaction,
	fluff bool) error {

	txBytes, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	path := "/v1/pool/push_tx"
	if fluff {
		path += "?fluff"
	}
	wrapper := &txWrapper{TxHex: hex.EncodeToString(txBytes)}
	if err := c.postJSON(ctx, path, wrapper); err != nil {
		log.Errorf("Post tx error: %v", err)
		return fmt.Errorf("posting transaction to node: %w", err)
	}
	return nil
}

// nodeKernel decodes a kernel from a node response, where 64-bit
// integers may arrive bare or quoted.
type nodeKernel struct {
	Features   wire.KernelFeatures `json:"features"`
	Fee        mwutil.Amount       `json:"fee"`
	LockHeight flexUint64          `json:"lock_height"`
	Excess     commit.Commitment   `json:"excess"`
	ExcessSig  string              `json:"excess_sig"`
}

type locatedKernel struct {
	TxKernel *nodeKernel `json:"tx_kernel"`
	Height   flexUint64  `json:"height"`
	MMRIndex flexUint64  `json:"mmr_index"`
}

// GetKernel searches the chain for a kernel by excess commitment.
func (c *HTTPClient) GetKernel(ctx context.Context,
	excess commit.Commitment, minHeight, maxHeight uint64) (
	*LocatedKernel, error) {

	info := c.GetVersionInfo(ctx)
	if info == nil {
		return nil, errors.New("kernel lookup: unable to get node version")
	}
	if v, err := parseSemver(info.NodeVersion); err == nil &&
		!v.newerThan(kernelLookupMinVersion) {

		return nil, fmt.Errorf("kernel lookup not supported by node "+
			"version %s, please upgrade it", info.NodeVersion)
	}

	query := make(url.Values)
	if minHeight > 0 {
		query.Set("min_height", strconv.FormatUint(minHeight, 10))
	}
	if maxHeight > 0 {
		query.Set("max_height", strconv.FormatUint(maxHeight, 10))
	}
	path := "/v1/chain/kernels/" + excess.String()
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var located locatedKernel
	if err := c.get(ctx, path, &located); err != nil {
		return nil, fmt.Errorf("kernel lookup: %w", err)
	}
	if located.TxKernel == nil {
		// JSON null: the kernel is not in the chain.
		return nil, nil
	}

	sig, err := aggsig.NewSignatureFromString(located.TxKernel.ExcessSig)
	if err != nil {
		return nil, fmt.Errorf("kernel lookup: %w", err)
	}
	return &LocatedKernel{
		Kernel: wire.TxKernel{
			Features:   located.TxKernel.Features,
			Fee:        located.TxKernel.Fee,
			LockHeight: uint64(located.TxKernel.LockHeight),
			Excess:     located.TxKernel.Excess,
			ExcessSig:  sig,
		},
		Height:   uint64(located.Height),
		MMRIndex: uint64(located.MMRIndex),
	}, nil
}

// nodeOutput decodes an output lookup result.
type nodeOutput struct {
	Commit   commit.Commitment `json:"commit"`
	Height   flexUint64        `json:"height"`
	MMRIndex flexUint64        `json:"mmr_index"`
}

// GetOutputsFromNode looks up which of the given commitments are
// unspent in the chain.  Lookups are batched to keep query strings
// bounded.
func (c *HTTPClient) GetOutputsFromNode(ctx context.Context,
	commits []commit.Commitment) (map[commit.Commitment]NodeOutput, error) {

	found := make(map[commit.Commitment]NodeOutput, len(commits))
	for start := 0; start < len(commits); start += outputLookupChunkSize {
		end := start + outputLookupChunkSize
		if end > len(commits) {
			end = len(commits)
		}

		query := make([]string, 0, end-start)
		for _, cm := range commits[start:end] {
			query = append(query, "id="+cm.String())
		}
		path := "/v1/chain/outputs/byids?" + strings.Join(query, "&")

		var outputs []nodeOutput
		if err := c.get(ctx, path, &outputs); err != nil {
			log.Errorf("Outputs by id failed: %v", err)
			return nil, fmt.Errorf("getting outputs by id: %w", err)
		}
		for _, out := range outputs {
			found[out.Commit] = NodeOutput{
				Commit:   out.Commit,
				Height:   uint64(out.Height),
				MMRIndex: uint64(out.MMRIndex),
			}
		}
	}
	return found, nil
}

// outputPrintable decodes one entry of an MMR range listing.
type outputPrintable struct {
	OutputType  string            `json:"output_type"`
	Commit      commit.Commitment `json:"commit"`
	Spent       bool              `json:"spent"`
	Proof       *string           `json:"proof"`
	BlockHeight *flexUint64       `json:"block_height"`
	MMRIndex    flexUint64        `json:"mmr_index"`
}

type outputListing struct {
	HighestIndex       flexUint64        `json:"highest_index"`
	LastRetrievedIndex flexUint64        `json:"last_retrieved_index"`
	Outputs            []outputPrintable `json:"outputs"`
}

// GetOutputsByPMMRIndex returns up to max unspent outputs with MMR
// positions in [startIndex, endIndex].
func (c *HTTPClient) GetOutputsByPMMRIndex(ctx context.Context,
	startIndex, endIndex, max uint64) (*OutputListing, error) {

	query := fmt.Sprintf("start_index=%d&max=%d", startIndex, max)
	if endIndex > 0 {
		query += fmt.Sprintf("&end_index=%d", endIndex)
	}

	var listing outputListing
	err := c.get(ctx, "/v1/txhashset/outputs?"+query, &listing)
	if err != nil {
		log.Errorf("Outputs by pmmr index failed: %v", err)
		return nil, fmt.Errorf("outputs by pmmr index: %w", err)
	}

	result := &OutputListing{
		HighestIndex:       uint64(listing.HighestIndex),
		LastRetrievedIndex: uint64(listing.LastRetrievedIndex),
		Outputs:            make([]ChainOutput, 0, len(listing.Outputs)),
	}
	for _, out := range listing.Outputs {
		if out.Proof == nil {
			return nil, fmt.Errorf("node output %v missing range proof",
				out.Commit)
		}
		proof, err := hex.DecodeString(*out.Proof)
		if err != nil {
			return nil, fmt.Errorf("node output %v: malformed range "+
				"proof: %v", out.Commit, err)
		}
		if out.BlockHeight == nil {
			return nil, fmt.Errorf("node output %v missing block height",
				out.Commit)
		}
		result.Outputs = append(result.Outputs, ChainOutput{
			Commit:     out.Commit,
			Proof:      proof,
			IsCoinbase: out.OutputType == "Coinbase",
			Height:     uint64(*out.BlockHeight),
			MMRIndex:   uint64(out.MMRIndex),
		})
	}
	return result, nil
}

// HeightRangeToPMMRIndices maps a block height range to MMR positions.
func (c *HTTPClient) HeightRangeToPMMRIndices(ctx context.Context,
	startHeight, endHeight uint64) (uint64, uint64, error) {

	query := fmt.Sprintf("start_height=%d", startHeight)
	if endHeight > 0 {
		query += fmt.Sprintf("&end_height=%d", endHeight)
	}

	var listing outputListing
	err := c.get(ctx, "/v1/txhashset/heightstopmmr?"+query, &listing)
	if err != nil {
		return 0, 0, fmt.Errorf("heights to pmmr indices: %w", err)
	}
	return uint64(listing.LastRetrievedIndex),
		uint64(listing.HighestIndex), nil
}

// flexUint64 decodes 64-bit integers that some node builds send bare
// and others quoted.
type flexUint64 uint64

// UnmarshalJSON implements json.Unmarshaler.
func (u *flexUint64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed integer %s", data)
	}
	*u = flexUint64(n)
	return nil
}
