// Package chaintest serves an in-process JSON-RPC endpoint that accepts signed transactions and
// mines each one immediately. It implements just the eth_* methods the publisher uses.
package chaintest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
)

const (
	DefaultChainID  = 31337
	DefaultGasPrice = 1_000_000_000
	DefaultTipCap   = 100_000_000
	EstimatedGas    = 250_000
)

// CallArgs is the subset of an eth_call / eth_estimateGas message the chain looks at.
type CallArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (a CallArgs) Calldata() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

type Sent struct {
	Tx      *types.Transaction
	From    common.Address
	Receipt *types.Receipt
}

type Chain struct {
	ChainID *big.Int

	mu       sync.Mutex
	nonces   map[common.Address]uint64
	balances map[common.Address]*big.Int
	code     map[common.Address][]byte
	receipts map[common.Hash]*types.Receipt
	sent     []Sent
	block    uint64
	pending  map[common.Hash]int

	// Revert makes matching transactions mine with a failed status.
	Revert func(tx *types.Transaction) bool
	// OnCall answers eth_call.
	OnCall func(args CallArgs) ([]byte, error)
	// ReceiptDelay hides each receipt for that many lookups.
	ReceiptDelay int
}

func New() *Chain {
	return &Chain{
		ChainID:  big.NewInt(DefaultChainID),
		nonces:   make(map[common.Address]uint64),
		balances: make(map[common.Address]*big.Int),
		code:     make(map[common.Address][]byte),
		receipts: make(map[common.Hash]*types.Receipt),
		pending:  make(map[common.Hash]int),
	}
}

func (c *Chain) server(t testing.TB) *rpc.Server {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethAPI{c}); err != nil {
		t.Fatalf("register eth api: %v", err)
	}
	t.Cleanup(server.Stop)
	return server
}

// Client returns an in-process w3 client. It is closed with t.
func (c *Chain) Client(t testing.TB) *w3.Client {
	t.Helper()
	client := w3.NewClient(rpc.DialInProc(c.server(t)))
	t.Cleanup(func() { client.Close() })
	return client
}

// URL serves the chain over HTTP and returns the endpoint.
func (c *Chain) URL(t testing.TB) string {
	t.Helper()
	ts := httptest.NewServer(c.server(t))
	t.Cleanup(ts.Close)
	return ts.URL
}

func (c *Chain) SetCode(addr common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = code
}

func (c *Chain) SetBalance(addr common.Address, bal *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = bal
}

func (c *Chain) SetNonce(addr common.Address, nonce uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonces[addr] = nonce
}

func (c *Chain) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

func (c *Chain) Code(addr common.Address) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code[addr]
}

func (c *Chain) mine(raw []byte) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, fmt.Errorf("decode tx: %w", err)
	}
	if tx.ChainId().Cmp(c.ChainID) != 0 {
		return common.Hash{}, fmt.Errorf("invalid chain id %s", tx.ChainId())
	}
	from, err := types.Sender(types.LatestSignerForChainID(c.ChainID), tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid sender: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if want := c.nonces[from]; tx.Nonce() != want {
		return common.Hash{}, fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), want)
	}
	c.nonces[from]++
	c.block++

	status := types.ReceiptStatusSuccessful
	if c.Revert != nil && c.Revert(tx) {
		status = types.ReceiptStatusFailed
	}
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: tx.Gas() / 2,
		GasUsed:           tx.Gas() / 2,
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(c.block),
		BlockHash:         common.BigToHash(new(big.Int).SetUint64(c.block)),
		EffectiveGasPrice: tx.GasFeeCap(),
	}
	if tx.To() == nil {
		addr := crypto.CreateAddress(from, tx.Nonce())
		receipt.ContractAddress = addr
		if status == types.ReceiptStatusSuccessful {
			// the runtime code is not executed; the initcode stands in for it
			c.code[addr] = bytes.Clone(tx.Data())
		}
	}
	c.receipts[tx.Hash()] = receipt
	c.pending[tx.Hash()] = c.ReceiptDelay
	c.sent = append(c.sent, Sent{Tx: tx, From: from, Receipt: receipt})
	return tx.Hash(), nil
}

type ethAPI struct {
	c *Chain
}

func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.c.ChainID)
}

func (api *ethAPI) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(DefaultGasPrice))
}

func (api *ethAPI) MaxPriorityFeePerGas() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(DefaultTipCap))
}

func (api *ethAPI) GetTransactionCount(addr common.Address, _ *rpc.BlockNumberOrHash) hexutil.Uint64 {
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	return hexutil.Uint64(api.c.nonces[addr])
}

func (api *ethAPI) GetBalance(addr common.Address, _ *rpc.BlockNumberOrHash) *hexutil.Big {
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	bal := api.c.balances[addr]
	if bal == nil {
		bal = new(big.Int)
	}
	return (*hexutil.Big)(bal)
}

func (api *ethAPI) GetCode(addr common.Address, _ *rpc.BlockNumberOrHash) hexutil.Bytes {
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	return api.c.code[addr]
}

func (api *ethAPI) EstimateGas(_ CallArgs, _ *rpc.BlockNumberOrHash) hexutil.Uint64 {
	return EstimatedGas
}

func (api *ethAPI) Call(args CallArgs, _ *rpc.BlockNumberOrHash, _ *map[string]json.RawMessage) (hexutil.Bytes, error) {
	if api.c.OnCall == nil {
		return nil, errors.New("execution reverted")
	}
	return api.c.OnCall(args)
}

func (api *ethAPI) SendRawTransaction(_ context.Context, raw hexutil.Bytes) (common.Hash, error) {
	return api.c.mine(raw)
}

func (api *ethAPI) GetTransactionReceipt(hash common.Hash) *types.Receipt {
	api.c.mu.Lock()
	defer api.c.mu.Unlock()
	if api.c.pending[hash] > 0 {
		api.c.pending[hash]--
		return nil
	}
	return api.c.receipts[hash]
}
