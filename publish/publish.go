package publish

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
)

const (
	DefaultPollInterval = 2 * time.Second

	// gas estimates are scaled by gasHeadroomNum/gasHeadroomDen
	gasHeadroomNum = 6
	gasHeadroomDen = 5
)

var ErrTxFailed = errors.New("transaction reverted")

type (
	DeployResult struct {
		TxHash          common.Hash
		ContractAddress common.Address
		Nonce           uint64
	}

	Options struct {
		// ChainID 0 is resolved with eth_chainId.
		ChainID int64
		Signer  Signer
		// Nil fee caps are suggested by the node.
		GasFeeCap    *big.Int
		GasTipCap    *big.Int
		PollInterval time.Duration
		Logger       log.Logger
	}

	Deployer struct {
		client       *w3.Client
		signer       Signer
		chainID      *big.Int
		address      common.Address
		gasFeeCap    *big.Int
		gasTipCap    *big.Int
		pollInterval time.Duration
		log          log.Logger
	}
)

func NewDeployer(ctx context.Context, rpcURL string, opts Options) (*Deployer, error) {
	client, err := w3.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	d, err := NewDeployerWithClient(ctx, client, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	return d, nil
}

// NewDeployerWithClient takes ownership of client; Close closes it.
func NewDeployerWithClient(ctx context.Context, client *w3.Client, opts Options) (*Deployer, error) {
	if opts.Signer == nil {
		return nil, errors.New("signer is required")
	}
	d := &Deployer{
		client:       client,
		signer:       opts.Signer,
		address:      opts.Signer.Address(),
		gasFeeCap:    opts.GasFeeCap,
		gasTipCap:    opts.GasTipCap,
		pollInterval: opts.PollInterval,
		log:          opts.Logger,
	}
	if d.pollInterval <= 0 {
		d.pollInterval = DefaultPollInterval
	}
	if d.log == nil {
		d.log = log.Root()
	}

	if opts.ChainID != 0 {
		d.chainID = big.NewInt(opts.ChainID)
	} else {
		var chainID uint64
		if err := client.CallCtx(ctx, eth.ChainID().Returns(&chainID)); err != nil {
			return nil, fmt.Errorf("get chain id: %w", err)
		}
		d.chainID = new(big.Int).SetUint64(chainID)
	}

	if d.gasFeeCap == nil || d.gasTipCap == nil {
		if err := d.suggestFees(ctx); err != nil {
			return nil, err
		}
	}
	if d.gasFeeCap.Cmp(d.gasTipCap) < 0 {
		return nil, fmt.Errorf("gas fee cap %s below tip cap %s", d.gasFeeCap, d.gasTipCap)
	}
	d.log.Debug("Deployer ready", "address", d.address, "chain_id", d.chainID,
		"fee_cap", d.gasFeeCap, "tip_cap", d.gasTipCap)
	return d, nil
}

func (d *Deployer) Address() common.Address {
	return d.address
}

func (d *Deployer) ChainID() *big.Int {
	return new(big.Int).Set(d.chainID)
}

func (d *Deployer) Close() error {
	return d.client.Close()
}

func (d *Deployer) suggestFees(ctx context.Context) error {
	var gasPrice, tipCap *big.Int
	if err := d.client.CallCtx(ctx,
		eth.GasPrice().Returns(&gasPrice),
		eth.GasTipCap().Returns(&tipCap),
	); err != nil {
		return fmt.Errorf("suggest fees: %w", err)
	}
	if d.gasTipCap == nil {
		d.gasTipCap = tipCap
	}
	if d.gasFeeCap == nil {
		d.gasFeeCap = new(big.Int).Add(new(big.Int).Mul(gasPrice, big.NewInt(2)), d.gasTipCap)
	}
	return nil
}

func (d *Deployer) NonceAt(ctx context.Context) (uint64, error) {
	var nonce uint64
	if err := d.client.CallCtx(ctx, eth.Nonce(d.address, nil).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

func (d *Deployer) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := d.client.CallCtx(ctx, eth.Balance(addr, nil).Returns(&balance)); err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (d *Deployer) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	if err := d.client.CallCtx(ctx, eth.Code(addr, nil).Returns(&code)); err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}
	return code, nil
}

// CallFunc runs a read-only call of fn against contract and decodes into returns.
func (d *Deployer) CallFunc(ctx context.Context, contract common.Address, fn w3types.Func, args []any, returns ...any) error {
	if err := d.client.CallCtx(ctx, eth.CallFunc(contract, fn, args...).Returns(returns...)); err != nil {
		return fmt.Errorf("call %s: %w", contract.Hex(), err)
	}
	return nil
}

func (d *Deployer) estimateGas(ctx context.Context, to *common.Address, data []byte) (uint64, error) {
	var gas uint64
	msg := &w3types.Message{From: d.address, To: to, Input: data}
	if err := d.client.CallCtx(ctx, eth.EstimateGas(msg, nil).Returns(&gas)); err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas * gasHeadroomNum / gasHeadroomDen, nil
}

func (d *Deployer) sendTx(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	signedTx, err := d.signer.SignTx(tx, d.chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	var hash common.Hash
	if err := d.client.CallCtx(ctx, eth.SendTx(signedTx).Returns(&hash)); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signedTx.Hash(), nil
}

func (d *Deployer) newTx(ctx context.Context, to *common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	nonce, err := d.NonceAt(ctx)
	if err != nil {
		return nil, err
	}
	if gasLimit == 0 {
		if gasLimit, err = d.estimateGas(ctx, to, data); err != nil {
			return nil, err
		}
	}

	//  EIP-1559 only
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   d.chainID,
		Nonce:     nonce,
		To:        to,
		GasFeeCap: d.gasFeeCap,
		GasTipCap: d.gasTipCap,
		Gas:       gasLimit,
		Data:      data,
	}), nil
}

// DeployContract broadcasts a creation transaction. A gasLimit of 0 is estimated.
func (d *Deployer) DeployContract(ctx context.Context, initcode []byte, gasLimit uint64) (DeployResult, error) {
	if len(initcode) == 0 {
		return DeployResult{}, errors.New("empty initcode")
	}
	tx, err := d.newTx(ctx, nil, initcode, gasLimit)
	if err != nil {
		return DeployResult{}, err
	}

	contractAddr := PredictAddress(d.address, tx.Nonce())

	txHash, err := d.sendTx(ctx, tx)
	if err != nil {
		return DeployResult{}, err
	}
	d.log.Debug("Sent deployment", "tx", txHash, "nonce", tx.Nonce(), "gas", tx.Gas(), "address", contractAddr)

	return DeployResult{
		TxHash:          txHash,
		ContractAddress: contractAddr,
		Nonce:           tx.Nonce(),
	}, nil
}

func (d *Deployer) Transact(ctx context.Context, to common.Address, calldata []byte, gasLimit uint64) (common.Hash, error) {
	tx, err := d.newTx(ctx, &to, calldata, gasLimit)
	if err != nil {
		return common.Hash{}, err
	}
	txHash, err := d.sendTx(ctx, tx)
	if err != nil {
		return common.Hash{}, err
	}
	d.log.Debug("Sent transaction", "tx", txHash, "to", to, "nonce", tx.Nonce(), "gas", tx.Gas())
	return txHash, nil
}

func (d *Deployer) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := d.client.CallCtx(ctx, eth.TxReceipt(txHash).Returns(&receipt))
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
			d.log.Trace("Waiting for receipt", "tx", txHash)
		}
	}
}

// WaitMined waits for txHash and fails with ErrTxFailed unless the receipt reports success.
func (d *Deployer) WaitMined(ctx context.Context, txHash common.Hash, what string) (*types.Receipt, error) {
	receipt, err := d.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("wait %s: %w", what, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s: %w: %s", what, ErrTxFailed, receipt.TxHash.Hex())
	}
	return receipt, nil
}

func PredictAddress(sender common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(sender, nonce)
}

func MustHexDecode(hexStr string) []byte {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexStr), "0x"))
	if err != nil {
		panic(fmt.Sprintf("decode hex: %v", err))
	}
	return b
}
