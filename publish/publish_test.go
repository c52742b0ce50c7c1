package publish

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/internal/chaintest"
)

// first Hardhat development account
const (
	testKeyHex  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func newTestDeployer(t *testing.T, chain *chaintest.Chain, opts Options) *Deployer {
	t.Helper()
	if opts.Signer == nil {
		key, err := ParsePrivateKey(testKeyHex)
		require.NoError(t, err)
		opts.Signer = NewKeySigner(key)
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	opts.Logger = log.NewLogger(log.DiscardHandler())
	d, err := NewDeployerWithClient(context.Background(), chain.Client(t), opts)
	require.NoError(t, err)
	return d
}

func TestNewDeployerAsksNode(t *testing.T) {
	chain := chaintest.New()
	d := newTestDeployer(t, chain, Options{})

	require.Equal(t, common.HexToAddress(testAddress), d.Address())
	require.Equal(t, int64(chaintest.DefaultChainID), d.ChainID().Int64())
	require.Equal(t, big.NewInt(chaintest.DefaultTipCap), d.gasTipCap)
	require.Equal(t, big.NewInt(2*chaintest.DefaultGasPrice+chaintest.DefaultTipCap), d.gasFeeCap)
}

func TestNewDeployerKeepsExplicitFees(t *testing.T) {
	chain := chaintest.New()
	d := newTestDeployer(t, chain, Options{
		ChainID:   chaintest.DefaultChainID,
		GasFeeCap: big.NewInt(2_000_000_000),
		GasTipCap: big.NewInt(1_000_000_000),
	})
	require.Equal(t, big.NewInt(2_000_000_000), d.gasFeeCap)
	require.Equal(t, big.NewInt(1_000_000_000), d.gasTipCap)
}

func TestNewDeployerRejectsTipAboveCap(t *testing.T) {
	chain := chaintest.New()
	key, err := ParsePrivateKey(testKeyHex)
	require.NoError(t, err)

	_, err = NewDeployerWithClient(context.Background(), chain.Client(t), Options{
		Signer:    NewKeySigner(key),
		GasFeeCap: big.NewInt(1),
		Logger:    log.NewLogger(log.DiscardHandler()),
	})
	require.ErrorContains(t, err, "below tip cap")

	_, err = NewDeployerWithClient(context.Background(), chain.Client(t), Options{
		ChainID:   chaintest.DefaultChainID,
		Signer:    NewKeySigner(key),
		GasFeeCap: big.NewInt(1),
		GasTipCap: big.NewInt(5),
		Logger:    log.NewLogger(log.DiscardHandler()),
	})
	require.ErrorContains(t, err, "gas fee cap 1 below tip cap 5")
}

func TestNewDeployerRequiresSigner(t *testing.T) {
	chain := chaintest.New()
	_, err := NewDeployerWithClient(context.Background(), chain.Client(t), Options{})
	require.Error(t, err)
}

func TestDeployContract(t *testing.T) {
	chain := chaintest.New()
	d := newTestDeployer(t, chain, Options{})
	ctx := context.Background()
	code := MustHexDecode(chaintest.ReputationBytecode)

	first, err := d.DeployContract(ctx, code, 1_500_000)
	require.NoError(t, err)
	require.Equal(t, uint64(0), first.Nonce)
	require.Equal(t, crypto.CreateAddress(d.Address(), 0), first.ContractAddress)

	receipt, err := d.WaitMined(ctx, first.TxHash, "first")
	require.NoError(t, err)
	require.Equal(t, first.ContractAddress, receipt.ContractAddress)

	second, err := d.DeployContract(ctx, code, 1_500_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1), second.Nonce)
	require.NotEqual(t, first.ContractAddress, second.ContractAddress)

	sent := chain.Sent()
	require.Len(t, sent, 2)
	tx := sent[0].Tx
	require.Nil(t, tx.To())
	require.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	require.Equal(t, uint64(1_500_000), tx.Gas())
	require.Equal(t, code, tx.Data())
	require.Equal(t, d.Address(), sent[0].From)

	onChain, err := d.CodeAt(ctx, first.ContractAddress)
	require.NoError(t, err)
	require.NotEmpty(t, onChain)
}

func TestDeployContractEstimatesGas(t *testing.T) {
	chain := chaintest.New()
	d := newTestDeployer(t, chain, Options{})

	_, err := d.DeployContract(context.Background(), MustHexDecode(chaintest.BoardBytecode), 0)
	require.NoError(t, err)

	sent := chain.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, uint64(chaintest.EstimatedGas*6/5), sent[0].Tx.Gas())
}

func TestDeployContractRejectsEmptyInitcode(t *testing.T) {
	chain := chaintest.New()
	d := newTestDeployer(t, chain, Options{})

	_, err := d.DeployContract(context.Background(), nil, 100_000)
	require.Error(t, err)
	require.Empty(t, chain.Sent())
}

func TestTransact(t *testing.T) {
	chain := chaintest.New()
	d := newTestDeployer(t, chain, Options{})
	ctx := context.Background()
	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	hash, err := d.Transact(ctx, to, []byte{0xde, 0xad}, 100_000)
	require.NoError(t, err)
	_, err = d.WaitMined(ctx, hash, "call")
	require.NoError(t, err)

	sent := chain.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, &to, sent[0].Tx.To())
	require.Equal(t, []byte{0xde, 0xad}, sent[0].Tx.Data())
	require.Equal(t, hash, sent[0].Tx.Hash())
}

func TestWaitMinedReverted(t *testing.T) {
	chain := chaintest.New()
	chain.Revert = func(*types.Transaction) bool { return true }
	d := newTestDeployer(t, chain, Options{})
	ctx := context.Background()

	res, err := d.DeployContract(ctx, MustHexDecode(chaintest.ReputationBytecode), 1_000_000)
	require.NoError(t, err)

	receipt, err := d.WaitMined(ctx, res.TxHash, "UserReputation deployment")
	require.ErrorIs(t, err, ErrTxFailed)
	require.NotNil(t, receipt)
	require.Equal(t, types.ReceiptStatusFailed, receipt.Status)
}

func TestWaitForReceiptPolls(t *testing.T) {
	chain := chaintest.New()
	chain.ReceiptDelay = 3
	d := newTestDeployer(t, chain, Options{})
	ctx := context.Background()

	hash, err := d.Transact(ctx, common.Address{1}, nil, 21_000)
	require.NoError(t, err)

	receipt, err := d.WaitForReceipt(ctx, hash)
	require.NoError(t, err)
	require.Equal(t, hash, receipt.TxHash)
}

func TestWaitForReceiptHonoursContext(t *testing.T) {
	chain := chaintest.New()
	d := newTestDeployer(t, chain, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := d.WaitForReceipt(ctx, common.Hash{0xab})
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestBalanceAt(t *testing.T) {
	chain := chaintest.New()
	chain.SetBalance(common.HexToAddress(testAddress), big.NewInt(42))
	d := newTestDeployer(t, chain, Options{})

	bal, err := d.BalanceAt(context.Background(), d.Address())
	require.NoError(t, err)
	require.Equal(t, int64(42), bal.Int64())
}

func TestNonceAtFollowsChain(t *testing.T) {
	chain := chaintest.New()
	chain.SetNonce(common.HexToAddress(testAddress), 7)
	d := newTestDeployer(t, chain, Options{})

	nonce, err := d.NonceAt(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(7), nonce)

	res, err := d.DeployContract(context.Background(), []byte{0x00}, 53_000)
	require.NoError(t, err)
	require.Equal(t, PredictAddress(d.Address(), 7), res.ContractAddress)
}

func TestMustHexDecode(t *testing.T) {
	require.Equal(t, []byte{0x60, 0x80}, MustHexDecode("0x6080"))
	require.Equal(t, []byte{0x60, 0x80}, MustHexDecode(" 6080\n"))
	require.Panics(t, func() { MustHexDecode("0xzz") })
}
