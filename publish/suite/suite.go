// Package suite publishes the bounty board contracts: UserReputation, then BountyBoard pointing at
// it, then the setBountyBoard link back. Every step waits for a successful receipt before the next.
package suite

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/lmittmann/w3/w3types"

	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish"
	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish/artifact"
	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish/contracts/bountyboard"
	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish/contracts/userreputation"
	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish/record"
)

var (
	ErrLinkMismatch = errors.New("linked bounty board mismatch")
	ErrNoCode       = errors.New("address has no code")
)

// Chain is the part of *publish.Deployer the suite drives.
type Chain interface {
	Address() common.Address
	ChainID() *big.Int
	NonceAt(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	DeployContract(ctx context.Context, initcode []byte, gasLimit uint64) (publish.DeployResult, error)
	Transact(ctx context.Context, to common.Address, calldata []byte, gasLimit uint64) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash, what string) (*types.Receipt, error)
	CallFunc(ctx context.Context, contract common.Address, fn w3types.Func, args []any, returns ...any) error
}

var _ Chain = (*publish.Deployer)(nil)

type (
	Options struct {
		Reputation *artifact.Artifact
		Board      *artifact.Artifact
		// ExistingReputation is reused instead of deploying a new UserReputation.
		ExistingReputation common.Address
		SkipLink           bool
		VerifyLink         bool
		// EstimateGas asks the node for gas limits instead of the per-contract defaults.
		EstimateGas bool
		Logger      log.Logger
	}

	Step struct {
		Name     string `json:"name"`
		Address  string `json:"address,omitempty"`
		TxHash   string `json:"tx_hash,omitempty"`
		Block    uint64 `json:"block_number,omitempty"`
		GasUsed  uint64 `json:"gas_used,omitempty"`
		Reused   bool   `json:"reused,omitempty"`
		artifact string
	}

	Report struct {
		Deployer       string `json:"deployer"`
		ChainID        uint64 `json:"chain_id"`
		UserReputation string `json:"user_reputation,omitempty"`
		BountyBoard    string `json:"bounty_board,omitempty"`
		Linked         bool   `json:"linked"`
		Steps          []Step `json:"steps,omitempty"`
	}

	Prediction struct {
		Deployer       string `json:"deployer"`
		ChainID        uint64 `json:"chain_id"`
		Nonce          uint64 `json:"nonce"`
		UserReputation string `json:"user_reputation"`
		BountyBoard    string `json:"bounty_board"`
	}
)

func (o Options) logger() log.Logger {
	if o.Logger == nil {
		return log.Root()
	}
	return o.Logger
}

func (o Options) gas(def uint64) uint64 {
	if o.EstimateGas {
		return 0
	}
	return def
}

// LoadArtifacts finds both contracts under root and links any libraries.
func LoadArtifacts(root string, libs map[string]common.Address) (reputation, board *artifact.Artifact, err error) {
	if reputation, err = artifact.Find(root, userreputation.Name()); err != nil {
		return nil, nil, err
	}
	if board, err = artifact.Find(root, bountyboard.Name()); err != nil {
		return nil, nil, err
	}
	for _, a := range []*artifact.Artifact{reputation, board} {
		if err := a.Link(libs); err != nil {
			return nil, nil, err
		}
	}
	return reputation, board, nil
}

func newReport(c Chain) *Report {
	return &Report{
		Deployer: c.Address().Hex(),
		ChainID:  c.ChainID().Uint64(),
	}
}

// Publish runs the full flow and returns what it did. On error the report holds the steps that
// completed.
func Publish(ctx context.Context, c Chain, opts Options) (*Report, error) {
	lg := opts.logger()
	out := newReport(c)
	lg.Info("Deploying contracts with the account", "address", c.Address(), "chain_id", out.ChainID)

	repStep, err := ensureReputation(ctx, c, opts)
	if err != nil {
		return out, err
	}
	out.addStep(repStep)
	out.UserReputation = repStep.Address
	reputation := common.HexToAddress(repStep.Address)

	boardStep, err := deployBoard(ctx, c, opts, reputation)
	if err != nil {
		return out, err
	}
	out.addStep(boardStep)
	out.BountyBoard = boardStep.Address

	if opts.SkipLink {
		lg.Warn("Skipping link, UserReputation does not know the BountyBoard yet", "reputation", reputation)
		return out, nil
	}

	linkStep, err := link(ctx, c, opts, reputation, common.HexToAddress(boardStep.Address))
	if err != nil {
		return out, err
	}
	out.addStep(linkStep)
	out.Linked = true
	return out, nil
}

// PublishOne deploys a single contract. BountyBoard needs opts.ExistingReputation.
func PublishOne(ctx context.Context, c Chain, contract string, opts Options) (*Report, error) {
	out := newReport(c)
	switch strings.ToLower(strings.TrimSpace(contract)) {
	case "userreputation", "reputation":
		opts.ExistingReputation = common.Address{}
		step, err := ensureReputation(ctx, c, opts)
		if err != nil {
			return out, err
		}
		out.addStep(step)
		out.UserReputation = step.Address

	case "bountyboard", "board":
		if opts.ExistingReputation == (common.Address{}) {
			return out, errors.New("reputation-address is required for publish-one bountyboard")
		}
		if err := requireCode(ctx, c, opts.ExistingReputation, userreputation.Name()); err != nil {
			return out, err
		}
		step, err := deployBoard(ctx, c, opts, opts.ExistingReputation)
		if err != nil {
			return out, err
		}
		out.addStep(step)
		out.UserReputation = opts.ExistingReputation.Hex()
		out.BountyBoard = step.Address

	default:
		return out, fmt.Errorf("unsupported contract: %s", contract)
	}
	return out, nil
}

// Link points an already deployed UserReputation at board.
func Link(ctx context.Context, c Chain, reputation, board common.Address, opts Options) (*Report, error) {
	out := newReport(c)
	out.UserReputation = reputation.Hex()
	out.BountyBoard = board.Hex()
	for _, target := range []struct {
		addr common.Address
		name string
	}{{reputation, userreputation.Name()}, {board, bountyboard.Name()}} {
		if err := requireCode(ctx, c, target.addr, target.name); err != nil {
			return out, err
		}
	}

	step, err := link(ctx, c, opts, reputation, board)
	if err != nil {
		return out, err
	}
	out.addStep(step)
	out.Linked = true
	return out, nil
}

// Predict computes the addresses Publish would produce from the current nonce without sending
// anything.
func Predict(ctx context.Context, c Chain, opts Options) (*Prediction, error) {
	nonce, err := c.NonceAt(ctx)
	if err != nil {
		return nil, err
	}
	p := &Prediction{
		Deployer: c.Address().Hex(),
		ChainID:  c.ChainID().Uint64(),
		Nonce:    nonce,
	}
	boardNonce := nonce
	if opts.ExistingReputation != (common.Address{}) {
		p.UserReputation = opts.ExistingReputation.Hex()
	} else {
		p.UserReputation = publish.PredictAddress(c.Address(), nonce).Hex()
		boardNonce++
	}
	p.BountyBoard = publish.PredictAddress(c.Address(), boardNonce).Hex()
	return p, nil
}

func ensureReputation(ctx context.Context, c Chain, opts Options) (Step, error) {
	lg := opts.logger()
	if opts.ExistingReputation != (common.Address{}) {
		if err := requireCode(ctx, c, opts.ExistingReputation, userreputation.Name()); err != nil {
			return Step{}, err
		}
		lg.Info("Reusing UserReputation", "address", opts.ExistingReputation)
		return Step{Name: userreputation.Name(), Address: opts.ExistingReputation.Hex(), Reused: true}, nil
	}

	if opts.Reputation == nil {
		return Step{}, errors.New("UserReputation artifact is required")
	}
	if !opts.SkipLink && !userreputation.HasSetter(opts.Reputation.ABI) {
		return Step{}, fmt.Errorf("%s: abi has no setBountyBoard(address)", opts.Reputation.Path)
	}
	data, err := userreputation.DeployData(opts.Reputation)
	if err != nil {
		return Step{}, fmt.Errorf("encode %s: %w", userreputation.Name(), err)
	}
	step, err := deploy(ctx, c, userreputation.Name(), data, opts.gas(userreputation.MaxGasLimit()))
	if err != nil {
		return Step{}, err
	}
	step.artifact = opts.Reputation.Path
	lg.Info("UserReputation deployed", "address", step.Address, "tx", step.TxHash, "block", step.Block)
	return step, nil
}

func deployBoard(ctx context.Context, c Chain, opts Options, reputation common.Address) (Step, error) {
	if opts.Board == nil {
		return Step{}, errors.New("BountyBoard artifact is required")
	}
	data, err := bountyboard.DeployData(opts.Board, bountyboard.ConstructorArgs{Reputation: reputation})
	if err != nil {
		return Step{}, fmt.Errorf("encode %s: %w", bountyboard.Name(), err)
	}
	step, err := deploy(ctx, c, bountyboard.Name(), data, opts.gas(bountyboard.MaxGasLimit()))
	if err != nil {
		return Step{}, err
	}
	step.artifact = opts.Board.Path
	opts.logger().Info("BountyBoard deployed", "address", step.Address, "reputation", reputation,
		"tx", step.TxHash, "block", step.Block)
	return step, nil
}

func deploy(ctx context.Context, c Chain, name string, data []byte, gasLimit uint64) (Step, error) {
	result, err := c.DeployContract(ctx, data, gasLimit)
	if err != nil {
		return Step{}, fmt.Errorf("deploy %s: %w", name, err)
	}
	receipt, err := c.WaitMined(ctx, result.TxHash, name+" deployment")
	if err != nil {
		return Step{}, err
	}
	addr := result.ContractAddress
	if receipt.ContractAddress != (common.Address{}) && receipt.ContractAddress != addr {
		return Step{}, fmt.Errorf("%s deployed to %s, expected %s", name, receipt.ContractAddress.Hex(), addr.Hex())
	}
	return stepFromReceipt(name, addr, receipt), nil
}

func link(ctx context.Context, c Chain, opts Options, reputation, board common.Address) (Step, error) {
	lg := opts.logger()
	calldata, err := userreputation.EncodeSetBountyBoard(board)
	if err != nil {
		return Step{}, fmt.Errorf("encode setBountyBoard: %w", err)
	}
	txHash, err := c.Transact(ctx, reputation, calldata, opts.gas(userreputation.LinkGasLimit))
	if err != nil {
		return Step{}, fmt.Errorf("link %s: %w", userreputation.Name(), err)
	}
	receipt, err := c.WaitMined(ctx, txHash, "setBountyBoard")
	if err != nil {
		return Step{}, err
	}

	if opts.VerifyLink && (opts.Reputation == nil || userreputation.HasBountyBoardGetter(opts.Reputation.ABI)) {
		var linked common.Address
		if err := c.CallFunc(ctx, reputation, userreputation.FuncBountyBoard, nil, &linked); err != nil {
			return Step{}, fmt.Errorf("verify link: %w", err)
		}
		if linked != board {
			return Step{}, fmt.Errorf("%w: UserReputation %s reports %s, want %s", ErrLinkMismatch, reputation.Hex(), linked.Hex(), board.Hex())
		}
		lg.Debug("Verified link", "reputation", reputation, "board", linked)
	}
	lg.Info("UserReputation linked to BountyBoard", "reputation", reputation, "board", board, "tx", txHash)

	step := stepFromReceipt("setBountyBoard", common.Address{}, receipt)
	return step, nil
}

func requireCode(ctx context.Context, c Chain, addr common.Address, name string) error {
	code, err := c.CodeAt(ctx, addr)
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return fmt.Errorf("%s %s: %w", name, addr.Hex(), ErrNoCode)
	}
	return nil
}

func stepFromReceipt(name string, addr common.Address, receipt *types.Receipt) Step {
	s := Step{
		Name:    name,
		TxHash:  receipt.TxHash.Hex(),
		GasUsed: receipt.GasUsed,
	}
	if addr != (common.Address{}) {
		s.Address = addr.Hex()
	}
	if receipt.BlockNumber != nil {
		s.Block = receipt.BlockNumber.Uint64()
	}
	return s
}

func (r *Report) addStep(s Step) {
	r.Steps = append(r.Steps, s)
}

// Records converts deployed (not reused) contracts into deployment records.
func (r *Report) Records() []record.Record {
	var out []record.Record
	for _, s := range r.Steps {
		if s.Address == "" || s.Reused {
			continue
		}
		out = append(out, record.Record{
			Name:        s.Name,
			Address:     s.Address,
			TxHash:      s.TxHash,
			BlockNumber: s.Block,
			ChainID:     r.ChainID,
			Deployer:    r.Deployer,
			Artifact:    s.artifact,
		})
	}
	return out
}
