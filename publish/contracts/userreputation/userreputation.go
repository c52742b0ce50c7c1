package userreputation

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish/artifact"
)

const (
	name         = "UserReputation"
	ImplGasLimit = 1_500_000
	LinkGasLimit = 100_000
)

var (
	funcSetBountyBoard = w3.MustNewFunc(
		"setBountyBoard(address)", "",
	)
	// FuncBountyBoard reads the linked board back.
	FuncBountyBoard = w3.MustNewFunc(
		"bountyBoard()", "address",
	)
)

func Name() string        { return name }
func MaxGasLimit() uint64 { return ImplGasLimit }

// DeployData returns the creation payload; the constructor takes no arguments.
func DeployData(a *artifact.Artifact) ([]byte, error) {
	return a.DeployData()
}

func EncodeSetBountyBoard(board common.Address) ([]byte, error) {
	return funcSetBountyBoard.EncodeArgs(board)
}

// HasSetter reports whether the compiled ABI exposes setBountyBoard(address).
func HasSetter(contractABI abi.ABI) bool {
	m, ok := contractABI.Methods["setBountyBoard"]
	return ok && len(m.Inputs) == 1 && m.Inputs[0].Type.T == abi.AddressTy
}

// HasBountyBoardGetter reports whether bountyBoard() can be used to verify the link.
func HasBountyBoardGetter(contractABI abi.ABI) bool {
	m, ok := contractABI.Methods["bountyBoard"]
	return ok && len(m.Inputs) == 0 && len(m.Outputs) == 1 && m.Outputs[0].Type.T == abi.AddressTy
}
