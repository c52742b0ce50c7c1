package bountyboard

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish/artifact"
)

const (
	name         = "BountyBoard"
	ImplGasLimit = 4_000_000
)

var constructorArgs = abi.Arguments{{Name: "reputation", Type: mustType("address")}}

type ConstructorArgs struct {
	Reputation common.Address
}

func Name() string        { return name }
func MaxGasLimit() uint64 { return ImplGasLimit }

func EncodeConstructor(args ConstructorArgs) ([]byte, error) {
	if args.Reputation == (common.Address{}) {
		return nil, errors.New("bountyboard: reputation address is zero")
	}
	return constructorArgs.Pack(args.Reputation)
}

// DeployData builds the creation payload from a compiled artifact after checking that its
// constructor takes the reputation contract address.
func DeployData(a *artifact.Artifact, args ConstructorArgs) ([]byte, error) {
	inputs := a.ABI.Constructor.Inputs
	if len(inputs) != 1 || inputs[0].Type.T != abi.AddressTy {
		return nil, fmt.Errorf("bountyboard: artifact %s constructor is not (address)", a.ContractName)
	}
	code, err := a.Bytecode()
	if err != nil {
		return nil, err
	}
	encoded, err := EncodeConstructor(args)
	if err != nil {
		return nil, err
	}
	return append(code, encoded...), nil
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
