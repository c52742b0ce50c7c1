package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/internal/chaintest"
	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish"
	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish/record"
	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish/suite"
)

const (
	testKeyHex  = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

type harness struct {
	chain     *chaintest.Chain
	url       string
	artifacts string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	chain := chaintest.New()
	// bountyBoard() answers with the argument of the last setBountyBoard call
	chain.OnCall = func(args chaintest.CallArgs) ([]byte, error) {
		out := make([]byte, 32)
		for _, s := range chain.Sent() {
			if s.Tx.To() != nil && args.To != nil && *s.Tx.To() == *args.To && len(s.Tx.Data()) == 36 {
				out = s.Tx.Data()[4:]
			}
		}
		return out, nil
	}
	return &harness{
		chain:     chain,
		url:       chain.URL(t),
		artifacts: chaintest.WriteArtifacts(t),
	}
}

func (h *harness) run(t *testing.T, cmd string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"bb-publish", cmd,
		"--rpc-url", h.url,
		"--private-key", testKeyHex,
		"--poll-interval", "5ms",
		"--log.level", "error",
	}, args...)
	err := newApp(&stdout, &stderr).RunContext(context.Background(), full)
	return stdout.String(), stderr.String(), err
}

func TestPublishCommand(t *testing.T) {
	h := newHarness(t)
	deployments := filepath.Join(t.TempDir(), "deployments.json")

	out, _, err := h.run(t, "publish", "--artifacts", h.artifacts, "--deployments-file", deployments)
	require.NoError(t, err)

	deployer := common.HexToAddress(testAddress)
	reputation := publish.PredictAddress(deployer, 0).Hex()
	board := publish.PredictAddress(deployer, 1).Hex()
	require.Equal(t, strings.Join([]string{
		"Deploying contracts with the account: " + deployer.Hex(),
		"UserReputation deployed to: " + reputation,
		"BountyBoard deployed to: " + board,
		"UserReputation linked to BountyBoard successfully!",
		"REPUTATION_ADDRESS: " + reputation,
		"CONTRACT_ADDRESS " + board,
	}, "\n")+"\n", out)
	require.Len(t, h.chain.Sent(), 3)

	records, err := record.Load(deployments)
	require.NoError(t, err)
	require.Len(t, records, 2)
	r, ok := record.Find(records, chaintest.DefaultChainID, "BountyBoard")
	require.True(t, ok)
	require.Equal(t, board, r.Address)
	require.Equal(t, deployer.Hex(), r.Deployer)
}

func TestPublishCommandIgnoresPrintedAddressVars(t *testing.T) {
	h := newHarness(t)
	// left over from a previous run's output
	t.Setenv("REPUTATION_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("CONTRACT_ADDRESS", "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")

	out, _, err := h.run(t, "publish", "--artifacts", h.artifacts)
	require.NoError(t, err)
	reputation := publish.PredictAddress(common.HexToAddress(testAddress), 0).Hex()
	require.Contains(t, out, "UserReputation deployed to: "+reputation)
	require.Len(t, h.chain.Sent(), 3)
	require.Nil(t, h.chain.Sent()[0].Tx.To())
}

func TestPublishCommandJSON(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "publish", "--artifacts", h.artifacts, "--output", "json", "--estimate-gas")
	require.NoError(t, err)

	var report suite.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.True(t, report.Linked)
	require.Equal(t, uint64(chaintest.DefaultChainID), report.ChainID)
	require.Len(t, report.Steps, 3)
}

func TestPublishCommandFailureExitsNonZero(t *testing.T) {
	h := newHarness(t)
	h.chain.OnCall = nil // bountyBoard() reverts

	out, _, err := h.run(t, "publish", "--artifacts", h.artifacts)
	require.Error(t, err)
	require.False(t, errors.Is(err, errUsage))
	require.Contains(t, out, "BountyBoard deployed to:")
	require.NotContains(t, out, "linked to BountyBoard successfully")
}

func TestPublishCommandChecksPublicAddress(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "publish", "--artifacts", h.artifacts,
		"--public-address", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	require.ErrorIs(t, err, publish.ErrAddressMismatch)
	require.Empty(t, h.chain.Sent())
}

func TestPublishOneAndLinkCommands(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run(t, "publish-one", "--artifacts", h.artifacts)
	require.ErrorIs(t, err, errUsage)

	out, _, err := h.run(t, "publish-one", "--artifacts", h.artifacts, "--contract", "userreputation", "--output", "json")
	require.NoError(t, err)
	var rep suite.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))

	out, _, err = h.run(t, "publish-one", "--artifacts", h.artifacts, "--contract", "bountyboard",
		"--reputation-address", rep.UserReputation, "--output", "json")
	require.NoError(t, err)
	var board suite.Report
	require.NoError(t, json.Unmarshal([]byte(out), &board))
	require.Equal(t, rep.UserReputation, board.UserReputation)

	out, _, err = h.run(t, "link", "--reputation-address", rep.UserReputation, "--bounty-board-address", board.BountyBoard)
	require.NoError(t, err)
	require.Contains(t, out, "UserReputation linked to BountyBoard successfully!")
	require.Contains(t, out, "CONTRACT_ADDRESS "+board.BountyBoard)
	require.Len(t, h.chain.Sent(), 3)
}

func TestPredictCommand(t *testing.T) {
	h := newHarness(t)
	h.chain.SetNonce(common.HexToAddress(testAddress), 4)

	out, _, err := h.run(t, "predict")
	require.NoError(t, err)
	require.Contains(t, out, "REPUTATION_ADDRESS: "+publish.PredictAddress(common.HexToAddress(testAddress), 4).Hex())
	require.Contains(t, out, "CONTRACT_ADDRESS "+publish.PredictAddress(common.HexToAddress(testAddress), 5).Hex())
	require.Empty(t, h.chain.Sent())
}

func TestUsageErrors(t *testing.T) {
	for name, args := range map[string][]string{
		"no command":     {"bb-publish"},
		"no rpc":         {"bb-publish", "publish", "--private-key", testKeyHex},
		"no key":         {"bb-publish", "publish", "--rpc-url", "http://localhost:8545"},
		"two keys":       {"bb-publish", "publish", "--rpc-url", "http://localhost:8545", "--private-key", testKeyHex, "--keystore", "k.json"},
		"bad output":     {"bb-publish", "publish", "--rpc-url", "http://localhost:8545", "--private-key", testKeyHex, "--output", "yaml"},
		"bad log level":  {"bb-publish", "predict", "--rpc-url", "http://localhost:8545", "--private-key", testKeyHex, "--log.level", "loud"},
		"unknown flag":   {"bb-publish", "publish", "--no-such-flag"},
		"zero timeout":   {"bb-publish", "predict", "--rpc-url", "http://localhost:8545", "--private-key", testKeyHex, "--timeout-seconds", "0"},
		"bad log format": {"bb-publish", "predict", "--rpc-url", "http://localhost:8545", "--private-key", testKeyHex, "--log.format", "xml"},
	} {
		var stdout, stderr bytes.Buffer
		err := newApp(&stdout, &stderr).RunContext(context.Background(), args)
		require.ErrorIs(t, err, errUsage, name)
	}
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).RunContext(context.Background(), []string{"bb-publish", "publsh"})
	require.ErrorIs(t, err, errUsage)
	require.ErrorContains(t, err, `unknown command "publsh"`)
}

func TestParseLibraries(t *testing.T) {
	libs, err := parseLibraries([]string{
		"Math=0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"contracts/lib/Strings.sol:Strings=0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512, Other=0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0",
	})
	require.NoError(t, err)
	require.Len(t, libs, 3)
	require.Equal(t, common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"), libs["contracts/lib/Strings.sol:Strings"])

	_, err = parseLibraries([]string{"Math"})
	require.ErrorIs(t, err, errUsage)
	_, err = parseLibraries([]string{"Math=0x12"})
	require.ErrorContains(t, err, "invalid address")
}

func TestSplitCSV(t *testing.T) {
	require.Nil(t, splitCSV("  "))
	require.Equal(t, []string{"a", "b"}, splitCSV(" a, ,b ,"))
}
