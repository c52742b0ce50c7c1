package chaintest

import (
	"os"
	"path/filepath"
	"testing"
)

// Creation code that only runs the constructor prologue; the chain never executes it.
const (
	ReputationBytecode = "0x6080604052348015600e575f5ffd5b50603e80601a5f395ff3fe60806040525f5ffdfea164736f6c634300081c000a"
	BoardBytecode      = "0x6080604052348015600e575f5ffd5b50604051601c38038060601c5f395f5ffdfe"
)

const reputationArtifact = `{
  "_format": "hh-sol-artifact-1",
  "contractName": "UserReputation",
  "sourceName": "contracts/UserReputation.sol",
  "abi": [
    {"inputs": [], "stateMutability": "nonpayable", "type": "constructor"},
    {"inputs": [], "name": "bountyBoard", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
    {"inputs": [{"internalType": "address", "name": "_bountyBoard", "type": "address"}], "name": "setBountyBoard", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
    {"inputs": [{"internalType": "address", "name": "user", "type": "address"}], "name": "getReputation", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
  ],
  "bytecode": "` + ReputationBytecode + `",
  "deployedBytecode": "0x60806040525f5ffdfe",
  "linkReferences": {},
  "deployedLinkReferences": {}
}`

const boardArtifact = `{
  "_format": "hh-sol-artifact-1",
  "contractName": "BountyBoard",
  "sourceName": "contracts/BountyBoard.sol",
  "abi": [
    {"inputs": [{"internalType": "address", "name": "_reputationAddress", "type": "address"}], "stateMutability": "nonpayable", "type": "constructor"},
    {"inputs": [{"internalType": "string", "name": "description", "type": "string"}], "name": "createTask", "outputs": [], "stateMutability": "payable", "type": "function"}
  ],
  "bytecode": "` + BoardBytecode + `",
  "deployedBytecode": "0x60806040525f5ffdfe",
  "linkReferences": {},
  "deployedLinkReferences": {}
}`

// WriteArtifacts lays out Hardhat artifacts for both contracts in a temp dir and returns its root.
func WriteArtifacts(t testing.TB) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range map[string]string{
		"contracts/UserReputation.sol/UserReputation.json":     reputationArtifact,
		"contracts/UserReputation.sol/UserReputation.dbg.json": `{"_format": "hh-sol-dbg-1", "buildInfo": "../../build-info/x.json"}`,
		"contracts/BountyBoard.sol/BountyBoard.json":           boardArtifact,
		"build-info/x.json":                                    `{}`,
	} {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}
