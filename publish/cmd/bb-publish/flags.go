package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

const (
	ChainCategory   = "1. CHAIN"
	SignerCategory  = "2. SIGNER"
	PublishCategory = "3. PUBLISH"
	LoggingCategory = "4. LOGGING AND OUTPUT"
)

var (
	RPCURLFlag = &cli.StringFlag{
		Name:     "rpc-url",
		Usage:    "JSON-RPC endpoint of the target chain",
		EnvVars:  []string{"RPC_URL"},
		Category: ChainCategory,
	}
	ChainIDFlag = &cli.Int64Flag{
		Name:     "chain-id",
		Usage:    "chain id; 0 asks the node",
		EnvVars:  []string{"CHAIN_ID"},
		Category: ChainCategory,
	}
	GasFeeCapFlag = &cli.Int64Flag{
		Name:     "gas-fee-cap",
		Usage:    "EIP-1559 fee cap in wei; 0 asks the node",
		EnvVars:  []string{"GAS_FEE_CAP"},
		Category: ChainCategory,
	}
	GasTipCapFlag = &cli.Int64Flag{
		Name:     "gas-tip-cap",
		Usage:    "EIP-1559 tip cap in wei; 0 asks the node",
		EnvVars:  []string{"GAS_TIP_CAP"},
		Category: ChainCategory,
	}
	TimeoutFlag = &cli.IntFlag{
		Name:     "timeout-seconds",
		Usage:    "overall deadline for the command",
		EnvVars:  []string{"TIMEOUT_SECONDS"},
		Value:    600,
		Category: ChainCategory,
	}
	PollIntervalFlag = &cli.DurationFlag{
		Name:     "poll-interval",
		Usage:    "interval between receipt lookups",
		EnvVars:  []string{"POLL_INTERVAL"},
		Value:    2 * time.Second,
		Category: ChainCategory,
	}

	PrivateKeyFlag = &cli.StringFlag{
		Name:     "private-key",
		Usage:    "deployer private key (hex)",
		EnvVars:  []string{"PRIVATE_KEY"},
		Category: SignerCategory,
	}
	KeystoreFlag = &cli.StringFlag{
		Name:     "keystore",
		Usage:    "deployer V3 keystore file, instead of --private-key",
		EnvVars:  []string{"KEYSTORE"},
		Category: SignerCategory,
	}
	KeystorePasswordFileFlag = &cli.StringFlag{
		Name:     "keystore-password-file",
		Usage:    "file holding the keystore password",
		EnvVars:  []string{"KEYSTORE_PASSWORD_FILE"},
		Category: SignerCategory,
	}
	PublicAddressFlag = &cli.StringFlag{
		Name:     "public-address",
		Usage:    "expected deployer address, checked against the key",
		EnvVars:  []string{"PUBLIC_ADDRESS"},
		Category: SignerCategory,
	}

	ArtifactsFlag = &cli.StringFlag{
		Name:     "artifacts",
		Usage:    "compiled artifacts directory (Hardhat artifacts/ or Foundry out/)",
		EnvVars:  []string{"ARTIFACTS_DIR"},
		Value:    "artifacts",
		Category: PublishCategory,
	}
	LibraryFlag = &cli.StringSliceFlag{
		Name:     "library",
		Usage:    "library address to link, as Name=0x... or source.sol:Name=0x...",
		EnvVars:  []string{"LIBRARIES"},
		Category: PublishCategory,
	}
	ReputationAddressFlag = &cli.StringFlag{
		Name:     "reputation-address",
		Usage:    "existing UserReputation to use instead of deploying one",
		EnvVars:  []string{"EXISTING_REPUTATION_ADDRESS"},
		Category: PublishCategory,
	}
	BountyBoardAddressFlag = &cli.StringFlag{
		Name:     "bounty-board-address",
		Usage:    "deployed BountyBoard",
		EnvVars:  []string{"EXISTING_BOUNTY_BOARD_ADDRESS"},
		Category: PublishCategory,
	}
	ContractFlag = &cli.StringFlag{
		Name:     "contract",
		Usage:    "contract to deploy: userreputation|bountyboard",
		EnvVars:  []string{"CONTRACT"},
		Category: PublishCategory,
	}
	SkipLinkFlag = &cli.BoolFlag{
		Name:     "skip-link",
		Usage:    "do not call setBountyBoard after deploying",
		Category: PublishCategory,
	}
	VerifyLinkFlag = &cli.BoolFlag{
		Name:     "verify-link",
		Usage:    "read bountyBoard() back after linking",
		Value:    true,
		Category: PublishCategory,
	}
	EstimateGasFlag = &cli.BoolFlag{
		Name:     "estimate-gas",
		Usage:    "estimate gas limits instead of the per-contract defaults",
		EnvVars:  []string{"ESTIMATE_GAS"},
		Category: PublishCategory,
	}
	DeploymentsFileFlag = &cli.StringFlag{
		Name:     "deployments-file",
		Usage:    "merge deployed addresses into this JSON file",
		EnvVars:  []string{"DEPLOYMENTS_FILE"},
		Category: PublishCategory,
	}

	OutputFlag = &cli.StringFlag{
		Name:     "output",
		Usage:    "result format: text|json",
		Value:    "text",
		Category: LoggingCategory,
	}
	LogLevelFlag = &cli.StringFlag{
		Name:     "log.level",
		Usage:    "trace|debug|info|warn|error|crit",
		EnvVars:  []string{"LOG_LEVEL"},
		Value:    "info",
		Category: LoggingCategory,
	}
	LogFormatFlag = &cli.StringFlag{
		Name:     "log.format",
		Usage:    "terminal|logfmt|json",
		EnvVars:  []string{"LOG_FORMAT"},
		Value:    "terminal",
		Category: LoggingCategory,
	}
	LogColorFlag = &cli.BoolFlag{
		Name:     "log.color",
		Usage:    "color terminal logs",
		EnvVars:  []string{"LOG_COLOR"},
		Category: LoggingCategory,
	}
)

var chainFlags = []cli.Flag{
	RPCURLFlag,
	ChainIDFlag,
	GasFeeCapFlag,
	GasTipCapFlag,
	TimeoutFlag,
	PollIntervalFlag,
	PrivateKeyFlag,
	KeystoreFlag,
	KeystorePasswordFileFlag,
	PublicAddressFlag,
	OutputFlag,
	LogLevelFlag,
	LogFormatFlag,
	LogColorFlag,
}

func withChainFlags(flags ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, chainFlags...), flags...)
}

var (
	PublishFlags = withChainFlags(ArtifactsFlag, LibraryFlag, ReputationAddressFlag, SkipLinkFlag,
		VerifyLinkFlag, EstimateGasFlag, DeploymentsFileFlag)
	PublishOneFlags = withChainFlags(ContractFlag, ArtifactsFlag, LibraryFlag, ReputationAddressFlag,
		EstimateGasFlag, DeploymentsFileFlag)
	LinkFlags    = withChainFlags(ReputationAddressFlag, BountyBoardAddressFlag, VerifyLinkFlag, EstimateGasFlag)
	PredictFlags = withChainFlags(ReputationAddressFlag)
)
