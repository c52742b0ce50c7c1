package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish"
)

var errUsage = errors.New("usage")

type config struct {
	RPCURL               string
	ChainID              int64
	GasFeeCap            int64
	GasTipCap            int64
	Timeout              time.Duration
	PollInterval         time.Duration
	PrivateKey           string
	Keystore             string
	KeystorePasswordFile string
	PublicAddress        string
	Output               string

	LogLevel  string
	LogFormat string
	LogColor  bool
}

func parseConfig(c *cli.Context) (config, error) {
	cfg := config{
		RPCURL:               strings.TrimSpace(c.String(RPCURLFlag.Name)),
		ChainID:              c.Int64(ChainIDFlag.Name),
		GasFeeCap:            c.Int64(GasFeeCapFlag.Name),
		GasTipCap:            c.Int64(GasTipCapFlag.Name),
		Timeout:              time.Duration(c.Int(TimeoutFlag.Name)) * time.Second,
		PollInterval:         c.Duration(PollIntervalFlag.Name),
		PrivateKey:           c.String(PrivateKeyFlag.Name),
		Keystore:             c.String(KeystoreFlag.Name),
		KeystorePasswordFile: c.String(KeystorePasswordFileFlag.Name),
		PublicAddress:        c.String(PublicAddressFlag.Name),
		Output:               strings.ToLower(c.String(OutputFlag.Name)),
		LogLevel:             c.String(LogLevelFlag.Name),
		LogFormat:            c.String(LogFormatFlag.Name),
		LogColor:             c.Bool(LogColorFlag.Name),
	}
	return cfg, cfg.Check()
}

func (cfg config) Check() error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("%w: rpc-url is required", errUsage)
	}
	if (cfg.PrivateKey == "") == (cfg.Keystore == "") {
		return fmt.Errorf("%w: exactly one of private-key and keystore is required", errUsage)
	}
	if cfg.ChainID < 0 || cfg.GasFeeCap < 0 || cfg.GasTipCap < 0 {
		return fmt.Errorf("%w: chain-id and gas caps must not be negative", errUsage)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("%w: timeout-seconds must be positive", errUsage)
	}
	if cfg.Output != "text" && cfg.Output != "json" {
		return fmt.Errorf("%w: output must be text|json", errUsage)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch cfg.LogFormat {
	case "terminal", "logfmt", "json":
	default:
		return fmt.Errorf("%w: log.format must be terminal|logfmt|json", errUsage)
	}
	return nil
}

func (cfg config) signer() (publish.Signer, error) {
	if cfg.Keystore != "" {
		key, err := publish.LoadKeystore(cfg.Keystore, cfg.KeystorePasswordFile)
		if err != nil {
			return nil, err
		}
		return publish.NewKeySigner(key), nil
	}
	key, err := publish.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return publish.NewKeySigner(key), nil
}

func (cfg config) deployerOptions(s publish.Signer, lg log.Logger) publish.Options {
	opts := publish.Options{
		ChainID:      cfg.ChainID,
		Signer:       s,
		PollInterval: cfg.PollInterval,
		Logger:       lg,
	}
	if cfg.GasFeeCap > 0 {
		opts.GasFeeCap = big.NewInt(cfg.GasFeeCap)
	}
	if cfg.GasTipCap > 0 {
		opts.GasTipCap = big.NewInt(cfg.GasTipCap)
	}
	return opts
}

func parseLevel(v string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info", "":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	}
	return 0, fmt.Errorf("%w: unknown log.level %q", errUsage, v)
}

func parseAddress(v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid address: %s", v)
	}
	return common.HexToAddress(v), nil
}

// parseOptionalAddress treats an empty value as the zero address.
func parseOptionalAddress(v string) (common.Address, error) {
	if strings.TrimSpace(v) == "" {
		return common.Address{}, nil
	}
	return parseAddress(strings.TrimSpace(v))
}

// parseLibraries reads Name=0x... pairs.
func parseLibraries(values []string) (map[string]common.Address, error) {
	libs := make(map[string]common.Address, len(values))
	for _, v := range values {
		for _, part := range splitCSV(v) {
			name, addr, ok := strings.Cut(part, "=")
			name = strings.TrimSpace(name)
			if !ok || name == "" {
				return nil, fmt.Errorf("%w: library %q is not Name=0x...", errUsage, part)
			}
			a, err := parseAddress(strings.TrimSpace(addr))
			if err != nil {
				return nil, fmt.Errorf("library %s: %w", name, err)
			}
			libs[name] = a
		}
	}
	return libs, nil
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
