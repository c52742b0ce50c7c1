package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish"
	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish/record"
	"github.com/MihaiCosmin2/Blockchain-Task-Bounty-Board/publish/suite"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args)
	stop()
	if err != nil {
		exitErr(err)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "bb-publish"
	app.Usage = "deploys and links the bounty board contracts"
	app.Version = Version
	if GitCommit != "" {
		app.Version += "-" + GitCommit
	}
	app.Writer = stdout
	app.ErrWriter = stderr
	// errors are reported by main
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.OnUsageError = usageError
	app.Action = func(c *cli.Context) error {
		_ = cli.ShowAppHelp(c)
		if c.NArg() > 0 {
			return fmt.Errorf("%w: unknown command %q", errUsage, c.Args().First())
		}
		return fmt.Errorf("%w: a command is required", errUsage)
	}
	app.Commands = []*cli.Command{
		{
			Name:         "publish",
			Usage:        "deploys UserReputation and BountyBoard, then links them",
			Flags:        PublishFlags,
			Action:       publishAction,
			OnUsageError: usageError,
		},
		{
			Name:         "publish-one",
			Usage:        "deploys a single contract",
			Flags:        PublishOneFlags,
			Action:       publishOneAction,
			OnUsageError: usageError,
		},
		{
			Name:         "link",
			Usage:        "calls setBountyBoard on an existing UserReputation",
			Flags:        LinkFlags,
			Action:       linkAction,
			OnUsageError: usageError,
		},
		{
			Name:         "predict",
			Usage:        "prints the addresses publish would deploy to without sending anything",
			Flags:        PredictFlags,
			Action:       predictAction,
			OnUsageError: usageError,
		},
	}
	return app
}

func usageError(_ *cli.Context, err error, _ bool) error {
	return fmt.Errorf("%w: %v", errUsage, err)
}

// session is what every command needs: validated config, logger, deployer and a deadline.
type session struct {
	cfg    config
	log    log.Logger
	d      *publish.Deployer
	ctx    context.Context
	cancel context.CancelFunc
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := parseConfig(c)
	if err != nil {
		return nil, err
	}
	lg, err := newLogger(c.App.ErrWriter, cfg)
	if err != nil {
		return nil, err
	}
	log.SetDefault(lg)

	s, err := cfg.signer()
	if err != nil {
		return nil, err
	}
	if err := publish.CheckAddress(s, cfg.PublicAddress); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(c.Context, cfg.Timeout)
	d, err := publish.NewDeployer(ctx, cfg.RPCURL, cfg.deployerOptions(s, lg))
	if err != nil {
		cancel()
		return nil, err
	}
	return &session{cfg: cfg, log: lg, d: d, ctx: ctx, cancel: cancel}, nil
}

func (s *session) Close() {
	s.cancel()
	if err := s.d.Close(); err != nil {
		s.log.Debug("Closing rpc client", "err", err)
	}
}

func (s *session) warnIfUnfunded() {
	bal, err := s.d.BalanceAt(s.ctx, s.d.Address())
	if err != nil {
		s.log.Warn("Could not read deployer balance", "err", err)
		return
	}
	if bal.Sign() == 0 {
		s.log.Warn("Deployer has no funds", "address", s.d.Address())
	}
}

func suiteOptions(c *cli.Context, lg log.Logger, withArtifacts bool) (suite.Options, error) {
	opts := suite.Options{
		SkipLink:    c.Bool(SkipLinkFlag.Name),
		VerifyLink:  c.Bool(VerifyLinkFlag.Name),
		EstimateGas: c.Bool(EstimateGasFlag.Name),
		Logger:      lg,
	}
	existing, err := parseOptionalAddress(c.String(ReputationAddressFlag.Name))
	if err != nil {
		return opts, fmt.Errorf("reputation-address: %w", err)
	}
	opts.ExistingReputation = existing

	if withArtifacts {
		libs, err := parseLibraries(c.StringSlice(LibraryFlag.Name))
		if err != nil {
			return opts, err
		}
		opts.Reputation, opts.Board, err = suite.LoadArtifacts(c.String(ArtifactsFlag.Name), libs)
		if err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func publishAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	opts, err := suiteOptions(c, s.log, true)
	if err != nil {
		return err
	}
	if s.cfg.Output == "text" {
		fmt.Fprintln(c.App.Writer, "Deploying contracts with the account:", s.d.Address().Hex())
	}
	s.warnIfUnfunded()

	report, err := suite.Publish(s.ctx, s.d, opts)
	return finish(c, s, report, err)
}

func publishOneAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	contract := c.String(ContractFlag.Name)
	if contract == "" {
		return fmt.Errorf("%w: --contract is required for publish-one", errUsage)
	}
	opts, err := suiteOptions(c, s.log, true)
	if err != nil {
		return err
	}
	s.warnIfUnfunded()

	report, err := suite.PublishOne(s.ctx, s.d, contract, opts)
	return finish(c, s, report, err)
}

func linkAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	reputation, err := parseAddress(c.String(ReputationAddressFlag.Name))
	if err != nil {
		return fmt.Errorf("%w: reputation-address: %v", errUsage, err)
	}
	board, err := parseAddress(c.String(BountyBoardAddressFlag.Name))
	if err != nil {
		return fmt.Errorf("%w: bounty-board-address: %v", errUsage, err)
	}
	opts, err := suiteOptions(c, s.log, false)
	if err != nil {
		return err
	}

	report, err := suite.Link(s.ctx, s.d, reputation, board, opts)
	return finish(c, s, report, err)
}

func predictAction(c *cli.Context) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	defer s.Close()

	opts, err := suiteOptions(c, s.log, false)
	if err != nil {
		return err
	}
	p, err := suite.Predict(s.ctx, s.d, opts)
	if err != nil {
		return err
	}
	if s.cfg.Output == "json" {
		return writeJSON(c.App.Writer, p)
	}
	fmt.Fprintln(c.App.Writer, "Deployer:", p.Deployer, "nonce", p.Nonce)
	fmt.Fprintln(c.App.Writer, "REPUTATION_ADDRESS:", p.UserReputation)
	fmt.Fprintln(c.App.Writer, "CONTRACT_ADDRESS", p.BountyBoard)
	return nil
}

// finish prints what was done and saves deployment records, also when err is set.
func finish(c *cli.Context, s *session, report *suite.Report, err error) error {
	if report != nil {
		if path := c.String(DeploymentsFileFlag.Name); path != "" {
			if records := report.Records(); len(records) > 0 {
				if saveErr := record.Save(path, records...); saveErr != nil {
					s.log.Error("Saving deployment records", "path", path, "err", saveErr)
				} else {
					s.log.Info("Saved deployment records", "path", path, "count", len(records))
				}
			}
		}
		if s.cfg.Output == "json" {
			if err == nil {
				return writeJSON(c.App.Writer, report)
			}
		} else {
			printReport(c.App.Writer, report)
		}
	}
	return err
}

func printReport(w io.Writer, r *suite.Report) {
	for _, step := range r.Steps {
		switch {
		case step.Address == "":
		case step.Reused:
			fmt.Fprintf(w, "%s reused at: %s\n", step.Name, step.Address)
		default:
			fmt.Fprintf(w, "%s deployed to: %s\n", step.Name, step.Address)
		}
	}
	if r.Linked {
		fmt.Fprintln(w, "UserReputation linked to BountyBoard successfully!")
	}
	if r.UserReputation != "" && r.BountyBoard != "" {
		fmt.Fprintln(w, "REPUTATION_ADDRESS:", r.UserReputation)
		fmt.Fprintln(w, "CONTRACT_ADDRESS", r.BountyBoard)
	}
}

func writeJSON(w io.Writer, v any) error {
	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(blob))
	return err
}

func newLogger(w io.Writer, cfg config) (log.Logger, error) {
	lvl, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	var h slog.Handler
	switch cfg.LogFormat {
	case "json":
		h = log.JSONHandler(w)
	case "logfmt":
		h = log.LogfmtHandler(w)
	default:
		return log.NewLogger(log.NewTerminalHandlerWithLevel(w, lvl, cfg.LogColor)), nil
	}
	glog := log.NewGlogHandler(h)
	glog.Verbosity(lvl)
	return log.NewLogger(glog), nil
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if errors.Is(err, errUsage) {
		os.Exit(2)
	}
	os.Exit(1)
}
