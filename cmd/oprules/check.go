package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/blndgs/oprules/api"
	"github.com/blndgs/oprules/validation"
)

var CheckCmd = cli.Command{
	Action:    doCheck,
	Name:      "check",
	Usage:     "Replay recorded simulations and print their verdicts",
	ArgsUsage: "<fixture.json>...",
	Flags: []cli.Flag{
		VerboseFlag,
	},
}

func doCheck(context *cli.Context) error {
	if context.NArg() == 0 {
		return cli.Exit("no fixture given", 2)
	}

	cfg, err := ConfigFlag.Fetch(context)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	rules, err := cfg.ValidationRules()
	if err != nil {
		return err
	}
	stakePolicy, err := cfg.StakePolicy()
	if err != nil {
		return err
	}
	verbose := VerboseFlag.Fetch(context)

	// Fixtures are bound with the same tags as api requests.
	if err := api.RegisterValidators(); err != nil {
		return err
	}

	// Fixtures are replayed one at a time through the same simulator.
	sim := &validation.StaticSimulator{}
	v := validation.NewValidator(rules, stakePolicy, sim, logger, cfg.ValidatorOptions()...)

	rejected := 0
	for _, path := range context.Args().Slice() {
		req, err := readFixture(path)
		if err != nil {
			return err
		}
		if req.EntryPoint != "" && common.HexToAddress(req.EntryPoint) != rules.EntryPoint {
			return fmt.Errorf("%s: unsupported entry point %s", path, strings.ToLower(req.EntryPoint))
		}

		sim.Result, sim.Err = req.Result, nil
		if req.Revert != "" {
			sim.Err = fmt.Errorf("%w: %s", validation.ErrExecutionReverted, req.Revert)
		}

		verdict, err := v.Validate(context.Context, req.UserOp, &req.State)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if !verdict.Admit {
			rejected++
			fmt.Fprintf(context.App.Writer, "%s: rejected %d %s\n", path, verdict.Reason.RPCCode(), verdict.Message())
			if verbose {
				for _, violation := range verdict.Violations {
					fmt.Fprintf(context.App.Writer, "\t#%d %s\n", violation.Index, violation)
				}
			}
			continue
		}
		fmt.Fprintf(context.App.Writer, "%s: admitted\n", path)
	}

	if rejected > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d operations rejected", rejected, context.NArg()), 3)
	}
	return nil
}

func readFixture(path string) (*api.ValidateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var req api.ValidateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if req.UserOp == nil {
		return nil, fmt.Errorf("%s: missing userOp", path)
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &req, nil
}
