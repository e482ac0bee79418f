package main

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	model "github.com/blndgs/oprules"
	"github.com/blndgs/oprules/api"
	"github.com/blndgs/oprules/entity"
	"github.com/blndgs/oprules/trace"
	"github.com/blndgs/oprules/validation"
)

var senderAddr = common.HexToAddress("0x0A7199a96fdf0252E09F76545c1eF2be3692F46b")

func writeFixture(t *testing.T, dir, name string, ops ...vm.OpCode) string {
	t.Helper()

	events := []trace.Event{{Kind: trace.KindEnter, Op: vm.CALL, Depth: 1, Address: senderAddr, From: validation.EntryPointV06, Target: senderAddr, TargetCodeSize: 900}}
	for _, op := range ops {
		events = append(events, trace.Event{Kind: trace.KindOpcode, Op: op, Depth: 1, Address: senderAddr})
	}
	events = append(events, trace.Event{Kind: trace.KindExit, Depth: 1})

	req := api.ValidateRequest{
		Simulation: api.Simulation{
			UserOp: &model.UserOperation{
				Sender:               senderAddr,
				Nonce:                big.NewInt(0),
				CallGasLimit:         big.NewInt(65536),
				VerificationGasLimit: big.NewInt(150000),
				PreVerificationGas:   big.NewInt(21000),
				MaxFeePerGas:         big.NewInt(1_000_000_000),
				MaxPriorityFeePerGas: big.NewInt(100_000_000),
			},
			Result: &validation.SimulationResult{Trace: trace.New(events...)},
		},
		State: validation.StaticView{
			Stakes: entity.MapLedger{},
			Code:   map[common.Address]int{senderAddr: 900},
		},
	}
	data, err := json.Marshal(&req)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func runCheck(t *testing.T, args ...string) (string, error) {
	t.Helper()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "oprules.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: disabled\n"), 0o600))

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"oprules", "--config", cfg, "check"}, args...))
	return out.String(), err
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	clean := writeFixture(t, dir, "clean.json", vm.CALLER)
	banned := writeFixture(t, dir, "banned.json", vm.NUMBER)

	out, err := runCheck(t, clean)
	require.NoError(t, err)
	require.Contains(t, out, "clean.json: admitted")

	out, err = runCheck(t, "--verbose", clean, banned)
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	require.Equal(t, 3, exit.ExitCode())
	require.Contains(t, out, "clean.json: admitted")
	require.Contains(t, out, "banned.json: rejected -32502")
	require.Contains(t, out, "#1 sender: banned-opcode")
}

func TestCheck_Errors(t *testing.T) {
	_, err := runCheck(t)
	require.ErrorContains(t, err, "no fixture given")

	_, err = runCheck(t, filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"state":{}}`), 0o600))
	_, err = runCheck(t, bad)
	require.ErrorContains(t, err, "missing userOp")
}

func TestCheck_FixtureBinding(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
		err   string
	}{
		{"short entry point", "entryPoint", "0x1234", "eth_addr"},
		{"foreign entry point", "entryPoint", "0x0000000071727De22E5E9d8BAf0edAc6f37da032", "unsupported entry point"},
		{"revert not hex", "revert", "0xzz", "revert"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFixture(t, dir, "op.json", vm.CALLER)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			var body map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(data, &body))
			body[tt.field], err = json.Marshal(tt.value)
			require.NoError(t, err)
			data, err = json.Marshal(body)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, data, 0o600))

			_, err = runCheck(t, path)
			require.ErrorContains(t, err, tt.err)
		})
	}
}
