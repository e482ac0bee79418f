// Package model provides the UserOperation submitted to the bundler and the
// helpers the validation engine uses to derive entity addresses from it.
//
// The layout follows the v0.6 EntryPoint:
//
//	initCode         = <factory address (20 bytes)><factory calldata>
//	paymasterAndData = <paymaster address (20 bytes)><paymaster data>
//
// Both fields are optional. When present they must be at least 20 bytes long,
// otherwise the operation is malformed and is rejected before simulation.
package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
)

// UserOperation represents an ERC-4337 pseudo-transaction. It is treated as
// immutable once it has been submitted for validation.
type UserOperation struct {
	Sender               common.Address `json:"sender"               mapstructure:"sender"               validate:"required"`
	Nonce                *big.Int       `json:"nonce"                mapstructure:"nonce"                validate:"required"`
	InitCode             []byte         `json:"initCode"             mapstructure:"initCode"`
	CallData             []byte         `json:"callData"             mapstructure:"callData"`
	CallGasLimit         *big.Int       `json:"callGasLimit"         mapstructure:"callGasLimit"         validate:"required"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit" mapstructure:"verificationGasLimit" validate:"required"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"   mapstructure:"preVerificationGas"   validate:"required"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"         mapstructure:"maxFeePerGas"         validate:"required"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas" mapstructure:"maxPriorityFeePerGas" validate:"required"`
	PaymasterAndData     []byte         `json:"paymasterAndData"     mapstructure:"paymasterAndData"`
	Signature            []byte         `json:"signature"            mapstructure:"signature"`
}

type userOperationError string

func (e userOperationError) Error() string {
	return string(e)
}

// Define error constants
const (
	ErrNoSender                  userOperationError = "sender address is required"
	ErrMalformedInitCode         userOperationError = "initCode is shorter than a factory address"
	ErrMalformedPaymasterAndData userOperationError = "paymasterAndData is shorter than a paymaster address"
	ErrMissingGasField           userOperationError = "gas field is not set"
)

// paymasterGasMultiplier is applied to the verification gas limit when a
// paymaster is present, since postOp may be called twice.
const paymasterGasMultiplier = 3

// HasInitCode reports whether the operation deploys its sender.
func (op *UserOperation) HasInitCode() bool {
	return len(op.InitCode) > 0
}

// HasPaymaster reports whether the operation is sponsored by a paymaster.
func (op *UserOperation) HasPaymaster() bool {
	return len(op.PaymasterAndData) > 0
}

// GetFactory returns the address portion of initCode. It returns the zero
// address if initCode is too short to hold one.
func (op *UserOperation) GetFactory() common.Address {
	if len(op.InitCode) < common.AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(op.InitCode[:common.AddressLength])
}

// GetFactoryData returns the calldata passed to the factory.
func (op *UserOperation) GetFactoryData() []byte {
	if len(op.InitCode) <= common.AddressLength {
		return nil
	}
	return op.InitCode[common.AddressLength:]
}

// GetPaymaster returns the address portion of paymasterAndData. It returns the
// zero address if the field is too short to hold one.
func (op *UserOperation) GetPaymaster() common.Address {
	if len(op.PaymasterAndData) < common.AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(op.PaymasterAndData[:common.AddressLength])
}

// GetPaymasterData returns the data passed to the paymaster.
func (op *UserOperation) GetPaymasterData() []byte {
	if len(op.PaymasterAndData) <= common.AddressLength {
		return nil
	}
	return op.PaymasterAndData[common.AddressLength:]
}

// ValidateFields checks that the fields the validation engine depends on can
// be decoded. It does not simulate anything.
func (op *UserOperation) ValidateFields() error {
	if op.Sender == (common.Address{}) {
		return ErrNoSender
	}
	if op.HasInitCode() && len(op.InitCode) < common.AddressLength {
		return ErrMalformedInitCode
	}
	if op.HasPaymaster() && len(op.PaymasterAndData) < common.AddressLength {
		return ErrMalformedPaymasterAndData
	}
	for name, v := range map[string]*big.Int{
		"nonce":                op.Nonce,
		"callGasLimit":         op.CallGasLimit,
		"verificationGasLimit": op.VerificationGasLimit,
		"preVerificationGas":   op.PreVerificationGas,
		"maxFeePerGas":         op.MaxFeePerGas,
		"maxPriorityFeePerGas": op.MaxPriorityFeePerGas,
	} {
		if v == nil {
			return fmt.Errorf("%s: %w", name, ErrMissingGasField)
		}
	}
	return nil
}

// GetMaxGasAvailable returns the max amount of gas that can be consumed by
// this UserOperation.
func (op *UserOperation) GetMaxGasAvailable() *big.Int {
	mul := big.NewInt(1)
	if op.HasPaymaster() {
		mul = big.NewInt(paymasterGasMultiplier)
	}

	total := new(big.Int).Mul(bigOrZero(op.VerificationGasLimit), mul)
	total.Add(total, bigOrZero(op.PreVerificationGas))
	return total.Add(total, bigOrZero(op.CallGasLimit))
}

// GetMaxPrefund returns the max amount of wei required to pay for gas fees by
// either the sender or paymaster.
func (op *UserOperation) GetMaxPrefund() *big.Int {
	return new(big.Int).Mul(op.GetMaxGasAvailable(), bigOrZero(op.MaxFeePerGas))
}

// GetDynamicGasPrice returns the effective gas price paid by the UserOperation
// given a basefee.
func (op *UserOperation) GetDynamicGasPrice(basefee *big.Int) *big.Int {
	gp := new(big.Int).Add(bigOrZero(basefee), bigOrZero(op.MaxPriorityFeePerGas))
	if maxFee := bigOrZero(op.MaxFeePerGas); gp.Cmp(maxFee) > 0 {
		return new(big.Int).Set(maxFee)
	}
	return gp
}

var (
	addressT, _ = abi.NewType("address", "", nil)
	uint256T, _ = abi.NewType("uint256", "", nil)
	bytes32T, _ = abi.NewType("bytes32", "", nil)

	packedArgs = abi.Arguments{
		{Name: "sender", Type: addressT},
		{Name: "nonce", Type: uint256T},
		{Name: "initCode", Type: bytes32T},
		{Name: "callData", Type: bytes32T},
		{Name: "callGasLimit", Type: uint256T},
		{Name: "verificationGasLimit", Type: uint256T},
		{Name: "preVerificationGas", Type: uint256T},
		{Name: "maxFeePerGas", Type: uint256T},
		{Name: "maxPriorityFeePerGas", Type: uint256T},
		{Name: "paymasterAndData", Type: bytes32T},
	}
	hashArgs = abi.Arguments{
		{Name: "opHash", Type: bytes32T},
		{Name: "entryPoint", Type: addressT},
		{Name: "chainID", Type: uint256T},
	}
)

// GetUserOpHash returns the hash of the UserOperation as computed by the
// EntryPoint contract for the given chain.
func (op *UserOperation) GetUserOpHash(entryPoint common.Address, chainID *big.Int) common.Hash {
	packed, err := packedArgs.Pack(
		op.Sender,
		bigOrZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		bigOrZero(op.CallGasLimit),
		bigOrZero(op.VerificationGasLimit),
		bigOrZero(op.PreVerificationGas),
		bigOrZero(op.MaxFeePerGas),
		bigOrZero(op.MaxPriorityFeePerGas),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}
	}

	encoded, err := hashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, bigOrZero(chainID))
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(encoded)
}

func bigOrZero(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}

// MarshalJSON encodes the UserOperation with the hex representation used by
// the bundler RPC.
func (op *UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Sender               common.Address `json:"sender"`
		Nonce                *hexutil.Big   `json:"nonce"`
		InitCode             hexutil.Bytes  `json:"initCode"`
		CallData             hexutil.Bytes  `json:"callData"`
		CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
		VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
		PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
		MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
		MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
		PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
		Signature            hexutil.Bytes  `json:"signature"`
	}{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(bigOrZero(op.Nonce)),
		InitCode:             op.InitCode,
		CallData:             op.CallData,
		CallGasLimit:         (*hexutil.Big)(bigOrZero(op.CallGasLimit)),
		VerificationGasLimit: (*hexutil.Big)(bigOrZero(op.VerificationGasLimit)),
		PreVerificationGas:   (*hexutil.Big)(bigOrZero(op.PreVerificationGas)),
		MaxFeePerGas:         (*hexutil.Big)(bigOrZero(op.MaxFeePerGas)),
		MaxPriorityFeePerGas: (*hexutil.Big)(bigOrZero(op.MaxPriorityFeePerGas)),
		PaymasterAndData:     op.PaymasterAndData,
		Signature:            op.Signature,
	})
}

// UnmarshalJSON does the reverse of MarshalJSON. Empty or missing byte fields
// decode to nil and missing quantities stay nil so that ValidateFields can
// report them.
func (op *UserOperation) UnmarshalJSON(data []byte) error {
	aux := struct {
		Sender               string `json:"sender"`
		Nonce                string `json:"nonce"`
		InitCode             string `json:"initCode"`
		CallData             string `json:"callData"`
		CallGasLimit         string `json:"callGasLimit"`
		VerificationGasLimit string `json:"verificationGasLimit"`
		PreVerificationGas   string `json:"preVerificationGas"`
		MaxFeePerGas         string `json:"maxFeePerGas"`
		MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
		PaymasterAndData     string `json:"paymasterAndData"`
		Signature            string `json:"signature"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Sender != "" && !common.IsHexAddress(aux.Sender) {
		return fmt.Errorf("sender: invalid address %q", aux.Sender)
	}
	op.Sender = common.HexToAddress(aux.Sender)

	var err error
	bigFields := []struct {
		name string
		src  string
		dst  **big.Int
	}{
		{"nonce", aux.Nonce, &op.Nonce},
		{"callGasLimit", aux.CallGasLimit, &op.CallGasLimit},
		{"verificationGasLimit", aux.VerificationGasLimit, &op.VerificationGasLimit},
		{"preVerificationGas", aux.PreVerificationGas, &op.PreVerificationGas},
		{"maxFeePerGas", aux.MaxFeePerGas, &op.MaxFeePerGas},
		{"maxPriorityFeePerGas", aux.MaxPriorityFeePerGas, &op.MaxPriorityFeePerGas},
	}
	for _, f := range bigFields {
		if f.src == "" {
			*f.dst = nil
			continue
		}
		if *f.dst, err = hexutil.DecodeBig(f.src); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}

	byteFields := []struct {
		name string
		src  string
		dst  *[]byte
	}{
		{"initCode", aux.InitCode, &op.InitCode},
		{"callData", aux.CallData, &op.CallData},
		{"paymasterAndData", aux.PaymasterAndData, &op.PaymasterAndData},
		{"signature", aux.Signature, &op.Signature},
	}
	for _, f := range byteFields {
		if f.src == "" || f.src == "0x" {
			*f.dst = nil
			continue
		}
		if *f.dst, err = hexutil.Decode(f.src); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}

	return nil
}

func (op *UserOperation) String() string {
	formatBytes := func(b []byte) string {
		if len(b) == 0 {
			return "0x" // default for empty byte slice
		}
		return hexutil.Encode(b)
	}

	formatBigInt := func(b *big.Int) string {
		if b == nil {
			return "0x, 0" // Default for nil big.Int
		}
		return fmt.Sprintf("0x%x, %s", b, b.Text(10))
	}

	return fmt.Sprintf(
		"UserOperation{\n"+
			"  Sender: %s\n"+
			"  Nonce: %s\n"+
			"  InitCode: %s\n"+
			"  CallData: %s\n"+
			"  CallGasLimit: %s\n"+
			"  VerificationGasLimit: %s\n"+
			"  PreVerificationGas: %s\n"+
			"  MaxFeePerGas: %s\n"+
			"  MaxPriorityFeePerGas: %s\n"+
			"  PaymasterAndData: %s\n"+
			"  Signature: %s\n"+
			"}",
		op.Sender.String(),
		formatBigInt(op.Nonce),
		formatBytes(op.InitCode),
		formatBytes(op.CallData),
		formatBigInt(op.CallGasLimit),
		formatBigInt(op.VerificationGasLimit),
		formatBigInt(op.PreVerificationGas),
		formatBigInt(op.MaxFeePerGas),
		formatBigInt(op.MaxPriorityFeePerGas),
		formatBytes(op.PaymasterAndData),
		formatBytes(op.Signature),
	)
}
