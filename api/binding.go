package api

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// validEthAddress accepts a 0x-prefixed, 20 byte hex address.
func validEthAddress(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// validRevert accepts an empty revert, or one that reads as text.
func validRevert(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) > 2 && s[:2] == "0x" {
		_, err := hexutil.Decode(s)
		return err == nil
	}
	return true
}

// RegisterValidators adds the request tags of the api to gin's binding
// validator. It must run before the router serves requests.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	if err := v.RegisterValidation("eth_addr", validEthAddress); err != nil {
		return fmt.Errorf("failed to register validator for eth_addr: %w", err)
	}
	if err := v.RegisterValidation("revert", validRevert); err != nil {
		return fmt.Errorf("failed to register validator for revert: %w", err)
	}
	return nil
}
