// Package utils provides shared parsing and validation helpers for amounts,
// addresses, and externally decoded structs.
package utils

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/gorrillazz/gorrpay/types"
)

var validate = validator.New()

// ValidateStruct checks v against its validate struct tags and converts any
// failure into a typed validation error.
func ValidateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return types.NewValidationError(types.ErrInvalidAmount, "validation failed: %v", err)
	}
	return nil
}

// ParseAmount parses a decimal string into a positive integer amount in the
// smallest asset unit. Fractional, zero, and negative values are rejected.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, types.NewValidationError(types.ErrInvalidAmount, "amount is required")
	}
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return nil, types.NewValidationError(types.ErrInvalidAmount, "invalid amount %q", s)
	}
	if !dec.IsInteger() {
		return nil, types.NewValidationError(types.ErrInvalidAmount, "amount %q is not an integer unit count", s)
	}
	if dec.Sign() <= 0 {
		return nil, types.NewValidationError(types.ErrInvalidAmount, "amount must be positive")
	}
	return dec.BigInt(), nil
}

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, types.NewValidationError(types.ErrInvalidAddress, "invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseToken checks a token symbol against the recognised asset set.
func ParseToken(s string) (types.Token, error) {
	token := types.Token(s)
	if !token.IsValid() {
		return "", types.NewValidationError(types.ErrUnknownToken, "unknown token %q", s)
	}
	return token, nil
}
