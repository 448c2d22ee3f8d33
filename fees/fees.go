// Package fees implements the pure fee-split and status-derivation rules of
// the payment gateway.
package fees

import (
	"math/big"

	"github.com/gorrillazz/gorrpay/types"
)

// Split holds the outcome of dividing a gross amount between the protocol
// treasury and the merchant. Fee + Net always equals the gross input.
type Split struct {
	Fee *big.Int
	Net *big.Int
}

// ComputeSplit divides gross between fee and net using floor division:
// fee = floor(gross * feeBps / 10000). It rejects a nil or non-positive
// gross and a fee rate outside [0, 10000].
func ComputeSplit(gross *big.Int, feeBps uint32) (Split, error) {
	if gross == nil || gross.Sign() <= 0 {
		return Split{}, types.NewValidationError(types.ErrInvalidAmount, "gross amount must be positive")
	}
	if feeBps > types.BpsDenominator {
		return Split{}, types.NewValidationError(types.ErrInvalidFeeRate, "fee rate %d bps exceeds %d", feeBps, types.BpsDenominator)
	}

	fee := new(big.Int).Mul(gross, big.NewInt(int64(feeBps)))
	fee.Div(fee, big.NewInt(types.BpsDenominator))

	return Split{
		Fee: fee,
		Net: new(big.Int).Sub(gross, fee),
	}, nil
}

// DeriveStatus projects the stored paid/refunded flags plus the expiry check
// into a lifecycle status. Precedence, first match wins:
//
//	refunded                -> refunded
//	paid && expired         -> paid_expired
//	paid                    -> paid
//	expired                 -> expired
//	otherwise               -> pending
//
// Refunded dominates regardless of timing, and a late-but-received payment
// stays distinguishable from a plain paid for reconciliation.
func DeriveStatus(paid, refunded, expired bool) types.Status {
	switch {
	case refunded:
		return types.StatusRefunded
	case paid && expired:
		return types.StatusPaidExpired
	case paid:
		return types.StatusPaid
	case expired:
		return types.StatusExpired
	default:
		return types.StatusPending
	}
}
