package ledger

import "errors"

var (
	ErrObligationNotFound = errors.New("obligation not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrInvalidObligation  = errors.New("invalid obligation")
	ErrInvalidPayment     = errors.New("invalid payment")
	ErrObligationClosed   = errors.New("obligation is already paid")
	ErrOverpayment        = errors.New("payment exceeds remaining balance")
)
