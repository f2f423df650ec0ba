package errors

import stderrors "errors"

var (
	ErrInvalidChainID      = stderrors.New("tx: chain id mismatch")
	ErrNonceMismatch       = stderrors.New("tx: nonce mismatch")
	ErrInvalidSignature    = stderrors.New("tx: invalid signature")
	ErrUnknownTxType       = stderrors.New("tx: unknown transaction type")
	ErrInvalidPayload      = stderrors.New("tx: invalid payload")
	ErrInsufficientBalance = stderrors.New("transfer: insufficient balance")
	ErrZeroTransfer        = stderrors.New("transfer: amount must be positive")
	ErrNotFound            = stderrors.New("not found")
)
