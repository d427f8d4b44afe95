package errors

import stderrors "errors"

// Errors surfaced by host primitives rather than by program logic.
var (
	ErrAuthorityMismatch   = stderrors.New("host: authority mismatch")
	ErrInsufficientBalance = stderrors.New("host: insufficient balance")
	ErrAccountNotFound     = stderrors.New("host: account not found")
	ErrAccountExists       = stderrors.New("host: account already exists")
	ErrMintMismatch        = stderrors.New("host: token mint mismatch")
	ErrInvalidSignature    = stderrors.New("host: invalid signature")
	ErrAmountOverflow      = stderrors.New("host: amount overflow")
)

// Kind returns the stable taxonomy name for host errors, or "" when err is not
// one of them.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrAuthorityMismatch):
		return "AuthorityMismatch"
	case stderrors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case stderrors.Is(err, ErrAccountNotFound):
		return "AccountNotFound"
	case stderrors.Is(err, ErrAccountExists):
		return "AccountExists"
	case stderrors.Is(err, ErrMintMismatch):
		return "MintMismatch"
	case stderrors.Is(err, ErrInvalidSignature):
		return "InvalidSignature"
	case stderrors.Is(err, ErrAmountOverflow):
		return "AmountOverflow"
	default:
		return ""
	}
}
