package marketplace

import (
	"errors"
	"fmt"
)

// Kind classifies a marketplace error by the way callers should react to it.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindReferential   Kind = "referential"
	KindState         Kind = "state"
	KindFunding       Kind = "funding"
	KindAccount       Kind = "account"
)

// Error is a sentinel marketplace failure with a stable numeric code.
type Error struct {
	Code    uint32
	Name    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("marketplace: %s", e.Message)
}

func newError(code uint32, name string, kind Kind, msg string) *Error {
	return &Error{Code: code, Name: name, Kind: kind, Message: msg}
}

var (
	ErrTitleTooLong                 = newError(6000, "TitleTooLong", KindValidation, "title exceeds 100 bytes")
	ErrTopicTooLong                 = newError(6001, "TopicTooLong", KindValidation, "topic exceeds 500 bytes")
	ErrUnauthorizedAccount          = newError(6002, "UnauthorizedAccount", KindAuthorization, "signer is not authorized for this account")
	ErrInvalidProposalForContract   = newError(6003, "InvalidProposalForContract", KindReferential, "proposal does not target this contract")
	ErrInvalidContractorForProposal = newError(6004, "InvalidContractorForProposal", KindReferential, "contractor does not own this proposal")
	ErrProposalCannotBeUpdated      = newError(6005, "ProposalCannotBeUpdated", KindState, "proposal cannot be updated once the contract left Opened")
	ErrInsufficientClientFunds      = newError(6006, "InsufficientClientFunds", KindFunding, "client balance does not cover the escrow")
	ErrContractNotClosed            = newError(6007, "ContractNotClosed", KindState, "contract is not closed or payment was already claimed")
	ErrContractNotOpened            = newError(6008, "ContractNotOpened", KindState, "contract is not open")
	ErrContractNotAccepted          = newError(6009, "ContractNotAccepted", KindState, "contract is not in accepted state")
	ErrInvalidContractorForContract = newError(6010, "InvalidContractorForContract", KindReferential, "contractor is not the one recorded on the contract")
	ErrInvalidVault                 = newError(6011, "InvalidVault", KindReferential, "vault does not belong to this contract")
	ErrInsufficientFunds            = newError(6012, "InsufficientFunds", KindFunding, "payer cannot cover the storage cost")
	ErrAlreadyInitialized           = newError(6013, "AlreadyInitialized", KindAccount, "account already holds a record")
	ErrAccountNotInitialized        = newError(6014, "AccountNotInitialized", KindAccount, "account holds no record")
	ErrInvalidRecord                = newError(6015, "InvalidRecord", KindAccount, "account data does not decode as the expected record")
	ErrArithmeticOverflow           = newError(6016, "ArithmeticOverflow", KindFunding, "arithmetic overflow")
)

var allErrors = []*Error{
	ErrTitleTooLong,
	ErrTopicTooLong,
	ErrUnauthorizedAccount,
	ErrInvalidProposalForContract,
	ErrInvalidContractorForProposal,
	ErrProposalCannotBeUpdated,
	ErrInsufficientClientFunds,
	ErrContractNotClosed,
	ErrContractNotOpened,
	ErrContractNotAccepted,
	ErrInvalidContractorForContract,
	ErrInvalidVault,
	ErrInsufficientFunds,
	ErrAlreadyInitialized,
	ErrAccountNotInitialized,
	ErrInvalidRecord,
	ErrArithmeticOverflow,
}

// AsError extracts the marketplace error wrapped by err, if any.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the numeric code of err, or 0 when err is not a marketplace
// error.
func CodeOf(err error) uint32 {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return 0
}

// KindOf returns the kind of err, or the empty kind when err is not a
// marketplace error.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// ErrorByCode resolves a numeric code back to its sentinel.
func ErrorByCode(code uint32) (*Error, bool) {
	for _, e := range allErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}

func wrap(sentinel *Error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
