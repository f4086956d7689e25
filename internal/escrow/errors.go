package escrow

import "errors"

// Class groups failure codes by who has to act on them.
type Class int

const (
	// ClassValidation is malformed input; retry after correcting it.
	ClassValidation Class = iota + 1
	// ClassAuthorization is a missing role or a uniqueness violation.
	ClassAuthorization
	// ClassState is a record outside the lifecycle state the operation needs.
	ClassState
	// ClassAccounting is an operation that would break the balance invariant.
	ClassAccounting
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthorization:
		return "authorization"
	case ClassState:
		return "state"
	case ClassAccounting:
		return "accounting"
	default:
		return "unknown"
	}
}

// Code names a single failure outcome.
type Code string

const (
	CodeZeroAmount              Code = "zero_amount"
	CodeVoucherIDTooLong        Code = "voucher_id_too_long"
	CodeMetadataTooLong         Code = "metadata_too_long"
	CodeNotAuthorized           Code = "not_authorized"
	CodeMaintainerAlreadyExists Code = "maintainer_already_exists"
	CodeOrganizationMismatch    Code = "organization_mismatch"
	CodeInvalidVoucherState     Code = "invalid_voucher_state"
	CodeVoucherExpired          Code = "voucher_expired"
	CodeVoucherNotExpired       Code = "voucher_not_expired"
	CodeMaintainerListFull      Code = "maintainer_list_full"
	CodeInsufficientBalance     Code = "insufficient_balance"
	CodeOverflow                Code = "overflow"
	CodeUnderflow               Code = "underflow"
)

var codeClasses = map[Code]Class{
	CodeZeroAmount:              ClassValidation,
	CodeVoucherIDTooLong:        ClassValidation,
	CodeMetadataTooLong:         ClassValidation,
	CodeNotAuthorized:           ClassAuthorization,
	CodeMaintainerAlreadyExists: ClassAuthorization,
	CodeOrganizationMismatch:    ClassAuthorization,
	CodeInvalidVoucherState:     ClassState,
	CodeVoucherExpired:          ClassState,
	CodeVoucherNotExpired:       ClassState,
	CodeMaintainerListFull:      ClassState,
	CodeInsufficientBalance:     ClassAccounting,
	CodeOverflow:                ClassAccounting,
	CodeUnderflow:               ClassAccounting,
}

// Class returns the taxonomy bucket of the code.
func (c Code) Class() Class {
	return codeClasses[c]
}

// Error is a named escrow failure. Two errors match under errors.Is when
// their codes are equal.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// Class returns the taxonomy bucket of the error.
func (e *Error) Class() Class { return e.Code.Class() }

// Is matches on Code so wrapped copies still compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrZeroAmount              = &Error{Code: CodeZeroAmount, Message: "amount must be greater than zero"}
	ErrVoucherIDTooLong        = &Error{Code: CodeVoucherIDTooLong, Message: "voucher id too long (max 64 bytes)"}
	ErrMetadataTooLong         = &Error{Code: CodeMetadataTooLong, Message: "metadata too long (max 512 bytes)"}
	ErrNotAuthorized           = &Error{Code: CodeNotAuthorized, Message: "not authorized"}
	ErrMaintainerAlreadyExists = &Error{Code: CodeMaintainerAlreadyExists, Message: "maintainer already exists"}
	ErrOrganizationMismatch    = &Error{Code: CodeOrganizationMismatch, Message: "voucher was not issued by this organization"}
	ErrInvalidVoucherState     = &Error{Code: CodeInvalidVoucherState, Message: "invalid voucher state"}
	ErrVoucherExpired          = &Error{Code: CodeVoucherExpired, Message: "voucher has expired"}
	ErrVoucherNotExpired       = &Error{Code: CodeVoucherNotExpired, Message: "voucher has not expired yet"}
	ErrMaintainerListFull      = &Error{Code: CodeMaintainerListFull, Message: "maintainer list is full (max 10)"}
	ErrInsufficientBalance     = &Error{Code: CodeInsufficientBalance, Message: "insufficient balance"}
	ErrOverflow                = &Error{Code: CodeOverflow, Message: "arithmetic overflow"}
	ErrUnderflow               = &Error{Code: CodeUnderflow, Message: "arithmetic underflow"}
)

var (
	// ErrAddressInUse is returned when a record already exists at the derived address.
	ErrAddressInUse = errors.New("address already in use")
	// ErrNotFound is returned when no record exists at the derived address.
	ErrNotFound = errors.New("record not found")
)

// ClassOf reports the taxonomy bucket of err when it carries an escrow Error.
func ClassOf(err error) (Class, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Class(), true
}
