package checkout

import (
	"errors"
	"fmt"

	"github.com/safar/kasir-pos/internal/apperr"
)

type Code string

const (
	CodeEmptyCart               Code = "EMPTY_CART"
	CodeInvalidIdentity         Code = "INVALID_IDENTITY"
	CodeInvalidLine             Code = "INVALID_LINE"
	CodeInsufficientPayment     Code = "INSUFFICIENT_PAYMENT"
	CodeInsufficientStock       Code = "INSUFFICIENT_STOCK"
	CodeTransactionCreateFailed Code = "TRANSACTION_CREATE_FAILED"
	CodeLineItemInsertFailed    Code = "LINE_ITEM_INSERT_FAILED"
	CodeStockUpdateFailed       Code = "STOCK_UPDATE_FAILED"
)

// Error is returned by Checkout. Precondition failures carry no Err; write
// failures wrap the store error and, when compensation itself failed, the
// compensation error too.
type Error struct {
	Code Code

	// Product and Available are set for CodeInsufficientStock.
	Product   string
	Available int

	// StockApplied counts stock updates that landed before the failure.
	StockApplied int

	Err             error
	CompensationErr error
}

func (e *Error) Error() string {
	var msg string
	switch e.Code {
	case CodeEmptyCart:
		msg = "cart is empty"
	case CodeInvalidIdentity:
		msg = "caller identity is missing or invalid"
	case CodeInvalidLine:
		msg = fmt.Sprintf("invalid cart line %q", e.Product)
	case CodeInsufficientPayment:
		msg = "tendered amount is less than the total"
	case CodeInsufficientStock:
		msg = fmt.Sprintf("insufficient stock for %s: %d available", e.Product, e.Available)
	case CodeTransactionCreateFailed:
		msg = "failed to create transaction"
	case CodeLineItemInsertFailed:
		msg = "failed to save transaction items"
	case CodeStockUpdateFailed:
		msg = "failed to update product stock"
	default:
		msg = string(e.Code)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.CompensationErr != nil {
		msg = fmt.Sprintf("%s (rollback incomplete: %v)", msg, e.CompensationErr)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.CompensationErr != nil {
		errs = append(errs, e.CompensationErr)
	}
	return errs
}

func (e *Error) ErrorKind() apperr.Kind {
	switch e.Code {
	case CodeEmptyCart, CodeInvalidIdentity, CodeInvalidLine, CodeInsufficientPayment, CodeInsufficientStock:
		return apperr.KindValidation
	}
	if e.CompensationErr != nil || e.StockApplied > 0 {
		return apperr.KindPartialFailure
	}
	return apperr.KindRemoteService
}

// CodeOf returns the checkout code carried by err, or "" if there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
