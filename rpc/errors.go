package rpc

import (
	"errors"
	"net/http"

	coreerrors "lancechain/core/errors"
	"lancechain/native/marketplace"
)

const (
	codeMarketInternal      = -32030
	codeMarketForbidden     = -32031
	codeMarketReferential   = -32032
	codeMarketConflict      = -32033
	codeMarketInvalidParams = -32034
	codeMarketFunding       = -32035
	codeMarketNotFound      = -32036
)

type marketErrorData struct {
	Code    uint32 `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// marketErrorStatus maps err to an HTTP status and JSON-RPC code.
func marketErrorStatus(err error) (int, int) {
	if mErr, ok := marketplace.AsError(err); ok {
		switch {
		case mErr == marketplace.ErrAccountNotInitialized:
			return http.StatusNotFound, codeMarketNotFound
		case mErr == marketplace.ErrAlreadyInitialized:
			return http.StatusConflict, codeMarketConflict
		case mErr == marketplace.ErrInvalidRecord:
			return http.StatusUnprocessableEntity, codeMarketReferential
		}
		switch mErr.Kind {
		case marketplace.KindAuthorization:
			return http.StatusForbidden, codeMarketForbidden
		case marketplace.KindReferential:
			return http.StatusUnprocessableEntity, codeMarketReferential
		case marketplace.KindState:
			return http.StatusConflict, codeMarketConflict
		case marketplace.KindValidation:
			return http.StatusBadRequest, codeMarketInvalidParams
		case marketplace.KindFunding:
			return http.StatusPaymentRequired, codeMarketFunding
		}
		return http.StatusInternalServerError, codeMarketInternal
	}
	switch {
	case errors.Is(err, coreerrors.ErrNotFound):
		return http.StatusNotFound, codeMarketNotFound
	case errors.Is(err, coreerrors.ErrInsufficientBalance):
		return http.StatusPaymentRequired, codeMarketFunding
	case errors.Is(err, coreerrors.ErrZeroTransfer),
		errors.Is(err, coreerrors.ErrInvalidChainID),
		errors.Is(err, coreerrors.ErrNonceMismatch),
		errors.Is(err, coreerrors.ErrInvalidSignature),
		errors.Is(err, coreerrors.ErrUnknownTxType),
		errors.Is(err, coreerrors.ErrInvalidPayload):
		return http.StatusBadRequest, codeMarketInvalidParams
	}
	return http.StatusInternalServerError, codeMarketInternal
}

func writeMarketError(w http.ResponseWriter, id interface{}, err error) {
	status, code := marketErrorStatus(err)
	var data interface{}
	if mErr, ok := marketplace.AsError(err); ok {
		data = marketErrorData{Code: mErr.Code, Name: mErr.Name, Message: err.Error()}
	}
	message := err.Error()
	if status == http.StatusInternalServerError && data == nil {
		message = "internal error"
		data = err.Error()
	}
	writeError(w, status, id, code, message, data)
}
