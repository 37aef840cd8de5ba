package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
)

var publicErrors = []error{
	ledger.ErrInvalidAmount,
	ledger.ErrMissingPayoutDestination,
	ledger.ErrInsufficientBalance,
	ledger.ErrOrderNotPaid,
	ledger.ErrInvalidStateTransition,
	ledger.ErrLockTimeout,
	ledger.ErrWalletNotFound,
	ledger.ErrWithdrawalNotFound,
	ledger.ErrOrderNotFound,
}

// message returns the sentinel text without the wrapping context, which can
// carry internal ids.
func message(err error) string {
	for _, e := range publicErrors {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "internal error"
}

func (h *Handler) fail(c echo.Context, err error) error {
	switch {
	case ledger.IsValidation(err):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": message(err)})
	case ledger.IsNotFound(err):
		return c.JSON(http.StatusNotFound, echo.Map{"error": message(err)})
	case ledger.IsConflict(err):
		return c.JSON(http.StatusConflict, echo.Map{"error": message(err)})
	case ledger.IsRetryable(err):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": message(err)})
	case ledger.IsInvariant(err):
		h.log.Error("ledger invariant violated",
			zap.String("path", c.Path()), zap.String("request_id", requestID(c)), zap.Error(err))
		h.alert(c, err.Error())
	default:
		h.log.Error("request failed",
			zap.String("path", c.Path()), zap.String("request_id", requestID(c)), zap.Error(err))
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
