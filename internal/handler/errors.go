package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"shopsy-inventory-api/internal/middleware"
	"shopsy-inventory-api/internal/model"
	"shopsy-inventory-api/pkg/apierror"
	"shopsy-inventory-api/pkg/response"
)

// toAPIError maps a service error onto its HTTP representation.
func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var se *model.StockError
	if !errors.As(err, &se) {
		return apierror.InternalError("")
	}
	switch se.Kind {
	case model.KindInsufficientStock:
		return apierror.InsufficientStock(se.Message)
	case model.KindInsufficientReserved:
		return apierror.InsufficientReserved(se.Message)
	case model.KindInvalidQuantity:
		return apierror.InvalidQuantity(se.Message)
	case model.KindMalformedCursor:
		return apierror.MalformedCursor(se.Message)
	case model.KindNotFound:
		return apierror.NotFound(se.Message)
	case model.KindConflict:
		return apierror.Conflict(se.Message)
	default:
		return apierror.InternalError("")
	}
}

// writeError sends err to the client and logs it when it is not a client error.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
	}
	response.Error(w, apiErr)
}
