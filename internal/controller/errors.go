package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"techstore-order-service/internal/ledger"
	"techstore-order-service/internal/middleware"
	"techstore-order-service/internal/repository"
	"techstore-order-service/internal/service"

	"github.com/gin-gonic/gin"
)

// respondError traduce errores de servicio a códigos HTTP
func respondError(c *gin.Context, err error) {
	var ae *service.AuthError
	if errors.As(err, &ae) {
		middleware.AbortWithAuthError(c, err)
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "error no controlado", "error", err,
			"path", c.FullPath(), "requestId", middleware.RequestIDFrom(c))
		c.JSON(status, gin.H{"error": "error interno"})
		return
	}

	body := gin.H{"error": err.Error()}
	var te *ledger.TransitionError
	if errors.As(err, &te) {
		body["currentStatus"] = te.From
		body["allowed"] = ledger.AllowedTransitions(te.From)
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, ledger.ErrLineItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrIllegalTransition),
		errors.Is(err, ledger.ErrOrderLocked),
		errors.Is(err, service.ErrConcurrentUpdate),
		errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidLineItem),
		errors.Is(err, ledger.ErrAmountOutOfRange),
		errors.Is(err, service.ErrProductUnavailable),
		errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, service.ErrInvalidPrincipal):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// orderIDParam valida el formato AAAA-MM-NNNN antes de ir a la base.
func orderIDParam(c *gin.Context) (string, bool) {
	id := c.Param("orderId")
	if _, _, err := ledger.ParseOrderID(id); err != nil {
		badRequest(c, err)
		return "", false
	}
	return id, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
