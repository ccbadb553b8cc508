package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/service"
)

var kindStatus = map[models.ErrorKind]int{
	models.KindValidation:          http.StatusBadRequest,
	models.KindPermission:          http.StatusForbidden,
	models.KindResourceUnavailable: http.StatusServiceUnavailable,
	models.KindInsufficientBalance: http.StatusPaymentRequired,
	models.KindNotFound:            http.StatusNotFound,
	models.KindTimeout:             http.StatusGatewayTimeout,
}

const msgTimeout = "the request took too long, check later"

// respondError writes {"error", "code"} for known failures. Store deadlines become a timeout.
// Anything else is logged and reported as a bare 500.
func (h *HTTPHandler) respondError(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) {
		h.logger.WithError(err).WithField("path", c.FullPath()).Warn("Request timed out")
		err = models.NewTimeoutError(msgTimeout)
	}

	var gwErr *models.GatewayError
	if errors.As(err, &gwErr) {
		status, ok := kindStatus[gwErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": gwErr.Message, "code": gwErr.Code})
		return
	}

	if errors.Is(err, service.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "INVALID_CREDENTIALS"})
		return
	}

	h.logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.FullPath(),
	}).Error("Request failed")
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func badRequest(message string) error {
	return models.NewValidationError(models.CodeInvalidRequest, message)
}
