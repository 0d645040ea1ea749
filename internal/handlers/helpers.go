package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-engine/internal/apperrors"
	"github.com/akylbek/payment-system/booking-engine/internal/models"
	"github.com/akylbek/payment-system/booking-engine/internal/telemetry"
)

// UserHeader identifies the requester. Authentication happens upstream.
const UserHeader = "X-User-ID"

// respondError maps an engine error to its HTTP status. Internal errors are
// logged and hidden from the client.
func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)
	msg := err.Error()
	if kind == apperrors.KindInternal {
		telemetry.Logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		msg = "internal error"
	} else if kind == apperrors.KindProcessorError {
		telemetry.Logger.Warn("Payment processor call failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": msg, "code": kind.String()})
}

func badRequest(c *gin.Context, format string, args ...any) {
	respondError(c, apperrors.InvalidInput(format, args...))
}

func requireUser(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetHeader(UserHeader))
	if userID == "" {
		badRequest(c, "missing %s header", UserHeader)
		return "", false
	}
	return userID, true
}

func parseStay(checkIn, checkOut string) (time.Time, time.Time, error) {
	in, err := models.ParseDate(checkIn)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.InvalidInput("check_in must be YYYY-MM-DD")
	}
	out, err := models.ParseDate(checkOut)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.InvalidInput("check_out must be YYYY-MM-DD")
	}
	return in, out, nil
}
