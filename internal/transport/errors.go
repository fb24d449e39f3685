package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cloudmedia/internal/common"
)

func statusFor(kind common.Kind) int {
	switch kind {
	case common.KindUnauthorized:
		return http.StatusUnauthorized
	case common.KindBadRequest:
		return http.StatusBadRequest
	case common.KindNotFound:
		return http.StatusNotFound
	case common.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case common.KindBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error": msg} with the status matching err's kind.
// Internal failures hide their detail from the caller.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(common.KindOf(err))
	msg := common.MessageOf(err)
	if status == http.StatusInternalServerError && common.KindOf(err) == common.KindInternal {
		msg = "Internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
