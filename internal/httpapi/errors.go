package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jbweber/anvil/internal/resource"
)

type response struct {
	Ok    bool            `json:"ok"`
	Data  any             `json:"data,omitempty"`
	Error *resource.Error `json:"error,omitempty"`
}

// statusFor maps a taxonomy kind to its HTTP status.
func statusFor(kind resource.ErrorKind) int {
	switch kind {
	case resource.KindResourceNotFound, resource.KindImageNotFound:
		return http.StatusNotFound
	case resource.KindResourceAlreadyRunning,
		resource.KindResourceNotRunning,
		resource.KindResourceRunning,
		resource.KindSnapshotsExist,
		resource.KindAPIError:
		return http.StatusConflict
	case resource.KindArgumentNotFound:
		return http.StatusNotAcceptable
	case resource.KindConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, response{Ok: true, Data: data})
}

func fail(c *gin.Context, err error) {
	e := resource.AsError(err)
	c.JSON(statusFor(e.Kind), response{Ok: false, Error: e})
}
