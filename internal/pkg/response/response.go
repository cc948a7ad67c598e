// Package response writes the JSON envelope shared by the HTTP endpoints.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/xxxsen/mcollab/internal/pkg/errcode"
)

var messages = map[int]string{
	errcode.ErrNotFound:    "not found",
	errcode.ErrInvalid:     "invalid request",
	errcode.ErrNotJoined:   "session not joined",
	errcode.ErrLoadTimeout: "document load timed out, retry",
	errcode.ErrLoadFailed:  "document load failed, retry",
	errcode.ErrClosed:      "server shutting down",
}

type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string {
	return e.msg
}

func (e codeErr) Code() uint32 {
	return e.code
}

func asCodeErr(code int, msg string) error {
	return codeErr{code: uint32(code), msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, asCodeErr(code, message))
}

// Fail writes err under the code of the sentinel it wraps. Anything without a
// public message is reported as an internal error so store details stay in
// the logs.
func Fail(c *gin.Context, err error) {
	code := errcode.FromError(err)
	msg, ok := messages[code]
	if !ok {
		code, msg = errcode.ErrInternal, "internal error"
	}
	Error(c, code, msg)
}
