package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gns3consolepro/gns3consolepro/pkg/console"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeConsoleError 按错误类别映射HTTP状态码并输出统一错误体
func writeConsoleError(c *gin.Context, err error) {
	kind := console.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case console.KindNotFound:
		status = http.StatusNotFound
	case console.KindConnectTimeout, console.KindPromptTimeout:
		status = http.StatusGatewayTimeout
	case console.KindConnectionRefused, console.KindAuthFailed:
		status = http.StatusBadGateway
	}
	c.JSON(status, ErrorResponse{
		Code:    string(kind),
		Message: err.Error(),
	})
}
