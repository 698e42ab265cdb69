// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"inkwell-ai-api/internal/interfaces/http/dto"
	apperrors "inkwell-ai-api/pkg/errors"
)

// respondError 把应用错误映射为 HTTP 错误响应
func respondError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	})
}
