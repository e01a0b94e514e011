package response

import (
	"net/http"

	apperrors "Resilix/pkg/errors"
	"Resilix/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Success 200 响应
func Success(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "msg": msg, "data": data})
}

// Fail 业务失败，HTTP 状态仍为 200，由 code 区分
func Fail(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusInternalServerError, "msg": msg, "data": data})
}

// AbortWithError 按错误码写出响应；RejectedInput 输出字段级错误
func AbortWithError(c *gin.Context, err error) {
	e, ok := apperrors.As(err)
	if !ok || e.Code == 0 {
		logger.Error("unhandled error", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
		return
	}

	switch {
	case e.Code == apperrors.CodeRejectedInput && len(e.Fields) > 0:
		c.AbortWithStatusJSON(e.Code, e.Fields)
	case e.Code >= http.StatusInternalServerError:
		logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.AbortWithStatusJSON(e.Code, gin.H{"detail": e.Message})
	default:
		c.AbortWithStatusJSON(e.Code, gin.H{"detail": e.Error()})
	}
}
