package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"content-pool/internal/models"
)

// success 返回统一格式的成功响应
func success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, gin.H{
		"code":    200,
		"message": "success",
		"data":    data,
	})
}

// fail 返回统一格式的错误响应
func fail(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, gin.H{
		"code":    status,
		"message": message,
	})
}

// errorStatus 将领域错误映射为HTTP状态码与对外消息，内部错误不暴露细节
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrDuplicatePrimary):
		return http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrRegenerationInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrContentInsufficient):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// parseWindow 解析 start/end 查询参数（RFC3339），缺省为最近24小时
func parseWindow(ctx *gin.Context, now time.Time) (time.Time, time.Time) {
	start, err := time.Parse(time.RFC3339, ctx.Query("start"))
	if err != nil {
		start = now.Add(-24 * time.Hour)
	}
	end, err := time.Parse(time.RFC3339, ctx.Query("end"))
	if err != nil {
		end = now
	}
	return start, end
}
