package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimsKey = "auth_claims"

// JWTAuthMiddleware JWT认证中间件
func JWTAuthMiddleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 获取Authorization头
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, ErrNoAuthHeader)
			return
		}

		// 验证Authorization格式
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, http.StatusUnauthorized, ErrInvalidAuthFormat)
			return
		}

		claims, err := jwtManager.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			abort(c, http.StatusUnauthorized, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

// RequireScope 要求令牌拥有指定权限，必须在 JWTAuthMiddleware 之后使用
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, ErrInvalidToken)
			return
		}
		if !claims.HasScope(scope) {
			abort(c, http.StatusForbidden, ErrInsufficientScope)
			return
		}
		c.Next()
	}
}

// ClaimsFrom 读取当前请求的令牌声明
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

// Subject 当前请求的调用方，未认证时返回 anonymous
func Subject(c *gin.Context) string {
	if claims, ok := ClaimsFrom(c); ok && claims.Subject != "" {
		return claims.Subject
	}
	return "anonymous"
}

func abort(c *gin.Context, status int, err error) {
	if errors.Is(err, ErrExpiredToken) {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token", error_description="token expired"`)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
	})
}
