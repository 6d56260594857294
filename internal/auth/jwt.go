package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// 错误定义
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token has expired")
	ErrNoAuthHeader      = errors.New("authorization header is required")
	ErrInvalidAuthFormat = errors.New("invalid authorization format")
	ErrInsufficientScope = errors.New("insufficient scope")
	ErrNoSecret          = errors.New("jwt secret is not configured")
)

// 管理接口权限范围
const (
	ScopeAdmin      = "pool:admin"
	ScopeRegenerate = "pool:regenerate"
	ScopeSources    = "pool:sources"
	ScopeTraffic    = "pool:traffic"
)

// JWTConfig JWT配置
type JWTConfig struct {
	SecretKey  string
	Issuer     string
	ExpireTime time.Duration
}

// Claims JWT声明，令牌由外部管理系统签发
type Claims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// HasScope 判断令牌是否拥有权限，pool:admin 拥有全部权限
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || s == ScopeAdmin {
			return true
		}
	}
	return false
}

// JWTManager JWT管理器
type JWTManager struct {
	config *JWTConfig
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(config *JWTConfig) (*JWTManager, error) {
	if config == nil || config.SecretKey == "" {
		return nil, ErrNoSecret
	}
	if config.ExpireTime <= 0 {
		config.ExpireTime = time.Hour
	}
	return &JWTManager{
		config: config,
	}, nil
}

// GenerateToken 生成JWT令牌，供运维脚本和测试使用
func (m *JWTManager) GenerateToken(subject string, scopes ...string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.ExpireTime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// ValidateToken 验证JWT令牌
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(m.config.SecretKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
