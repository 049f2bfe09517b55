// Package token 提供了对外部身份提供方签发的 JSON Web Token 的验证功能。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager 负责验证身份令牌。
// 令牌由外部身份提供方用共享密钥（HS256）签发，本服务只读取其中的用户身份。
type JWTManager struct {
	secretKey []byte // secretKey 用于验证 token 签名的共享密钥
	issuer    string // issuer 非空时校验令牌的 iss 声明
}

// IdentityClaims 定义了外部身份提供方在令牌中携带的声明。
// 用户身份取自标准的 sub 声明。
type IdentityClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID 返回令牌中的用户标识（sub 声明）。
func (c *IdentityClaims) UserID() string {
	return c.Subject
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		issuer:    issuer,
	}
}

// VerifyToken 验证给定的 token 字符串。
// 如果 token 有效，返回其中的 IdentityClaims；签名不匹配、已过期或
// 签发方不符时返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing subject")
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, errors.New("unexpected token issuer")
	}
	return claims, nil
}

// MintDevToken 为本地联调签发一个短期令牌。
// 仅用于开发与测试，生产令牌一律由外部身份提供方签发。
func (m *JWTManager) MintDevToken(userID string, ttl time.Duration) (string, error) {
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}
