package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SlpAus/habit-tracker-backend/internal/platform/config"
)

// ErrInvalidToken 表示令牌无法通过校验（签名、过期、受众等任一项失败）
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity 是通过校验后的调用方身份
type Identity struct {
	UserID        string
	Email         string
	EmailVerified bool
	Name          string
}

// Verifier 校验一个原始的bearer令牌并返回调用方身份
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Identity, error)
}

// Claims 是ID令牌中我们关心的字段
type Claims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier 用golang-jwt校验令牌，密钥来源由 keyfunc 决定
type JWTVerifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewHS256Verifier 创建一个使用共享密钥的校验器。audience 为空时不校验受众。
func NewHS256Verifier(secret []byte, audience string) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &JWTVerifier{
		keyfunc: func(*jwt.Token) (interface{}, error) { return secret, nil },
		parser:  jwt.NewParser(opts...),
	}
}

// NewFirebaseVerifier 创建一个校验Firebase ID令牌的校验器，公钥来自 keys。
func NewFirebaseVerifier(projectID string, keys *CertSource) *JWTVerifier {
	return &JWTVerifier{
		keyfunc: keys.Keyfunc,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithAudience(projectID),
			jwt.WithIssuer(FirebaseIssuerPrefix+projectID),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}
}

// NewVerifier 根据配置构造校验器
func NewVerifier(cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Mode {
	case "hs256":
		return NewHS256Verifier([]byte(cfg.Secret), cfg.ProjectID), nil
	case "firebase":
		return NewFirebaseVerifier(cfg.ProjectID, NewCertSource(GoogleCertsURL, nil)), nil
	default:
		return nil, fmt.Errorf("不支持的认证模式: %q", cfg.Mode)
	}
}

// Verify 实现 Verifier
func (v *JWTVerifier) Verify(ctx context.Context, rawToken string) (Identity, error) {
	var claims Claims
	token, err := v.parser.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return v.keyfunc(t)
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID:        claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}
