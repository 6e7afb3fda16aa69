package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlpAus/habit-tracker-backend/internal/platform/logging"
)

var testSecret = []byte("test-secret")

func signHS256(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func validClaims(sub string) Claims {
	now := time.Now()
	return Claims{
		Email: sub + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestHS256Verifier(t *testing.T) {
	v := NewHS256Verifier(testSecret, "")

	t.Run("valid token", func(t *testing.T) {
		id, err := v.Verify(context.Background(), signHS256(t, testSecret, validClaims("user-1")))
		require.NoError(t, err)
		assert.Equal(t, "user-1", id.UserID)
		assert.Equal(t, "user-1@example.com", id.Email)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := validClaims("user-1")
		claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		_, err := v.Verify(context.Background(), signHS256(t, testSecret, claims))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(context.Background(), signHS256(t, []byte("other"), validClaims("user-1")))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := v.Verify(context.Background(), signHS256(t, testSecret, validClaims("")))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestHS256VerifierAudience(t *testing.T) {
	v := NewHS256Verifier(testSecret, "habits")

	claims := validClaims("user-1")
	_, err := v.Verify(context.Background(), signHS256(t, testSecret, claims))
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims.Audience = jwt.ClaimStrings{"habits"}
	_, err = v.Verify(context.Background(), signHS256(t, testSecret, claims))
	assert.NoError(t, err)
}

func selfSignedCert(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "securetoken.system.gserviceaccount.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestFirebaseVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=600, must-revalidate")
		_ = json.NewEncoder(w).Encode(map[string]string{"kid-1": selfSignedCert(t, key)})
	}))
	defer srv.Close()

	const project = "habit-tracker"
	v := NewFirebaseVerifier(project, NewCertSource(srv.URL, srv.Client()))

	sign := func(kid string, claims Claims) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		tok.Header["kid"] = kid
		s, err := tok.SignedString(key)
		require.NoError(t, err)
		return s
	}

	claims := validClaims("firebase-user")
	claims.Issuer = FirebaseIssuerPrefix + project
	claims.Audience = jwt.ClaimStrings{project}

	id, err := v.Verify(context.Background(), sign("kid-1", claims))
	require.NoError(t, err)
	assert.Equal(t, "firebase-user", id.UserID)

	// 第二次校验命中证书缓存
	_, err = v.Verify(context.Background(), sign("kid-1", claims))
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	_, err = v.Verify(context.Background(), sign("kid-unknown", claims))
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := claims
	wrongIssuer.Issuer = FirebaseIssuerPrefix + "other-project"
	_, err = v.Verify(context.Background(), sign("kid-1", wrongIssuer))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMaxAge(t *testing.T) {
	assert.Equal(t, 600*time.Second, maxAge("public, max-age=600, must-revalidate"))
	assert.Equal(t, defaultCertTTL, maxAge(""))
	assert.Equal(t, defaultCertTTL, maxAge("max-age=abc"))
}

func newAuthRouter(v Verifier, rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(v, logging.Discard()))
	if rl != nil {
		r.Use(rl.Middleware())
	}
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c)})
	})
	return r
}

func TestMiddleware(t *testing.T) {
	r := newAuthRouter(NewHS256Verifier(testSecret, ""), nil)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"no header", "", http.StatusUnauthorized, "No authorization header found"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
		{"valid", "Bearer " + signHS256(t, testSecret, validClaims("user-42")), http.StatusOK, "user-42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	fixed := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	r := newAuthRouter(NewHS256Verifier(testSecret, ""), rl)

	do := func(sub string) int {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+signHS256(t, testSecret, validClaims(sub)))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusOK, do("a"))
	assert.Equal(t, http.StatusTooManyRequests, do("a"))
	// 其他用户有自己的令牌桶
	assert.Equal(t, http.StatusOK, do("b"))

	rl.now = func() time.Time { return fixed.Add(time.Hour) }
	assert.Equal(t, 2, rl.Cleanup(time.Minute))
}
