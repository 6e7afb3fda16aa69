package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// GoogleCertsURL 发布了签发Firebase ID令牌所用的x509证书
	GoogleCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	// FirebaseIssuerPrefix 加上项目ID就是令牌的 iss
	FirebaseIssuerPrefix = "https://securetoken.google.com/"

	defaultCertTTL   = time.Hour
	certFetchTimeout = 10 * time.Second
)

// CertSource 下载并缓存以 kid 为键的RSA公钥，缓存时长遵循响应的 Cache-Control max-age。
type CertSource struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

// NewCertSource 创建证书源。client 为 nil 时使用带超时的默认客户端。
func NewCertSource(url string, client *http.Client) *CertSource {
	if client == nil {
		client = &http.Client{Timeout: certFetchTimeout}
	}
	return &CertSource{url: url, client: client, now: time.Now}
}

// Keyfunc 实现 jwt.Keyfunc，按令牌头中的 kid 选择公钥
func (s *CertSource) Keyfunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("令牌缺少kid")
	}
	keys, err := s.currentKeys(context.Background())
	if err != nil {
		return nil, err
	}
	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("未知的kid: %s", kid)
	}
	return key, nil
}

func (s *CertSource) currentKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys != nil && s.now().Before(s.expiresAt) {
		return s.keys, nil
	}

	keys, ttl, err := s.fetch(ctx)
	if err != nil {
		// 下载失败时继续使用过期的缓存
		if s.keys != nil {
			return s.keys, nil
		}
		return nil, err
	}
	s.keys = keys
	s.expiresAt = s.now().Add(ttl)
	return keys, nil
}

func (s *CertSource) fetch(ctx context.Context) (map[string]*rsa.PublicKey, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("下载签名证书失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("下载签名证书失败: HTTP %d", resp.StatusCode)
	}

	var pems map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&pems); err != nil {
		return nil, 0, fmt.Errorf("解析签名证书失败: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, certPEM := range pems {
		key, err := parseRSACertificate(certPEM)
		if err != nil {
			return nil, 0, fmt.Errorf("证书 %s 无效: %w", kid, err)
		}
		keys[kid] = key
	}
	return keys, maxAge(resp.Header.Get("Cache-Control")), nil
}

func parseRSACertificate(certPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil {
		return nil, errors.New("不是PEM格式")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("证书公钥不是RSA")
	}
	return key, nil
}

// maxAge 从 Cache-Control 头中取出 max-age，缺失时使用默认值
func maxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return defaultCertTTL
}
