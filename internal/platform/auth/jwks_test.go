package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func rsaPublicKeyToJWK(privateKey *rsa.PrivateKey, kid string) JWKSKey {
	pub := &privateKey.PublicKey
	return JWKSKey{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func newJWKSServer(t *testing.T, keys func() []JWKSKey) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKSResponse{Keys: keys()})
	}))
	t.Cleanup(server.Close)
	return server, &fetches
}

func TestJWKSCache_FetchAndCache(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	server, fetches := newJWKSServer(t, func() []JWKSKey {
		return []JWKSKey{rsaPublicKeyToJWK(privateKey, "k1")}
	})

	cache := NewJWKSCache(server.URL, 5*time.Minute)
	key, err := cache.GetKey("k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.N.Cmp(privateKey.PublicKey.N) != 0 || key.E != privateKey.PublicKey.E {
		t.Error("fetched key does not match original")
	}
	if _, err := cache.GetKey("k1"); err != nil {
		t.Fatalf("unexpected error on cache hit: %v", err)
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("expected 1 fetch, got %d", got)
	}
}

func TestJWKSCache_KeyRotation(t *testing.T) {
	key1, _ := rsa.GenerateKey(rand.Reader, 2048)
	key2, _ := rsa.GenerateKey(rand.Reader, 2048)
	var rotated atomic.Bool
	server, _ := newJWKSServer(t, func() []JWKSKey {
		if rotated.Load() {
			return []JWKSKey{rsaPublicKeyToJWK(key2, "k2")}
		}
		return []JWKSKey{rsaPublicKeyToJWK(key1, "k1")}
	})

	cache := NewJWKSCache(server.URL, 5*time.Minute)
	if _, err := cache.GetKey("k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rotated.Store(true)
	key, err := cache.GetKey("k2")
	if err != nil {
		t.Fatalf("expected unknown kid to trigger refresh: %v", err)
	}
	if key.N.Cmp(key2.PublicKey.N) != 0 {
		t.Error("expected rotated key")
	}
}

func TestJWKSCache_Errors(t *testing.T) {
	privateKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	server, _ := newJWKSServer(t, func() []JWKSKey {
		return []JWKSKey{rsaPublicKeyToJWK(privateKey, "existing")}
	})
	if _, err := NewJWKSCache(server.URL, time.Minute).GetKey("missing"); err == nil {
		t.Error("expected error for unknown kid")
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	if _, err := NewJWKSCache(failing.URL, time.Minute).GetKey("any"); err == nil {
		t.Error("expected error for server error response")
	}
}

func TestParseRSAPublicKey_Invalid(t *testing.T) {
	if _, err := parseRSAPublicKey(JWKSKey{Kty: "RSA", N: "!!!", E: "AQAB"}); err == nil {
		t.Error("expected error for invalid modulus")
	}
	n := base64.RawURLEncoding.EncodeToString(big.NewInt(12345).Bytes())
	if _, err := parseRSAPublicKey(JWKSKey{Kty: "RSA", N: n, E: "!!!"}); err == nil {
		t.Error("expected error for invalid exponent")
	}
}

func TestJWKSKeyFunc_NoKidHeader(t *testing.T) {
	keyFunc := jwksKeyFunc(NewJWKSCache("http://127.0.0.1:0", time.Minute))
	if _, err := keyFunc(&jwt.Token{Header: map[string]interface{}{}}); err == nil {
		t.Fatal("expected error for token without kid")
	}
}

func TestOIDCDiscovery_RS256Token(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	jwks, _ := newJWKSServer(t, func() []JWKSKey {
		return []JWKSKey{rsaPublicKeyToJWK(privateKey, "rs-1")}
	})
	var issuer string
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"issuer": issuer, "jwks_uri": jwks.URL})
	}))
	defer idp.Close()
	issuer = idp.URL

	provider, err := NewOIDCProvider(issuer + "/")
	if err != nil {
		t.Fatalf("discovery: %v", err)
	}
	if provider.JWKSURI != jwks.URL {
		t.Errorf("jwks_uri = %s, want %s", provider.JWKSURI, jwks.URL)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "reviewer-7",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{"reviewer"},
	})
	token.Header["kid"] = "rs-1"
	signed, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	err = runMiddleware(t, JWTMiddleware(JWTConfig{Issuer: issuer}), req, "/", func(c echo.Context) error {
		if got := UserIDFromContext(c.Request().Context()); got != "reviewer-7" {
			t.Errorf("user id = %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOIDCDiscovery_MissingJWKSURI(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": "x"})
	}))
	defer idp.Close()
	if _, err := NewOIDCProvider(idp.URL); err == nil {
		t.Error("expected error for missing jwks_uri")
	}
}
