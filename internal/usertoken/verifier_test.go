package usertoken

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestNewVerifierRequiresKeySource(t *testing.T) {
	if _, err := NewVerifier(Config{}); err == nil {
		t.Fatalf("expected missing key source to fail")
	}
	if _, err := NewVerifier(Config{JWKSURL: "http://x", HMACSecret: "s"}); err == nil {
		t.Fatalf("expected both key sources to fail")
	}
}

func TestJWKSVerifyAndRefreshOnUnknownKid(t *testing.T) {
	key1, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key1: %v", err)
	}
	key2, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key2: %v", err)
	}

	active := "kid-1"
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=1")
		pub := key1.PublicKey
		if active == "kid-2" {
			pub = key2.PublicKey
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{toJWK(active, pub)}})
	}))
	defer jwksServer.Close()

	v, err := NewVerifier(Config{JWKSURL: jwksServer.URL, Issuer: "issuer-a", Audience: "aud-a"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	signed1 := signRS256(t, key1, "kid-1", claimsFor("user-a", "issuer-a", "aud-a", time.Now()))
	id, err := v.Verify(context.Background(), signed1)
	if err != nil || id.Subject != "user-a" {
		t.Fatalf("verify token1 failed: id=%+v err=%v", id, err)
	}
	if id.Email != "user-a@example.com" || id.Name != "Full user-a" {
		t.Fatalf("expected email and metadata name, got %+v", id)
	}

	active = "kid-2"
	signed2 := signRS256(t, key2, "kid-2", claimsFor("user-b", "issuer-a", "aud-a", time.Now()))
	if id, err := v.Verify(context.Background(), signed2); err != nil || id.Subject != "user-b" {
		t.Fatalf("verify token2 failed: id=%+v err=%v", id, err)
	}
}

func TestJWKSRejectsFutureIssuedAt(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{toJWK("kid-1", key.PublicKey)}})
	}))
	defer jwksServer.Close()

	v, err := NewVerifier(Config{JWKSURL: jwksServer.URL, Audience: "aud-a", Leeway: 5 * time.Second})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	signed := signRS256(t, key, "kid-1", claimsFor("user-1", "", "aud-a", time.Now().Add(2*time.Minute)))
	if _, err := v.Verify(context.Background(), signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected future iat token to fail, got %v", err)
	}
}

func TestHMACVerify(t *testing.T) {
	v, err := NewVerifier(Config{HMACSecret: "super-secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	claims := claimsFor("user-h", "", defaultAudience, time.Now())
	claims.UserMetadata.FullName = ""
	claims.Name = "Plain Name"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("super-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := v.Verify(context.Background(), signed)
	if err != nil || id.Subject != "user-h" || id.Name != "Plain Name" {
		t.Fatalf("unexpected verify result %+v %v", id, err)
	}

	wrong, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
	if _, err := v.Verify(context.Background(), wrong); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected wrong secret to fail, got %v", err)
	}

	noSub := claimsFor("", "", defaultAudience, time.Now())
	signedNoSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, noSub).SignedString([]byte("super-secret"))
	if _, err := v.Verify(context.Background(), signedNoSub); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected missing subject to fail, got %v", err)
	}
}

func TestParseCacheMaxAge(t *testing.T) {
	if got := parseCacheMaxAge("public, max-age=60"); got != time.Minute {
		t.Fatalf("unexpected ttl %v", got)
	}
	if got := parseCacheMaxAge("no-store"); got != 0 {
		t.Fatalf("unexpected ttl %v", got)
	}
}

func claimsFor(subject, issuer, audience string, issuedAt time.Time) sessionClaims {
	c := sessionClaims{
		Email: subject + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Second)),
		},
	}
	c.UserMetadata.FullName = "Full " + subject
	return c
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims sessionClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func toJWK(kid string, key rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}
