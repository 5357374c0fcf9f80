package coinbase

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func generateTestKeyPEM(t *testing.T) (string, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), key
}

func TestJWTSignerSetsBearerToken(t *testing.T) {
	pemKey, privateKey := generateTestKeyPEM(t)

	signer, err := NewJWTSigner("organizations/test/apiKeys/abc", pemKey)
	if err != nil {
		t.Fatalf("NewJWTSigner: %v", err)
	}

	req, _ := http.NewRequest("GET", "https://api.coinbase.com/api/v3/brokerage/accounts", nil)
	if err := signer.Sign(req, nil); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("expected Bearer token, got %q", auth)
	}

	parsed, err := jwt.Parse(strings.TrimPrefix(auth, "Bearer "), func(token *jwt.Token) (interface{}, error) {
		return &privateKey.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		t.Fatalf("parsing signed token: %v", err)
	}

	claims := parsed.Claims.(jwt.MapClaims)
	if claims["iss"] != "cdp" {
		t.Errorf("iss = %v, want cdp", claims["iss"])
	}
	if claims["sub"] != "organizations/test/apiKeys/abc" {
		t.Errorf("sub = %v", claims["sub"])
	}
	if claims["uri"] != "GET api.coinbase.com/api/v3/brokerage/accounts" {
		t.Errorf("uri = %v", claims["uri"])
	}
	if parsed.Header["kid"] != "organizations/test/apiKeys/abc" {
		t.Errorf("kid = %v", parsed.Header["kid"])
	}
	if nonce, ok := parsed.Header["nonce"].(string); !ok || nonce == "" {
		t.Error("expected non-empty nonce header")
	}
}

func TestJWTSignerRejectsGarbagePEM(t *testing.T) {
	if _, err := NewJWTSigner("key", "not a pem"); err == nil {
		t.Fatal("expected error for invalid PEM")
	}
}

func TestHMACSignerHeaders(t *testing.T) {
	secret := []byte("shared-secret-for-tests")
	secretB64 := base64.StdEncoding.EncodeToString(secret)

	signer, err := NewHMACSigner("api-key-id", secretB64, "pass")
	if err != nil {
		t.Fatalf("NewHMACSigner: %v", err)
	}

	body := []byte(`{"size":"1"}`)
	req, _ := http.NewRequest("POST", "https://api.coinbase.com/orders?limit=5", nil)
	if err := signer.Sign(req, body); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if req.Header.Get("CB-ACCESS-KEY") != "api-key-id" {
		t.Errorf("CB-ACCESS-KEY = %q", req.Header.Get("CB-ACCESS-KEY"))
	}
	if req.Header.Get("CB-ACCESS-PASSPHRASE") != "pass" {
		t.Errorf("CB-ACCESS-PASSPHRASE = %q", req.Header.Get("CB-ACCESS-PASSPHRASE"))
	}

	timestamp := req.Header.Get("CB-ACCESS-TIMESTAMP")
	if timestamp == "" {
		t.Fatal("missing CB-ACCESS-TIMESTAMP")
	}

	message := timestamp + "POST" + "/orders?limit=5" + string(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if got := req.Header.Get("CB-ACCESS-SIGN"); got != want {
		t.Errorf("CB-ACCESS-SIGN = %q, want %q", got, want)
	}
}

func TestHMACSignerRejectsBadSecret(t *testing.T) {
	if _, err := NewHMACSigner("key", "!!not-base64!!", ""); err == nil {
		t.Fatal("expected error for non-base64 secret")
	}
}

func TestNewSignerDispatch(t *testing.T) {
	pemKey, _ := generateTestKeyPEM(t)

	jwtSigner, err := NewSigner(Credentials{Name: "k", KeyMaterial: pemKey, Scheme: SchemeJWT})
	if err != nil {
		t.Fatalf("jwt dispatch: %v", err)
	}
	if jwtSigner.Scheme() != SchemeJWT {
		t.Errorf("scheme = %q", jwtSigner.Scheme())
	}

	hmacSigner, err := NewSigner(Credentials{
		Name:        "k",
		KeyMaterial: base64.StdEncoding.EncodeToString([]byte("secret")),
		Scheme:      SchemeHMAC,
	})
	if err != nil {
		t.Fatalf("hmac dispatch: %v", err)
	}
	if hmacSigner.Scheme() != SchemeHMAC {
		t.Errorf("scheme = %q", hmacSigner.Scheme())
	}

	if _, err := NewSigner(Credentials{Scheme: "oauth"}); err == nil {
		t.Fatal("expected error for unknown scheme")
	}
}
