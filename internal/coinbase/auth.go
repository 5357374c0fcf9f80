package coinbase

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Auth scheme names accepted in configuration
const (
	SchemeJWT  = "jwt"  // CDP keys: EC private key, ES256-signed JWT
	SchemeHMAC = "hmac" // Legacy keys: shared secret, CB-ACCESS-* headers
)

var ErrUnknownScheme = errors.New("coinbase: unknown auth scheme")

// Credentials holds one exchange credential. KeyMaterial is the EC private
// key in PEM form for the jwt scheme, or the base64 shared secret for hmac.
type Credentials struct {
	Name        string `json:"name"`
	KeyMaterial string `json:"key_material"`
	Passphrase  string `json:"passphrase,omitempty"` // hmac scheme only
	Scheme      string `json:"scheme"`
}

// Signer attaches authentication to an outgoing request. The three
// incompatible auth implementations of the old scripts collapse into this
// one interface; the client is agnostic to which scheme is active.
type Signer interface {
	Sign(req *http.Request, body []byte) error
	Scheme() string
}

// NewSigner builds the signer matching the credential's scheme
func NewSigner(creds Credentials) (Signer, error) {
	switch creds.Scheme {
	case SchemeJWT:
		return NewJWTSigner(creds.Name, creds.KeyMaterial)
	case SchemeHMAC:
		return NewHMACSigner(creds.Name, creds.KeyMaterial, creds.Passphrase)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, creds.Scheme)
	}
}

// ==================== JWT (CDP / Advanced Trade) ====================

// JWTSigner signs requests with an ES256 JWT as Coinbase Cloud Trading keys
// require: sub is the key name, iss is "cdp", the uri claim binds the token
// to one method+host+path, and the token expires after two minutes.
type JWTSigner struct {
	keyName    string
	privateKey *ecdsa.PrivateKey
}

// NewJWTSigner parses the EC private key PEM and returns a signer
func NewJWTSigner(keyName, privateKeyPEM string) (*JWTSigner, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, errors.New("coinbase: private key is not valid PEM")
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		// CDP consoles export PKCS#8 as well
		parsed, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if pkcs8Err != nil {
			return nil, fmt.Errorf("coinbase: parsing EC private key: %w", err)
		}
		ecKey, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("coinbase: private key is not an EC key")
		}
		key = ecKey
	}

	return &JWTSigner{keyName: keyName, privateKey: key}, nil
}

func (s *JWTSigner) Scheme() string { return SchemeJWT }

// Sign sets the Authorization header to a fresh bearer JWT
func (s *JWTSigner) Sign(req *http.Request, _ []byte) error {
	token, err := s.buildToken(req.Method, req.URL.Host, req.URL.Path)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (s *JWTSigner) buildToken(method, host, path string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": s.keyName,
		"iss": "cdp",
		"nbf": now.Unix(),
		"exp": now.Add(2 * time.Minute).Unix(),
		"uri": fmt.Sprintf("%s %s%s", method, host, path),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyName
	token.Header["nonce"] = uuid.NewString()

	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("coinbase: signing JWT: %w", err)
	}
	return signed, nil
}

// ==================== HMAC (legacy keys) ====================

// HMACSigner implements the legacy scheme: base64(HMAC-SHA256(secret,
// timestamp+method+path+body)) in CB-ACCESS-SIGN plus key, timestamp and
// optional passphrase headers.
type HMACSigner struct {
	apiKey     string
	secret     []byte
	passphrase string
}

// NewHMACSigner decodes the base64 shared secret and returns a signer
func NewHMACSigner(apiKey, secretB64, passphrase string) (*HMACSigner, error) {
	secret, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		return nil, fmt.Errorf("coinbase: decoding HMAC secret: %w", err)
	}
	return &HMACSigner{apiKey: apiKey, secret: secret, passphrase: passphrase}, nil
}

func (s *HMACSigner) Scheme() string { return SchemeHMAC }

// Sign sets the CB-ACCESS-* headers for the request
func (s *HMACSigner) Sign(req *http.Request, body []byte) error {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	path := req.URL.Path
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}

	message := timestamp + req.Method + path + string(body)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("CB-ACCESS-KEY", s.apiKey)
	req.Header.Set("CB-ACCESS-SIGN", signature)
	req.Header.Set("CB-ACCESS-TIMESTAMP", timestamp)
	if s.passphrase != "" {
		req.Header.Set("CB-ACCESS-PASSPHRASE", s.passphrase)
	}
	return nil
}
