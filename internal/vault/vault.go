package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"coinbase-trading-bot/internal/coinbase"
	"coinbase-trading-bot/internal/logging"
)

// ErrNoCredentials means no credential source produced usable keys. The
// bot then runs in read-only market data mode instead of trading with
// garbage.
var ErrNoCredentials = errors.New("vault: no exchange credentials available")

// Config selects the Vault server and secret location
type Config struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

// Store resolves exchange credentials. Vault is the primary source; the
// COINBASE_* environment variables are the fallback for development.
// Key material never comes from config files.
type Store struct {
	config Config
	client *vaultapi.Client
	logger *logging.Logger
}

// NewStore builds the store. When Vault is enabled the client is created
// eagerly so a bad address fails at startup, not at first use.
func NewStore(config Config) (*Store, error) {
	store := &Store{
		config: config,
		logger: logging.WithComponent("vault"),
	}

	if !config.Enabled {
		store.logger.Info("Vault disabled, credentials resolved from environment")
		return store, nil
	}

	vaultConfig := vaultapi.DefaultConfig()
	if config.Address != "" {
		vaultConfig.Address = config.Address
	}
	vaultConfig.Timeout = 10 * time.Second

	client, err := vaultapi.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("vault: creating client: %w", err)
	}

	// VAULT_TOKEN from the environment, the standard client behavior
	if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}

	store.client = client
	store.logger.Info("Vault client ready", "address", vaultConfig.Address)
	return store, nil
}

// Credentials resolves the exchange credentials, trying Vault first and
// the environment second
func (s *Store) Credentials(ctx context.Context) (coinbase.Credentials, error) {
	if s.config.Enabled && s.client != nil {
		creds, err := s.fromVault(ctx)
		if err == nil {
			return creds, nil
		}
		s.logger.Warn("Vault lookup failed, trying environment", "error", err.Error())
	}
	return s.fromEnv()
}

func (s *Store) fromVault(ctx context.Context) (coinbase.Credentials, error) {
	mount := s.config.MountPath
	if mount == "" {
		mount = "secret"
	}
	path := s.config.SecretPath
	if path == "" {
		path = "coinbase-trading-bot/api"
	}

	secret, err := s.client.KVv2(mount).Get(ctx, path)
	if err != nil {
		return coinbase.Credentials{}, fmt.Errorf("vault: reading %s/%s: %w", mount, path, err)
	}

	creds := coinbase.Credentials{
		Name:        stringField(secret.Data, "key_name"),
		KeyMaterial: stringField(secret.Data, "key_material"),
		Passphrase:  stringField(secret.Data, "passphrase"),
		Scheme:      strings.ToLower(stringField(secret.Data, "scheme")),
	}
	if creds.Scheme == "" {
		creds.Scheme = coinbase.SchemeJWT
	}
	if creds.Name == "" || creds.KeyMaterial == "" {
		return coinbase.Credentials{}, errors.New("vault: secret missing key_name or key_material")
	}

	s.logger.Info("Credentials loaded from Vault", "scheme", creds.Scheme)
	return creds, nil
}

func (s *Store) fromEnv() (coinbase.Credentials, error) {
	keyName := os.Getenv("COINBASE_KEY_NAME")

	if pemKey := os.Getenv("COINBASE_PRIVATE_KEY"); pemKey != "" && keyName != "" {
		s.logger.Info("Credentials loaded from environment", "scheme", coinbase.SchemeJWT)
		return coinbase.Credentials{
			Name:        keyName,
			KeyMaterial: strings.ReplaceAll(pemKey, `\n`, "\n"),
			Scheme:      coinbase.SchemeJWT,
		}, nil
	}

	if secret := os.Getenv("COINBASE_HMAC_SECRET"); secret != "" && keyName != "" {
		s.logger.Info("Credentials loaded from environment", "scheme", coinbase.SchemeHMAC)
		return coinbase.Credentials{
			Name:        keyName,
			KeyMaterial: secret,
			Passphrase:  os.Getenv("COINBASE_PASSPHRASE"),
			Scheme:      coinbase.SchemeHMAC,
		}, nil
	}

	return coinbase.Credentials{}, ErrNoCredentials
}

func stringField(data map[string]interface{}, key string) string {
	if value, ok := data[key].(string); ok {
		return value
	}
	return ""
}
