package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	errs "github.com/curlew-mail/curlew/internal/errors"
	"github.com/curlew-mail/curlew/internal/logger"
	"github.com/curlew-mail/curlew/internal/models"
)

// AccountFileName is the persisted account record inside the config dir.
const AccountFileName = "config.json"

type AppConfig struct {
	ConfigDir      string        `env:"CURLEW_CONFIG_DIR"`
	NetworkTimeout time.Duration `env:"CURLEW_NETWORK_TIMEOUT" envDefault:"30s"`
	Logger         logger.Config
}

// InitConfig loads process-level settings from the environment, honoring a
// local .env file when present.
func InitConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// a missing .env file is fine
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing environment config")
	}

	if cfg.ConfigDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolving home directory")
		}
		cfg.ConfigDir = filepath.Join(home, ".curlew")
	}

	return cfg, nil
}

func AccountPath(dir string) string {
	return filepath.Join(dir, AccountFileName)
}

// LoadAccount reads the persisted account record. The password field holds
// ciphertext; decryption is the caller's concern.
func LoadAccount(dir string) (*models.Account, error) {
	path := AccountPath(dir)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("no account configured at %s, run setup first", path)
		}
		return nil, errors.Wrapf(err, "reading account file %s", path)
	}
	var account models.Account
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, errors.Wrapf(err, "parsing account file %s", path)
	}
	return &account, nil
}

// SaveAccount persists the account record with owner-only permissions,
// re-applied on every write.
func SaveAccount(dir string, account *models.Account) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(errs.ErrPermission, "create config directory %s: %v", dir, err)
	}
	raw, err := json.MarshalIndent(account, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding account record")
	}
	path := AccountPath(dir)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return errors.Wrapf(errs.ErrPermission, "write account file %s: %v", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return errors.Wrapf(errs.ErrPermission, "chmod %s: %v", path, err)
	}
	return nil
}
