package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/curlew-mail/curlew/internal/models"
)

func testAccount() *models.Account {
	return &models.Account{
		Email:        "ada@example.org",
		Name:         "Ada",
		Password:     "ciphertext-blob",
		RecvProtocol: models.ProtocolIMAP,
		SMTP:         models.SMTPConfig{Host: "smtp.example.org", Port: 587, StartTLS: true, VerifySSL: true},
		IMAP:         models.ReceiveConfig{Host: "imap.example.org", Port: 993, SSL: true},
	}
}

func TestSaveLoadAccountRoundTrip(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, SaveAccount(dir, testAccount()))

	loaded, err := LoadAccount(dir)
	require.NoError(t, err)
	require.Equal(t, testAccount(), loaded)
}

func TestSaveAccountPermissions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveAccount(dir, testAccount()))

	info, err := os.Stat(AccountPath(dir))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadAccountMissingFile(t *testing.T) {
	_, err := LoadAccount(t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "run setup first")
}

func TestLoadAccountRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(AccountPath(dir), []byte("{not json"), 0o600))

	_, err := LoadAccount(dir)
	require.Error(t, err)
}

func TestInitConfigDefaults(t *testing.T) {
	t.Setenv("CURLEW_CONFIG_DIR", "/tmp/curlew-test-config")
	os.Unsetenv("CURLEW_NETWORK_TIMEOUT")

	cfg, err := InitConfig()
	require.NoError(t, err)
	require.Equal(t, "/tmp/curlew-test-config", cfg.ConfigDir)
	require.Equal(t, 30*time.Second, cfg.NetworkTimeout)
}

func TestInitConfigTimeoutOverride(t *testing.T) {
	t.Setenv("CURLEW_CONFIG_DIR", t.TempDir())
	t.Setenv("CURLEW_NETWORK_TIMEOUT", "5s")

	cfg, err := InitConfig()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.NetworkTimeout)
}
