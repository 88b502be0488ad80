package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[server]
DataDir = "/var/lib/ngbroker"
Addresses = "0.0.0.0:1440, [::]:1440"
peer_id = "000000000000000000000000000000000000000000000000000000000000000a"
admin_user = "000000000000000000000000000000000000000000000000000000000000000b"
registration = "invitation"

[logging]
Level = "INFO"
`

func TestLoadParsesSections(t *testing.T) {
	cfg, err := Load([]byte(sampleConfig))
	require.NoError(t, err)
	require.Equal(t, "/var/lib/ngbroker", cfg.Server.DataDir)
	require.Equal(t, []string{"0.0.0.0:1440", "[::]:1440"}, cfg.Server.Addresses)
	require.False(t, cfg.PeerId.IsZero())
	require.NotNil(t, cfg.AdminUser)
	require.Equal(t, RegistrationInvitation, cfg.Registration)
	require.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoadDefaultsRegistrationToClosed(t *testing.T) {
	raw := strings.ReplaceAll(sampleConfig, `registration = "invitation"`, "")
	cfg, err := Load([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, RegistrationClosed, cfg.Registration)
}

func TestLoadRejectsMissingPeerId(t *testing.T) {
	raw := `
[server]
DataDir = "/tmp/x"
Addresses = "0.0.0.0:1440"
`
	_, err := Load([]byte(raw))
	require.Error(t, err)
}

func TestLoadRejectsUnknownSection(t *testing.T) {
	_, err := Load([]byte("[bogus]\nfoo = \"bar\"\n"))
	require.Error(t, err)
}
