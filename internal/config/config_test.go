package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  port: 9090\n")

	cfg, vp, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, vp)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/dev/ttyS0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, time.Second, cfg.Serial.ReadTimeout)
	assert.Equal(t, "tarm", cfg.Serial.Backend)
	assert.Equal(t, 3, cfg.LoRa.Region)
	assert.Equal(t, 30, cfg.LoRa.Join.MaxPolls)
	assert.Equal(t, 2*time.Second, cfg.LoRa.Join.PollInterval)
	assert.Equal(t, []string{"03", "04"}, cfg.LoRa.Join.SuccessCodes)
	assert.False(t, cfg.LoRa.Joined)
}

func TestLoadJSONDeviceConfig(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "lora": {
    "dev_eui": "0011223344556677",
    "app_eui": "8899AABBCCDDEEFF",
    "app_key": "00112233445566778899AABBCCDDEEFF",
    "region": 5,
    "join": {"success_codes": ["04"]}
  },
  "serial": {"port": "/dev/ttyAMA0", "read_timeout": "500ms"}
}`)

	cfg, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0011223344556677", cfg.LoRa.DevEUI)
	assert.Equal(t, "8899AABBCCDDEEFF", cfg.LoRa.AppEUI)
	assert.Equal(t, "00112233445566778899AABBCCDDEEFF", cfg.LoRa.AppKey)
	assert.Equal(t, 5, cfg.LoRa.Region)
	assert.Equal(t, []string{"04"}, cfg.LoRa.Join.SuccessCodes)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Serial.ReadTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LORACAM_LORA_DEV_EUI", "AABBCCDDEEFF0011")
	path := writeFile(t, "config.yaml", "lora:\n  dev_eui: \"0000000000000000\"\n")

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AABBCCDDEEFF0011", cfg.LoRa.DevEUI)
}

func TestLoadInvalidFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "lora: [unterminated")

	_, _, err := Load(path)
	assert.Error(t, err)
}

func TestPersistJoined(t *testing.T) {
	path := writeFile(t, "config.yaml", "lora:\n  joined: false\n  region: 3\n")

	_, vp, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, persistJoined(vp, true))

	// 重新读取文件确认已写回
	reloaded, _, err := Load(path)
	require.NoError(t, err)
	assert.True(t, reloaded.LoRa.Joined)
	assert.Equal(t, 3, reloaded.LoRa.Region)
}

func TestPersistJoinedOnlyTouchesFlag(t *testing.T) {
	path := writeFile(t, "config.yaml", "lora:\n  dev_eui: \"0011223344556677\"\n")
	t.Setenv("LORACAM_LORA_APP_KEY", "SECRETSECRETSECRETSECRETSECRET00")

	_, vp, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, persistJoined(vp, true))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "SECRET")
	assert.NotContains(t, string(raw), "server")
	assert.NotContains(t, string(raw), "database")

	file := viper.New()
	file.SetConfigFile(path)
	require.NoError(t, file.ReadInConfig())
	assert.ElementsMatch(t, []string{"lora.dev_eui", "lora.joined"}, file.AllKeys())
	assert.True(t, file.GetBool("lora.joined"))
	assert.Equal(t, "0011223344556677", file.GetString("lora.dev_eui"))

	// 内存中的配置同样更新
	assert.True(t, vp.GetBool("lora.joined"))
}

func TestPersistJoinedWithoutFile(t *testing.T) {
	assert.NoError(t, persistJoined(nil, true))
}
