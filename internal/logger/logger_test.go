package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/loracam/internal/config"
	"go.uber.org/zap/zapcore"
)

// Init 只生效一次，所有断言放在同一个测试里
func TestInitFileOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(&config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: "file",
		File: config.LogFileConfig{
			Path:       dir,
			Filename:   "loracam.log",
			MaxSize:    1,
			MaxAge:     1,
			MaxBackups: 1,
		},
		Modules: map[string]string{"at": "debug"},
	}))

	Info("server started")
	Debug("hidden at info level")
	LogATExchange("AT+DRX?", []string{"+DRX=0,", "OK"}, nil)
	LogLinkEvent("UPLINK", "rejected")
	Error("uplink failed")
	require.NoError(t, Sync())

	content, err := os.ReadFile(filepath.Join(dir, "loracam.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "server started")
	assert.NotContains(t, string(content), "hidden at info level")
	// 模块单独的 debug 级别生效，且写入同一文件
	assert.Contains(t, string(content), "at_exchange")
	assert.Contains(t, string(content), `"logger":"at"`)
	assert.Contains(t, string(content), "link_event")
	// 包级便捷方法的调用位置指向调用方
	assert.Contains(t, string(content), "logger_test.go")

	errs, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "uplink failed")
	assert.NotContains(t, string(errs), "server started")

	SetLevel("error")
	assert.Equal(t, zapcore.ErrorLevel, atomicLevel.Level())
	SetLevel("info")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}
