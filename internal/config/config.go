package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Serial   SerialConfig   `mapstructure:"serial"`
	LoRa     LoRaConfig     `mapstructure:"lora"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置（上下行事件日志）
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SerialConfig 串口配置
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	Backend     string        `mapstructure:"backend"`   // tarm | bugst
	MockMode    bool          `mapstructure:"mock_mode"` // 使用模拟模组，无需硬件
	Mock        MockConfig    `mapstructure:"mock"`
}

// MockConfig 模拟模组行为
type MockConfig struct {
	JoinAfterPolls int    `mapstructure:"join_after_polls"`
	JoinStatus     string `mapstructure:"join_status"`
	Downlink       string `mapstructure:"downlink"`
}

// LoRaConfig LoRaWAN入网与收发配置
type LoRaConfig struct {
	DevEUI       string         `mapstructure:"dev_eui"`
	AppEUI       string         `mapstructure:"app_eui"`
	AppKey       string         `mapstructure:"app_key"`
	Region       int            `mapstructure:"region"`
	Joined       bool           `mapstructure:"joined"` // 入网完成标志，入网成功后回写
	JoinOnStart  bool           `mapstructure:"join_on_start"`
	Trace        bool           `mapstructure:"trace"`
	StrictUplink bool           `mapstructure:"strict_uplink"`
	Join         JoinPollConfig `mapstructure:"join"`
}

// JoinPollConfig 入网状态轮询配置
type JoinPollConfig struct {
	MaxPolls     int           `mapstructure:"max_polls"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	SuccessCodes []string      `mapstructure:"success_codes"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置，Secret为空时控制接口不做认证
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// 设备上的配置文件搜索路径，按顺序查找
var searchPaths = []string{
	"/boot/firmware",
	"/boot",
	"./config",
	".",
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		loaded, v, err = Load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})

	return err
}

// Load 读取配置文件并返回独立的配置实例，不影响全局单例
func Load(configPath string) (*Config, *viper.Viper, error) {
	vp := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		// 不指定类型，json/yaml 均可
		vp.SetConfigName("config")
		for _, p := range searchPaths {
			vp.AddConfigPath(p)
		}
	}

	// 设置环境变量前缀
	vp.SetEnvPrefix("LORACAM")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 如果配置文件不存在，使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	loaded := &Config{}
	if err := vp.Unmarshal(loaded); err != nil {
		return nil, nil, fmt.Errorf("解析配置失败: %w", err)
	}

	return loaded, vp, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s") // 入网轮询最长约100秒
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/loracam.db")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 串口默认配置
	v.SetDefault("serial.port", "/dev/ttyS0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.read_timeout", "1s")
	v.SetDefault("serial.backend", "tarm")
	v.SetDefault("serial.mock_mode", false)
	v.SetDefault("serial.mock.join_after_polls", 2)
	v.SetDefault("serial.mock.join_status", "04")

	// LoRa默认配置
	v.SetDefault("lora.dev_eui", "0000000000000000")
	v.SetDefault("lora.app_eui", "0000000000000000")
	v.SetDefault("lora.app_key", "00000000000000000000000000000000")
	v.SetDefault("lora.region", 3) // AS923-1-JP
	v.SetDefault("lora.joined", false)
	v.SetDefault("lora.join_on_start", true)
	v.SetDefault("lora.trace", true)
	v.SetDefault("lora.strict_uplink", false)
	v.SetDefault("lora.join.max_polls", 30)
	v.SetDefault("lora.join.poll_interval", "2s")
	v.SetDefault("lora.join.success_codes", []string{"03", "04"})

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./data/logs")
	v.SetDefault("log.file.filename", "loracam.log")
	v.SetDefault("log.file.max_size", 10)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("security.jwt.expire_hours", 24)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			mu.Unlock()
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}

		fmt.Println("配置已重新加载:", e.Name)
	})
	v.WatchConfig()
}

// SetJoined 更新入网完成标志并写回当前使用的配置文件
func SetJoined(joined bool) error {
	mu.Lock()
	defer mu.Unlock()

	if cfg != nil {
		cfg.LoRa.Joined = joined
	}
	return persistJoined(v, joined)
}

func persistJoined(vp *viper.Viper, joined bool) error {
	if vp == nil {
		return nil
	}
	vp.Set("lora.joined", joined)

	// 未使用配置文件（纯默认值）时只更新内存
	path := vp.ConfigFileUsed()
	if path == "" {
		return nil
	}

	// 只改文件自身内容，不带入默认值与环境变量
	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	file.Set("lora.joined", joined)
	if err := file.WriteConfig(); err != nil {
		return fmt.Errorf("写回配置文件失败: %w", err)
	}
	return nil
}
