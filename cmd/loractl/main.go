package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/wfunc/loracam/internal/at"
	"github.com/wfunc/loracam/internal/config"
	"github.com/wfunc/loracam/internal/console"
	"github.com/wfunc/loracam/internal/database"
	"github.com/wfunc/loracam/internal/hardware"
	"github.com/wfunc/loracam/internal/logger"
	"github.com/wfunc/loracam/internal/lorawan"
	"github.com/wfunc/loracam/internal/service"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "配置文件路径")
		port       = flag.String("port", "", "串口设备，覆盖配置 (auto 自动检测)")
		mock       = flag.Bool("mock", false, "使用模拟模组")
		record     = flag.Bool("record", false, "把链路事件写入数据库")
	)
	flag.Parse()

	fmt.Println("LoRa 调试终端")

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		return 1
	}
	cfg := config.Get()
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *mock {
		cfg.Serial.MockMode = true
	}

	// 终端模式日志只写文件
	logCfg := cfg.Log
	logCfg.Output = "file"
	if err := logger.Init(&logCfg); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		return 1
	}
	defer logger.Sync()

	fmt.Println("当前配置:")
	fmt.Printf(" - DEV_EUI: %s\n", cfg.LoRa.DevEUI)
	fmt.Printf(" - APP_EUI: %s\n", cfg.LoRa.AppEUI)
	fmt.Printf(" - APP_KEY: %s\n", cfg.LoRa.AppKey)

	transport, err := hardware.OpenTransport(&cfg.Serial)
	if err != nil {
		fmt.Printf("打开串口失败: %v\n", err)
		return 1
	}
	fmt.Println("串口已打开。")

	sess := &session{}
	var recorder lorawan.EventRecorder
	if *record && cfg.Database.Enabled {
		events, err := openEventLog(&cfg.Database)
		if err != nil {
			fmt.Printf("事件日志不可用: %v\n", err)
		} else {
			sess.events = events
			recorder = events
		}
	}

	sess.driver = lorawan.NewDriver(transport, lorawan.Options{
		Trace:    at.NewSwitchTrace(at.NewWriterTrace(os.Stdout), cfg.LoRa.Trace),
		Recorder: recorder,
		Logger:   logger.WithModule("lora"),
		Join: lorawan.JoinOptions{
			MaxPolls:     cfg.LoRa.Join.MaxPolls,
			PollInterval: cfg.LoRa.Join.PollInterval,
			SuccessCodes: cfg.LoRa.Join.SuccessCodes,
		},
		StrictUplink: cfg.LoRa.StrictUplink,
	})
	defer sess.close()

	// 中断时同样释放串口并写入缓冲的事件
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n已中断。")
		sess.close()
		os.Exit(130)
	}()

	term := console.New(sess.driver, os.Stdin, os.Stdout, console.Options{
		Credentials: func() lorawan.Credentials {
			lc := config.Get().LoRa
			return lorawan.Credentials{DevEUI: lc.DevEUI, AppEUI: lc.AppEUI, AppKey: lc.AppKey, Region: lc.Region}
		},
		ListPorts: hardware.ListPorts,
		Logger:    logger.WithModule("console"),
	})
	if err := term.Run(); err != nil {
		logger.Error("终端异常退出", zap.Error(err))
		return 1
	}
	return 0
}

// session 终端会话持有的资源
type session struct {
	driver *lorawan.Driver
	events *service.LinkEventService
	once   sync.Once
}

// close 关闭串口，写入缓冲的链路事件并关闭数据库，可重复调用
func (s *session) close() {
	s.once.Do(func() {
		if s.driver != nil {
			s.driver.Close()
			fmt.Println("串口已关闭。")
		}
		if s.events != nil {
			s.events.Stop()
			if err := database.Close(); err != nil {
				logger.Warn("关闭数据库失败", zap.Error(err))
			}
		}
		logger.Sync()
	})
}

func openEventLog(cfg *config.DatabaseConfig) (*service.LinkEventService, error) {
	if err := database.Init(cfg); err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(); err != nil {
		database.Close()
		return nil, err
	}
	return service.NewLinkEventService(database.GetDB()), nil
}
