package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/wfunc/loracam/internal/api"
	"github.com/wfunc/loracam/internal/at"
	"github.com/wfunc/loracam/internal/config"
	"github.com/wfunc/loracam/internal/database"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"github.com/wfunc/loracam/internal/hardware"
	"github.com/wfunc/loracam/internal/logger"
	"github.com/wfunc/loracam/internal/lorawan"
	"github.com/wfunc/loracam/internal/middleware"
	"github.com/wfunc/loracam/internal/service"
	"github.com/wfunc/loracam/internal/utils"
	ws "github.com/wfunc/loracam/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	transport *hardware.SerialTransport
	driver    *lorawan.Driver
	trace     *at.SwitchTrace
	hub       *ws.Hub
	events    *service.LinkEventService
	lora      *api.LoRaAPI
	http      *http.Server

	// 关闭控制
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func main() {
	os.Exit(run())
}

func run() int {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		tokenFor    = flag.String("token", "", "为指定调用方签发控制接口令牌后退出")
		tokenRole   = flag.String("role", utils.RoleOperator, "签发令牌的角色 (operator/viewer)")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		return 0
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		return 1
	}
	cfg := config.Get()

	if *tokenFor != "" {
		return issueToken(cfg, *tokenFor, *tokenRole)
	}

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		return 1
	}
	defer logger.Sync()

	server := NewServer(cfg)
	// 任何退出路径都释放串口
	defer server.closeDriver()

	if err := server.Start(); err != nil {
		logger.Error("服务启动失败", zap.Error(err))
		return 1
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务关闭失败", zap.Error(err))
		return 1
	}

	logger.Info("服务已安全关闭")
	return 0
}

// NewServer 创建服务实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动服务
func (s *Server) Start() error {
	s.logger.Info("正在启动LoRa模组服务...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initComponents(); err != nil {
		return err
	}

	s.startServices()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
		zap.String("serial", s.cfg.Serial.Port),
	)
	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	recorders := lorawan.MultiRecorder{}

	if s.cfg.Database.Enabled {
		if err := s.initDatabase(); err != nil {
			return err
		}
		s.events = service.NewLinkEventService(database.GetDB())
		recorders = append(recorders, s.events)
	}

	s.hub = ws.NewHub(logger.WithModule("websocket"))
	recorders = append(recorders, s.hub)

	s.trace = at.NewSwitchTrace(at.MultiTrace{
		at.NewLoggerTrace(logger.WithModule("at")),
		s.hub,
	}, s.cfg.LoRa.Trace)

	transport, err := hardware.OpenTransport(&s.cfg.Serial)
	if err != nil {
		return err
	}
	s.transport = transport

	s.driver = lorawan.NewDriver(transport, lorawan.Options{
		Trace:    s.trace,
		Recorder: recorders,
		Logger:   logger.WithModule("lora"),
		Join: lorawan.JoinOptions{
			MaxPolls:     s.cfg.LoRa.Join.MaxPolls,
			PollInterval: s.cfg.LoRa.Join.PollInterval,
			SuccessCodes: s.cfg.LoRa.Join.SuccessCodes,
		},
		StrictUplink: s.cfg.LoRa.StrictUplink,
	})

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	if err := database.Init(&s.cfg.Database); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// startServices 启动服务
func (s *Server) startServices() {
	s.logger.Info("启动服务...")

	go s.hub.Run()

	var jwtManager *utils.JWTManager
	if secret := s.cfg.Security.JWT.Secret; secret != "" {
		jwtManager = utils.NewJWTManager(secret, time.Duration(s.cfg.Security.JWT.ExpireHours)*time.Hour)
	} else {
		s.logger.Warn("未配置 security.jwt.secret，控制接口不做认证")
	}

	s.lora = api.NewLoRaAPI(s.driver, api.LoRaAPIOptions{
		Credentials: currentCredentials,
		OnJoined: func() error {
			return config.SetJoined(true)
		},
		Joined:  s.cfg.LoRa.Joined,
		Port:    s.cfg.Serial.Port,
		Backend: s.cfg.Serial.Backend,
	}, logger.WithModule("api"))

	opts := api.RouterOptions{
		LoRa:   s.lora,
		Hub:    s.hub,
		Auth:   middleware.NewAuthMiddleware(jwtManager),
		Logger: logger.WithModule("api"),
	}
	if s.events != nil {
		opts.Events = api.NewEventAPI(s.events)
		opts.DB = database.GetDB()
	}
	router := api.NewRouter(opts)

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
			s.cancel()
		}
	}()

	if s.cfg.LoRa.JoinOnStart && !s.cfg.LoRa.Joined {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if s.lora.JoinOnStart() {
				s.logger.Info("启动入网完成")
			} else {
				s.logger.Warn("启动入网未成功，可通过接口重试")
			}
		}()
	}

	s.logger.Info("所有服务启动完成")
}

func currentCredentials() lorawan.Credentials {
	lc := config.Get().LoRa
	return lorawan.Credentials{
		DevEUI: lc.DevEUI,
		AppEUI: lc.AppEUI,
		AppKey: lc.AppKey,
		Region: lc.Region,
	}
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
	)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
	}
}

// Shutdown 优雅关闭服务
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("停止接收新请求...")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
	}

	s.cancel()

	// 关闭串口会让进行中的入网轮询尽快以串口错误结束
	s.closeDriver()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	s.closeComponents()
	return nil
}

// closeDriver 释放串口，可重复调用
func (s *Server) closeDriver() {
	s.closeOnce.Do(func() {
		if s.driver != nil {
			s.driver.Close()
		} else if s.transport != nil {
			s.transport.Close()
		}
	})
}

// closeComponents 关闭组件
func (s *Server) closeComponents() {
	s.logger.Info("关闭组件...")

	s.hub.Stop()

	if s.events != nil {
		s.events.Stop()
	}

	if s.cfg.Database.Enabled {
		if err := database.Close(); err != nil {
			s.logger.Error("关闭数据库失败", zap.Error(err))
		}
	}

	s.logger.Info("所有组件已关闭")
}

// reloadConfig 应用热更新的配置项
func (s *Server) reloadConfig(newCfg *config.Config) {
	s.trace.SetEnabled(newCfg.LoRa.Trace)
	logger.SetLevel(newCfg.Log.Level)

	s.logger.Info("配置重新加载完成",
		zap.Bool("trace", newCfg.LoRa.Trace),
		zap.String("log_level", newCfg.Log.Level))
}

// issueToken 签发控制接口令牌
func issueToken(cfg *config.Config, subject, role string) int {
	if cfg.Security.JWT.Secret == "" {
		fmt.Println("未配置 security.jwt.secret，无需令牌")
		return 1
	}
	if role != utils.RoleOperator && role != utils.RoleViewer {
		fmt.Printf("未知角色: %s\n", role)
		return 1
	}

	manager := utils.NewJWTManager(cfg.Security.JWT.Secret, time.Duration(cfg.Security.JWT.ExpireHours)*time.Hour)
	token, err := manager.GenerateToken(subject, role, cfg.LoRa.DevEUI)
	if err != nil {
		fmt.Printf("签发令牌失败: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("LoRa模组服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
