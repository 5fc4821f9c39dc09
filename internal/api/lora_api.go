package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"github.com/wfunc/loracam/internal/lorawan"
	"go.uber.org/zap"
)

// 原始AT命令的等待时间
const (
	defaultATWait = 500 * time.Millisecond
	maxATWait     = 10 * time.Second
)

// LoRaAPIOptions LoRa控制接口参数
type LoRaAPIOptions struct {
	// Credentials 每次入网时读取，配置热加载后立即生效
	Credentials func() lorawan.Credentials
	// OnJoined 入网成功后回调，用于回写入网完成标志
	OnJoined func() error
	Joined   bool
	Port     string
	Backend  string
}

// LoRaAPI LoRa模组控制接口，是驱动的唯一持有者，所有模组操作串行执行
type LoRaAPI struct {
	mu     sync.Mutex
	driver *lorawan.Driver
	opts   LoRaAPIOptions
	logger *zap.Logger

	stateMu      sync.RWMutex
	joined       bool
	lastJoin     *joinResponse
	lastUplink   *time.Time
	lastDownlink *time.Time
}

// NewLoRaAPI 创建LoRa控制接口
func NewLoRaAPI(driver *lorawan.Driver, opts LoRaAPIOptions, logger *zap.Logger) *LoRaAPI {
	return &LoRaAPI{
		driver: driver,
		opts:   opts,
		logger: logger,
		joined: opts.Joined,
	}
}

// RegisterRoutes 注册路由，读操作与写操作分别挂载不同的中间件
func (api *LoRaAPI) RegisterRoutes(read, write *gin.RouterGroup) {
	read.GET("/lora/status", api.GetStatus)

	lora := write.Group("/lora")
	{
		lora.POST("/join", api.Join)        // 入网
		lora.POST("/uplink", api.Uplink)    // 发送上行
		lora.GET("/downlink", api.Downlink) // 查询下行
		lora.POST("/at", api.ExecuteAT)     // 原始AT命令
	}
}

type joinRequest struct {
	Region *int `json:"region"`
}

type joinResponse struct {
	Joined     bool   `json:"joined"`
	State      string `json:"state"`
	Polls      int    `json:"polls"`
	StatusCode string `json:"status_code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	At         int64  `json:"at"`
}

type uplinkRequest struct {
	Text    string `json:"text" binding:"required"`
	Confirm bool   `json:"confirm"`
}

type atRequest struct {
	Command string `json:"command" binding:"required"`
	WaitMs  int    `json:"wait_ms"`
}

// lock 抢占模组，已有操作进行中时返回 false
func (api *LoRaAPI) lock(c *gin.Context) bool {
	if api.mu.TryLock() {
		return true
	}
	c.JSON(http.StatusConflict, apperrors.NewErrorResponse(
		apperrors.New(apperrors.ErrDeviceBusy, "模组正在执行其他操作"), getRequestID(c)))
	return false
}

// GetStatus 查询链路状态
func (api *LoRaAPI) GetStatus(c *gin.Context) {
	api.stateMu.RLock()
	defer api.stateMu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"joined":        api.joined,
		"last_join":     api.lastJoin,
		"last_uplink":   api.lastUplink,
		"last_downlink": api.lastDownlink,
		"port":          api.opts.Port,
		"backend":       api.opts.Backend,
	})
}

// Join 使用配置中的凭据入网，可临时指定频段
func (api *LoRaAPI) Join(c *gin.Context) {
	var req joinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}

	creds := lorawan.Credentials{}
	if api.opts.Credentials != nil {
		creds = api.opts.Credentials()
	}
	if req.Region != nil {
		creds.Region = *req.Region
	}

	if !api.lock(c) {
		return
	}
	resp, err := api.doJoin(creds)
	api.mu.Unlock()

	if err != nil {
		api.logger.Error("入网失败", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// doJoin 执行入网并更新状态，调用方持有 mu
func (api *LoRaAPI) doJoin(creds lorawan.Credentials) (*joinResponse, error) {
	result, err := api.driver.Join(creds)

	resp := &joinResponse{
		Joined:     result.Joined(),
		State:      result.State.String(),
		Polls:      result.Polls,
		StatusCode: result.StatusCode,
		DurationMs: result.Duration.Milliseconds(),
		At:         time.Now().UnixMilli(),
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}

	api.stateMu.Lock()
	api.lastJoin = resp
	if err == nil {
		api.joined = result.Joined()
	}
	api.stateMu.Unlock()

	if err == nil && result.Joined() && api.opts.OnJoined != nil {
		if perr := api.opts.OnJoined(); perr != nil {
			api.logger.Warn("回写入网标志失败", zap.Error(perr))
		}
	}
	return resp, err
}

// Uplink 发送上行文本
func (api *LoRaAPI) Uplink(c *gin.Context) {
	var req uplinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	if !api.lock(c) {
		return
	}
	outcome, err := api.driver.SendUplink(req.Text, req.Confirm)
	sent := err == nil && api.driver.Accepted(outcome)
	api.mu.Unlock()

	if err != nil {
		respondError(c, err)
		return
	}

	if sent {
		now := time.Now()
		api.stateMu.Lock()
		api.lastUplink = &now
		api.stateMu.Unlock()
	}

	c.JSON(http.StatusOK, gin.H{
		"sent":    sent,
		"outcome": outcome.String(),
		"confirm": req.Confirm,
	})
}

// Downlink 查询一次下行缓冲
func (api *LoRaAPI) Downlink(c *gin.Context) {
	if !api.lock(c) {
		return
	}
	text, ok, err := api.driver.ReceiveData()
	api.mu.Unlock()

	if err != nil {
		respondError(c, err)
		return
	}

	if ok {
		now := time.Now()
		api.stateMu.Lock()
		api.lastDownlink = &now
		api.stateMu.Unlock()
	}

	c.JSON(http.StatusOK, gin.H{
		"received": ok,
		"text":     text,
	})
}

// ExecuteAT 发送原始AT命令
func (api *LoRaAPI) ExecuteAT(c *gin.Context) {
	var req atRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	cmd := strings.TrimSpace(req.Command)
	if !strings.HasPrefix(strings.ToUpper(cmd), "AT") {
		respondBadRequest(c, "命令必须以AT开头")
		return
	}

	wait := defaultATWait
	if req.WaitMs > 0 {
		wait = time.Duration(req.WaitMs) * time.Millisecond
	}
	if wait > maxATWait {
		wait = maxATWait
	}

	if !api.lock(c) {
		return
	}
	lines, err := api.driver.SendAT(cmd, wait)
	api.mu.Unlock()

	if err != nil {
		respondError(c, err)
		return
	}

	if lines == nil {
		lines = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"command": cmd,
		"lines":   lines,
	})
}

// Joined 当前是否已入网
func (api *LoRaAPI) Joined() bool {
	api.stateMu.RLock()
	defer api.stateMu.RUnlock()
	return api.joined
}

// JoinOnStart 启动时入网，与接口调用共用同一把锁
func (api *LoRaAPI) JoinOnStart() bool {
	creds := lorawan.Credentials{}
	if api.opts.Credentials != nil {
		creds = api.opts.Credentials()
	}

	api.mu.Lock()
	resp, err := api.doJoin(creds)
	api.mu.Unlock()

	if err != nil {
		api.logger.Error("启动入网失败", zap.Error(err))
		return false
	}
	return resp.Joined
}
