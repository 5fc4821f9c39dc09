package api

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/loracam/internal/logger"
	"github.com/wfunc/loracam/internal/middleware"
	"github.com/wfunc/loracam/internal/utils"
	ws "github.com/wfunc/loracam/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RouterOptions 路由依赖，Events、Hub、DB 可为空
type RouterOptions struct {
	LoRa   *LoRaAPI
	Events *EventAPI
	Hub    *ws.Hub
	Auth   *middleware.AuthMiddleware
	DB     *gorm.DB
	Logger *zap.Logger
}

// Router API路由器
type Router struct {
	engine *gin.Engine
	opts   RouterOptions
	log    *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(opts RouterOptions) *Router {
	engine := gin.New()

	// 全局中间件
	engine.Use(requestID())
	engine.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.LogPanic(recovered, debug.Stack())
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "服务内部错误",
		})
	}))
	engine.Use(requestLogger())

	if opts.Logger == nil {
		opts.Logger = logger.WithModule("api")
	}
	if opts.Auth == nil {
		opts.Auth = middleware.NewAuthMiddleware(nil)
	}

	router := &Router{
		engine: engine,
		opts:   opts,
		log:    opts.Logger,
	}

	router.setupRoutes()

	return router
}

// requestLogger 请求日志
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 接口文档
	registerDocsRoutes(r.engine)

	v1 := r.engine.Group("/api/v1")
	read := v1.Group("")
	read.Use(r.opts.Auth.RequireAuth())
	write := v1.Group("")
	write.Use(r.opts.Auth.RequireRole(utils.RoleOperator))

	if r.opts.LoRa != nil {
		r.opts.LoRa.RegisterRoutes(read, write)
	}
	if r.opts.Events != nil {
		r.opts.Events.RegisterRoutes(read, write)
	}

	if r.opts.Hub != nil {
		trace := NewTraceHandler(r.opts.Hub, r.log)
		r.engine.GET("/ws/trace", r.opts.Auth.RequireAuth(), trace.TraceWebSocket)
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	}
	if r.opts.LoRa != nil {
		resp["joined"] = r.opts.LoRa.Joined()
	}

	if r.opts.DB != nil {
		sqlDB, err := r.opts.DB.DB()
		if err == nil {
			err = sqlDB.Ping()
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "unhealthy",
				"message": "数据库连接失败",
			})
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("Starting API server", zap.String("address", addr))
	return r.engine.Run(addr)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
