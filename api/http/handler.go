package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/forever-free1/kvs/storage"
	"github.com/forever-free1/kvs/watch"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

// heartbeatInterval SSE 心跳间隔
const heartbeatInterval = 30 * time.Second

// ==================== Handler 定义 ====================

// Handler HTTP 请求处理器
type Handler struct {
	// 存储引擎，需要是并发安全的（例如 storage.LockedEngine）
	engine storage.Engine

	// 事件通知中心，可为 nil
	hub *watch.Hub

	logger hclog.Logger
}

// NewHandler 创建新的 Handler
//
// 参数：
//   - engine: 并发安全的存储引擎
//   - hub: 事件通知中心，为 nil 时 /v1/watch 返回 503
//   - logger: 日志，为 nil 时不输出
//
// 返回：
//   - *Handler: Handler 实例
func NewHandler(engine storage.Engine, hub *watch.Hub, logger hclog.Logger) *Handler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handler{
		engine: engine,
		hub:    hub,
		logger: logger,
	}
}

// ==================== API 路由 ====================

// RegisterRoutes 注册所有路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// 健康检查
	r.GET("/health", h.HealthCheck)

	v1 := r.Group("/v1")
	{
		// 键在路径中，空键无法寻址，只能通过本地引擎读写
		kv := v1.Group("/kv")
		{
			kv.PUT("/:key", h.Set)
			kv.GET("/:key", h.Get)
			kv.DELETE("/:key", h.Remove)
		}

		// Watch API (SSE 长连接)
		v1.GET("/watch", h.Watch)
	}
}

// ==================== API 处理函数 ====================

// SetRequest PUT /v1/kv/:key 的请求体
type SetRequest struct {
	Value *string `json:"value" binding:"required"`
}

// ValueResponse GET /v1/kv/:key 的响应体
type ValueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ErrorResponse 错误响应体
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	}
	if sp, ok := h.engine.(storage.StatsProvider); ok {
		stats := sp.Stats()
		resp["keys"] = stats.Keys
		resp["segments"] = stats.Segments
		resp["compactions"] = stats.Compactions
	}
	c.JSON(http.StatusOK, resp)
}

// Set 写入键值对
// PUT /v1/kv/:key  {"value": "..."}
func (h *Handler) Set(c *gin.Context) {
	key := c.Param("key")

	var req SetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	if err := h.engine.Set(key, *req.Value); err != nil {
		h.fail(c, "set", key, err)
		return
	}

	// 写入成功后通知 watcher
	if h.hub != nil {
		h.hub.NotifySet(key, *req.Value)
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok", "key": key})
}

// Get 读取键
// GET /v1/kv/:key
func (h *Handler) Get(c *gin.Context) {
	key := c.Param("key")

	value, ok, err := h.engine.Get(key)
	if err != nil {
		h.fail(c, "get", key, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: storage.ErrKeyNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, ValueResponse{Key: key, Value: value})
}

// Remove 删除键
// DELETE /v1/kv/:key
func (h *Handler) Remove(c *gin.Context) {
	key := c.Param("key")

	if err := h.engine.Remove(key); err != nil {
		h.fail(c, "remove", key, err)
		return
	}

	if h.hub != nil {
		h.hub.NotifyRemove(key)
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok", "key": key})
}

// fail 把引擎错误映射为 HTTP 状态码
func (h *Handler) fail(c *gin.Context, op, key string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("请求失败", "op", op, "key", key, "internal", storage.IsInternal(err), "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// ==================== Watch (SSE) ====================

// Watch 处理 Watch 请求
// GET /v1/watch?prefix=xxx
// 使用 Server-Sent Events (SSE) 推送写入成功后的变更事件
func (h *Handler) Watch(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "watch is disabled"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "streaming not supported"})
		return
	}

	prefix := c.DefaultQuery("prefix", "")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	watcher := h.hub.Watch(prefix, watch.DefaultBufferSize)
	defer h.hub.Unregister(watcher)

	clientGone := c.Request.Context().Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-clientGone:
			return

		case event, ok := <-watcher.Ch:
			if !ok {
				// Hub 已关闭
				return
			}
			data, err := event.JSON()
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "id: %d\ndata: %s\n\n", event.Revision, data)
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// ==================== 服务器 ====================

// Server HTTP 服务器
type Server struct {
	addr    string
	router  *gin.Engine
	handler *Handler
	srv     *http.Server
	logger  hclog.Logger
}

// ServerOption 定义 Server 的配置函数
type ServerOption func(*serverOptions)

type serverOptions struct {
	metrics http.Handler
	logger  hclog.Logger
}

// WithMetrics 在 /metrics 暴露指标
func WithMetrics(h http.Handler) ServerOption {
	return func(o *serverOptions) {
		o.metrics = h
	}
}

// WithLogger 设置服务器日志
func WithLogger(logger hclog.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = logger
	}
}

// NewServer 创建新的 Server
//
// 参数：
//   - addr: 监听地址
//   - engine: 并发安全的存储引擎
//   - hub: 事件通知中心
//   - opts: 可选配置
func NewServer(addr string, engine storage.Engine, hub *watch.Hub, opts ...ServerOption) *Server {
	options := &serverOptions{logger: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(options)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	// 允许 key 中包含编码后的 '/'
	router.UseRawPath = true
	router.Use(gin.Recovery(), requestLogger(options.logger))

	handler := NewHandler(engine, hub, options.logger)
	handler.RegisterRoutes(router)
	if options.metrics != nil {
		router.GET("/metrics", gin.WrapH(options.metrics))
	}

	return &Server{
		addr:    addr,
		router:  router,
		handler: handler,
		logger:  options.logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start 启动服务器，阻塞直到出错或 Shutdown
// Shutdown 导致的退出返回 nil
func (s *Server) Start() error {
	s.logger.Info("HTTP 服务启动", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP 服务关闭", "addr", s.addr)
	return s.srv.Shutdown(ctx)
}

// ServeHTTP 实现 http.Handler 接口
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger 以 debug 级别记录每个请求
func requestLogger(logger hclog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

var _ http.Handler = (*Server)(nil)
