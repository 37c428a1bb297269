package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/videre-project/Tracker-sub000/internal/config"
	"github.com/videre-project/Tracker-sub000/internal/middleware"
	"github.com/videre-project/Tracker-sub000/internal/repository"
	"github.com/videre-project/Tracker-sub000/internal/session"
	"github.com/videre-project/Tracker-sub000/internal/tracker"
	ws "github.com/videre-project/Tracker-sub000/internal/websocket"
)

// Router API路由器
type Router struct {
	engine  *gin.Engine
	guard   *middleware.Guard
	status  *StatusHandler
	history *HistoryHandler
	wsh     *WebSocketHandler
	log     *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(db *gorm.DB, provider *session.Provider, tr *tracker.Tracker, hub *ws.Hub, cfg *config.Config, log *zap.Logger) *Router {
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())
	engine.Use(middleware.CORS())

	guard := middleware.NewGuard(provider, cfg.Client.GateSettleTimeout)

	router := &Router{
		engine:  engine,
		guard:   guard,
		status:  NewStatusHandler(provider, tr),
		history: NewHistoryHandler(
			repository.NewEventRepository(db),
			repository.NewMatchRepository(db),
			repository.NewGameRepository(db),
			repository.NewGameLogRepository(db),
		),
		wsh: NewWebSocketHandler(hub, log),
		log: log,
	}

	router.setupRoutes()
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 状态推送
	r.engine.GET("/ws/status", r.wsh.StatusWebSocket)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/status", r.status.GetStatus)

		v1.GET("/events", r.guard.Wrap(r.history.ListEvents))
		v1.GET("/matches", r.guard.Wrap(r.history.ListMatches))
		v1.GET("/games", r.guard.Wrap(r.history.ListGames))
		v1.GET("/games/:id/log", r.guard.Wrap(r.history.GetGameLog))
	}
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Engine 获取Gin引擎
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
