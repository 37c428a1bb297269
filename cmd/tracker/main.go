package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/videre-project/Tracker-sub000/internal/api"
	"github.com/videre-project/Tracker-sub000/internal/client"
	"github.com/videre-project/Tracker-sub000/internal/config"
	"github.com/videre-project/Tracker-sub000/internal/database"
	"github.com/videre-project/Tracker-sub000/internal/errors"
	"github.com/videre-project/Tracker-sub000/internal/logger"
	"github.com/videre-project/Tracker-sub000/internal/repository"
	"github.com/videre-project/Tracker-sub000/internal/session"
	"github.com/videre-project/Tracker-sub000/internal/tracker"
	ws "github.com/videre-project/Tracker-sub000/internal/websocket"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 追踪器服务实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	remote   *client.RemoteClient
	provider *session.Provider
	writer   *tracker.LogWriter
	tracker  *tracker.Tracker
	hub      *ws.Hub
	httpSrv  *http.Server

	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("tracker %s (build %s, commit %s)\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.GetLogger().Fatal("服务启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.GetLogger().Error("服务关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.GetLogger().Info("追踪器已安全关闭")
}

// NewServer 创建服务实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动全部组件
func (s *Server) Start() error {
	s.logger.Info("正在启动对局追踪器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode))

	if err := s.initDatabase(); err != nil {
		return err
	}
	s.initComponents()
	s.startServices()

	// 监听配置热更新，追踪参数对之后创建的对账器生效
	config.Watch(func(newCfg *config.Config) {
		s.tracker.UpdateConfig(newCfg.Tracker)
		s.logger.Info("配置已更新",
			zap.Duration("absorb_timeout", newCfg.Tracker.AbsorbTimeout))
	})

	s.logger.Info("追踪器启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
		zap.String("bridge", s.cfg.Client.BridgeURL))
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}
	return nil
}

// initComponents 组装各组件
func (s *Server) initComponents() {
	db := database.GetDB()

	s.remote = client.NewRemoteClient(s.cfg.Client)
	s.provider = session.NewProvider(s.remote, s.cfg.Client)

	games := repository.NewGameRepository(db)
	s.writer = tracker.NewLogWriter(games, repository.NewGameLogRepository(db), s.cfg.Tracker)
	s.tracker = tracker.NewTracker(s.remote, s.provider, s.cfg.Tracker, s.writer,
		repository.NewEventRepository(db),
		repository.NewMatchRepository(db),
		games)

	s.hub = ws.NewHub(logger.GetModuleLogger("websocket"))

	if s.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(db, s.provider, s.tracker, s.hub, s.cfg, logger.GetModuleLogger("api"))
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Engine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
}

// startServices 启动长驻任务
func (s *Server) startServices() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.provider.Run(s.ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.writer.Run(s.ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tracker.Run(s.ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()

	// 客户端状态每次翻转时向状态页推送快照
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pushStatusLoop()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
		}
	}()
}

// pushStatusLoop 订阅就绪状态变化并推送状态快照
func (s *Server) pushStatusLoop() {
	for {
		ch := s.provider.StateChanged()
		select {
		case <-ch:
			st := s.tracker.CurrentStatus()
			s.hub.PushStatus(st)
			logger.LogClientState(st.ClientReady, s.currentPID())
		case <-s.ctx.Done():
			return
		}
	}
}

// currentPID 当前会话的进程号，无会话时为0
func (s *Server) currentPID() int {
	if sess := s.provider.Current(); sess != nil {
		return sess.PID
	}
	return 0
}

// WaitForShutdown 等待退出信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	close(s.shutdownCh)
}

// Shutdown 优雅关闭
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先停HTTP入口，再停长驻任务
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
	}

	s.cancel()

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-shutdownCtx.Done():
		s.logger.Warn("等待长驻任务退出超时")
	}

	// 销毁当前会话并断开事件桥
	if sess := s.provider.Current(); sess != nil {
		sess.Dispose()
	}
	if err := s.remote.Close(); err != nil {
		s.logger.Warn("关闭事件桥连接失败", zap.Error(err))
	}

	if err := database.Close(); err != nil {
		return errors.Wrap(err, errors.ErrDatabase, "关闭数据库失败")
	}

	time.Sleep(100 * time.Millisecond)
	logger.Sync()
	return nil
}
