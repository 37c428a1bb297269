package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/videre-project/Tracker-sub000/internal/config"
	"github.com/videre-project/Tracker-sub000/internal/errors"
	"github.com/videre-project/Tracker-sub000/internal/logger"
)

// envelope 事件桥的消息信封
type envelope struct {
	Type    string       `json:"type"`
	PID     int          `json:"pid,omitempty"`
	GameID  string       `json:"game_id,omitempty"`
	MatchID string       `json:"match_id,omitempty"`
	Events  []*EventInfo `json:"events,omitempty"`
	Game    *GameEvent   `json:"game_event,omitempty"`
	Match   *MatchEvent  `json:"match_event,omitempty"`
}

// 信封类型
const (
	envHello      = "hello"
	envLogin      = "login"
	envReady      = "ready"
	envJoined     = "joined"
	envGameEvent  = "game_event"
	envMatchEvent = "match_event"
)

// RemoteClient 通过本机事件桥消费外部游戏客户端
//
// 游戏客户端进程起来后会在本机开一个WebSocket桥，依次推送
// hello（带进程号）、login、ready，随后是成员快照和对局/比赛
// 事件流。连不上桥即视为进程不存在。
type RemoteClient struct {
	cfg config.ClientConfig
	log *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	running   bool
	loggedIn  bool
	ready     bool
	pid       int
	joined    []*EventInfo
	processCh chan struct{}
	loginCh   chan struct{}
	readyCh   chan struct{}

	gameSubs  map[string][]GameHandler
	matchSubs map[string][]MatchHandler
	closed    bool
}

// NewRemoteClient 创建事件桥客户端
func NewRemoteClient(cfg config.ClientConfig) *RemoteClient {
	return &RemoteClient{
		cfg:       cfg,
		log:       logger.GetModuleLogger("client"),
		processCh: make(chan struct{}),
		loginCh:   make(chan struct{}),
		readyCh:   make(chan struct{}),
		gameSubs:  make(map[string][]GameHandler),
		matchSubs: make(map[string][]MatchHandler),
	}
}

// WaitForProcess 阻塞直到事件桥可连接并报告进程号
func (r *RemoteClient) WaitForProcess(ctx context.Context) (int, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return 0, errors.New(errors.ErrClientGone)
		}
		if r.running {
			pid := r.pid
			r.mu.Unlock()
			return pid, nil
		}
		ch := r.processCh
		connected := r.conn != nil
		r.mu.Unlock()

		if !connected {
			if err := r.dial(ctx); err != nil {
				select {
				case <-time.After(r.cfg.ProcessPollInterval):
					continue
				case <-ctx.Done():
					return 0, ctx.Err()
				}
			}
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// WaitForLogin 阻塞直到用户已登录
func (r *RemoteClient) WaitForLogin(ctx context.Context) error {
	return r.waitFlag(ctx, func() (bool, <-chan struct{}) {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.loggedIn, r.loginCh
	})
}

// WaitForReady 阻塞直到客户端报告就绪
func (r *RemoteClient) WaitForReady(ctx context.Context) error {
	return r.waitFlag(ctx, func() (bool, <-chan struct{}) {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.ready, r.readyCh
	})
}

// waitFlag 等待某个状态标志（电平语义）
func (r *RemoteClient) waitFlag(ctx context.Context, state func() (bool, <-chan struct{})) error {
	for {
		ok, ch := state()
		if ok {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// IsRunning 检查事件桥连接是否存活
func (r *RemoteClient) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// JoinedEvents 返回桥推送的最新成员快照
func (r *RemoteClient) JoinedEvents(ctx context.Context) ([]*EventInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil, errors.New(errors.ErrClientGone)
	}
	return r.joined, nil
}

// SubscribeGame 订阅对局事件流，返回取消订阅函数
func (r *RemoteClient) SubscribeGame(gameID string, h GameHandler) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New(errors.ErrClientGone)
	}
	r.gameSubs[gameID] = append(r.gameSubs[gameID], h)
	idx := len(r.gameSubs[gameID]) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.gameSubs[gameID]
		if idx < len(subs) {
			subs[idx] = nil
		}
	}, nil
}

// SubscribeMatch 订阅比赛事件流，返回取消订阅函数
func (r *RemoteClient) SubscribeMatch(matchID string, h MatchHandler) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New(errors.ErrClientGone)
	}
	r.matchSubs[matchID] = append(r.matchSubs[matchID], h)
	idx := len(r.matchSubs[matchID]) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.matchSubs[matchID]
		if idx < len(subs) {
			subs[idx] = nil
		}
	}, nil
}

// Close 断开事件桥
func (r *RemoteClient) Close() error {
	r.mu.Lock()
	r.closed = true
	conn := r.conn
	r.conn = nil
	r.markDownLocked()
	r.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// dial 连接事件桥并启动读取循环
func (r *RemoteClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.cfg.BridgeURL, nil)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return errors.New(errors.ErrClientGone)
	}
	r.conn = conn
	r.mu.Unlock()

	r.log.Info("事件桥已连接", zap.String("url", r.cfg.BridgeURL))
	go r.readLoop(conn)
	return nil
}

// readLoop 读取并分发信封，连接断开时把全部状态翻回离线
func (r *RemoteClient) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
			r.markDownLocked()
		}
		r.mu.Unlock()
		r.log.Warn("事件桥连接断开")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			r.log.Warn("丢弃无法解析的信封", zap.Error(err))
			continue
		}
		r.dispatch(&env)
	}
}

// dispatch 处理单个信封
func (r *RemoteClient) dispatch(env *envelope) {
	switch env.Type {
	case envHello:
		r.mu.Lock()
		r.pid = env.PID
		r.running = true
		close(r.processCh)
		r.processCh = make(chan struct{})
		r.mu.Unlock()

	case envLogin:
		r.mu.Lock()
		r.loggedIn = true
		close(r.loginCh)
		r.loginCh = make(chan struct{})
		r.mu.Unlock()

	case envReady:
		r.mu.Lock()
		r.ready = true
		close(r.readyCh)
		r.readyCh = make(chan struct{})
		r.mu.Unlock()

	case envJoined:
		r.mu.Lock()
		r.joined = env.Events
		r.mu.Unlock()

	case envGameEvent:
		if env.Game == nil {
			return
		}
		r.mu.Lock()
		subs := append([]GameHandler(nil), r.gameSubs[env.GameID]...)
		r.mu.Unlock()
		for _, h := range subs {
			if h != nil {
				h(*env.Game)
			}
		}

	case envMatchEvent:
		if env.Match == nil {
			return
		}
		r.mu.Lock()
		subs := append([]MatchHandler(nil), r.matchSubs[env.MatchID]...)
		r.mu.Unlock()
		for _, h := range subs {
			if h != nil {
				h(*env.Match)
			}
		}

	default:
		r.log.Debug("忽略未知信封类型", zap.String("type", env.Type))
	}
}

// markDownLocked 把全部状态标志翻回离线并唤醒等待者，调用方必须持锁
//
// 等待者被唤醒后重新检查标志，发现离线会回到重连路径，
// 不会挂死在已经断开的连接上。
func (r *RemoteClient) markDownLocked() {
	r.running = false
	r.loggedIn = false
	r.ready = false

	close(r.processCh)
	r.processCh = make(chan struct{})
	close(r.loginCh)
	r.loginCh = make(chan struct{})
	close(r.readyCh)
	r.readyCh = make(chan struct{})
}
