package client

import (
	"context"
	"sync"

	"github.com/videre-project/Tracker-sub000/internal/errors"
)

// FakeClient 测试用客户端
//
// 进程/登录/就绪三个等待点都由测试显式放行，事件通过
// EmitGame/EmitMatch 注入，模拟真实客户端的回调线程。
type FakeClient struct {
	mu sync.Mutex

	running   bool
	loggedIn  bool
	ready     bool
	pid       int
	processCh chan struct{}
	loginCh   chan struct{}
	readyCh   chan struct{}

	joined []*EventInfo

	gameSubs  map[string][]GameHandler
	matchSubs map[string][]MatchHandler
	closed    bool
}

// NewFakeClient 创建测试客户端
func NewFakeClient() *FakeClient {
	return &FakeClient{
		pid:       4242,
		processCh: make(chan struct{}),
		loginCh:   make(chan struct{}),
		readyCh:   make(chan struct{}),
		gameSubs:  make(map[string][]GameHandler),
		matchSubs: make(map[string][]MatchHandler),
	}
}

// WaitForProcess 阻塞直到进程存活（电平语义，进程已存活时立即返回）
func (f *FakeClient) WaitForProcess(ctx context.Context) (int, error) {
	f.mu.Lock()
	if f.running {
		pid := f.pid
		f.mu.Unlock()
		return pid, nil
	}
	ch := f.processCh
	f.mu.Unlock()

	select {
	case <-ch:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.pid, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// WaitForLogin 阻塞直到用户已登录
func (f *FakeClient) WaitForLogin(ctx context.Context) error {
	f.mu.Lock()
	if f.loggedIn {
		f.mu.Unlock()
		return nil
	}
	ch := f.loginCh
	f.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForReady 阻塞直到客户端报告就绪
func (f *FakeClient) WaitForReady(ctx context.Context) error {
	f.mu.Lock()
	if f.ready {
		f.mu.Unlock()
		return nil
	}
	ch := f.readyCh
	f.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning 检查进程是否存活
func (f *FakeClient) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// JoinedEvents 返回预设的已加入赛事
func (f *FakeClient) JoinedEvents(ctx context.Context) ([]*EventInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil, errors.New(errors.ErrClientGone)
	}
	return f.joined, nil
}

// SubscribeGame 订阅对局事件
func (f *FakeClient) SubscribeGame(gameID string, h GameHandler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New(errors.ErrClientGone)
	}
	f.gameSubs[gameID] = append(f.gameSubs[gameID], h)
	idx := len(f.gameSubs[gameID]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.gameSubs[gameID]
		if idx < len(subs) {
			subs[idx] = nil
		}
	}, nil
}

// SubscribeMatch 订阅比赛事件
func (f *FakeClient) SubscribeMatch(matchID string, h MatchHandler) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New(errors.ErrClientGone)
	}
	f.matchSubs[matchID] = append(f.matchSubs[matchID], h)
	idx := len(f.matchSubs[matchID]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.matchSubs[matchID]
		if idx < len(subs) {
			subs[idx] = nil
		}
	}, nil
}

// Close 断开连接
func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.running = false
	return nil
}

// 以下为测试侧控制方法

// SignalProcess 标记进程存活并放行等待者
func (f *FakeClient) SignalProcess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	close(f.processCh)
	f.processCh = make(chan struct{})
}

// SignalLogin 标记已登录并放行等待者
func (f *FakeClient) SignalLogin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedIn = true
	ch := f.loginCh
	f.loginCh = make(chan struct{})
	close(ch)
}

// SignalReady 标记就绪并放行等待者
func (f *FakeClient) SignalReady() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = true
	ch := f.readyCh
	f.readyCh = make(chan struct{})
	close(ch)
}

// Crash 模拟客户端进程崩溃
func (f *FakeClient) Crash() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.loggedIn = false
	f.ready = false
}

// SetJoined 预设已加入的赛事
func (f *FakeClient) SetJoined(events []*EventInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = events
}

// EmitGame 向订阅者注入一条对局事件
func (f *FakeClient) EmitGame(gameID string, ev GameEvent) {
	f.mu.Lock()
	subs := append([]GameHandler(nil), f.gameSubs[gameID]...)
	f.mu.Unlock()

	for _, h := range subs {
		if h != nil {
			h(ev)
		}
	}
}

// EmitMatch 向订阅者注入一条比赛事件
func (f *FakeClient) EmitMatch(matchID string, ev MatchEvent) {
	f.mu.Lock()
	subs := append([]MatchHandler(nil), f.matchSubs[matchID]...)
	f.mu.Unlock()

	for _, h := range subs {
		if h != nil {
			h(ev)
		}
	}
}

// GameSubscriberCount 当前对局订阅者数量（用于断言取消订阅）
func (f *FakeClient) GameSubscriberCount(gameID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.gameSubs[gameID] {
		if h != nil {
			n++
		}
	}
	return n
}
