// Package session 维护到外部游戏客户端的唯一连接。
//
// Provider 的重连循环保证任意时刻至多存在一个就绪会话；
// 就绪状态的变化通过通知而不是轮询暴露给消费方。
package session

import (
	"context"
	"sync"
	"time"

	"github.com/videre-project/Tracker-sub000/internal/client"
	"github.com/videre-project/Tracker-sub000/internal/config"
	"github.com/videre-project/Tracker-sub000/internal/errors"
	"github.com/videre-project/Tracker-sub000/internal/logger"
	"go.uber.org/zap"
)

// Provider 会话提供者
type Provider struct {
	client client.Client
	cfg    config.ClientConfig
	logger *zap.Logger

	mu      sync.Mutex
	ready   bool
	current *Session
	changed chan struct{} // 每次就绪状态变化时关闭并更换

	gate         chan struct{} // 容量1的互斥门，重连迭代持有
	gateReleased chan struct{} // 每次释放门时关闭并更换
}

// NewProvider 创建会话提供者
func NewProvider(c client.Client, cfg config.ClientConfig) *Provider {
	return &Provider{
		client:       c,
		cfg:          cfg,
		logger:       logger.GetModuleLogger("session"),
		changed:      make(chan struct{}),
		gate:         make(chan struct{}, 1),
		gateReleased: make(chan struct{}),
	}
}

// Run 运行重连循环，直到ctx取消
//
// 进程崩溃与登录/就绪超时不会向外抛错，只会把就绪标志翻回
// false并重试；短暂延迟避免热循环。
func (p *Provider) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.setReady(false)
			return
		}

		release, err := p.AcquireGate(ctx)
		if err != nil {
			return
		}

		sess, err := p.connect(ctx)
		release()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("建立客户端会话失败，稍后重试",
				zap.Error(err),
				zap.Duration("retry_delay", p.cfg.RetryDelay))
			select {
			case <-time.After(p.cfg.RetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		// 会话就绪，监控进程直到消失或被销毁
		p.watch(ctx, sess)
	}
}

// connect 执行单次重连迭代
func (p *Provider) connect(ctx context.Context) (*Session, error) {
	// (1) 标记未就绪并通知等待者
	p.setReady(false)

	// (2) 销毁旧会话并有界等待其清理完成
	p.mu.Lock()
	prev := p.current
	p.current = nil
	p.mu.Unlock()

	if prev != nil {
		prev.Dispose()
		select {
		case <-prev.TornDown():
		case <-time.After(p.cfg.TeardownTimeout):
			// 超时只记日志，不阻止重建
			p.logger.Warn("旧会话清理超时，继续重建",
				zap.String("session_id", prev.ID))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// (3) 阻塞直到客户端进程可观察
	pid, err := p.client.WaitForProcess(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrClientGone)
	}

	sess := NewSession(pid)

	// 登录/就绪等待与提前销毁信号竞争，避免挂死在已死的客户端上
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sess.Disposed():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	// (4) 等待登录与客户端初始化完成
	if err := p.waitBounded(waitCtx, p.cfg.LoginTimeout, p.client.WaitForLogin); err != nil {
		return nil, errors.Wrap(err, errors.ErrClientLoginWait)
	}
	if err := p.waitBounded(waitCtx, p.cfg.ReadyTimeout, p.client.WaitForReady); err != nil {
		return nil, errors.Wrap(err, errors.ErrClientReadyWait)
	}

	// (5) 成功：发布新会话并标记就绪
	p.mu.Lock()
	p.current = sess
	p.ready = true
	p.broadcastLocked()
	p.mu.Unlock()

	p.logger.Info("客户端会话就绪",
		zap.String("session_id", sess.ID),
		zap.Int("pid", pid))

	return sess, nil
}

// waitBounded 执行一次可配置超时的等待，timeout为0表示不限时
func (p *Provider) waitBounded(ctx context.Context, timeout time.Duration, wait func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return wait(ctx)
}

// watch 监控就绪会话，进程消失或会话被销毁时返回
func (p *Provider) watch(ctx context.Context, sess *Session) {
	ticker := time.NewTicker(p.cfg.ProcessPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.setReady(false)
			sess.Dispose()
			return
		case <-sess.Disposed():
			p.setReady(false)
			return
		case <-ticker.C:
			if !p.client.IsRunning() {
				p.logger.Warn("检测到客户端进程消失",
					zap.String("session_id", sess.ID),
					zap.Int("pid", sess.PID))
				p.setReady(false)
				sess.Dispose()
				return
			}
		}
	}
}

// IsReady 检查客户端当前是否就绪
func (p *Provider) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Current 获取当前会话，未就绪时返回nil
func (p *Provider) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// CheckAndUpdateReadyState 幂等地按底层连接状态重算就绪标志
//
// 供轮询方（如请求处理器）在观察到故障时主动触发状态翻转，
// 不必等监控ticker走到下一拍。
func (p *Provider) CheckAndUpdateReadyState() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	alive := p.client.IsRunning()
	if p.ready && !alive {
		p.ready = false
		if p.current != nil {
			p.current.Dispose()
		}
		p.broadcastLocked()
	}
	return p.ready
}

// StateChanged 返回当前的状态变化通知通道
//
// 下一次就绪状态翻转时关闭；消费方每次等待前需重新获取。
func (p *Provider) StateChanged() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

// WaitUntilReady 挂起直到客户端就绪或ctx取消
func (p *Provider) WaitUntilReady(ctx context.Context) (*Session, error) {
	for {
		p.mu.Lock()
		if p.ready {
			sess := p.current
			p.mu.Unlock()
			return sess, nil
		}
		ch := p.changed
		p.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WaitUntilDisconnected 挂起直到客户端离线或ctx取消
func (p *Provider) WaitUntilDisconnected(ctx context.Context) error {
	for {
		p.mu.Lock()
		if !p.ready {
			p.mu.Unlock()
			return nil
		}
		ch := p.changed
		p.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AcquireGate 获取互斥门，返回释放函数
//
// 重连迭代全程持有；请求守卫通过"获取后立即释放"得知一次
// 重连尝试已经结束，而不必长期占有门。
func (p *Provider) AcquireGate(ctx context.Context) (func(), error) {
	select {
	case p.gate <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-p.gate
				p.mu.Lock()
				ch := p.gateReleased
				p.gateReleased = make(chan struct{})
				p.mu.Unlock()
				close(ch)
			})
		}
		return release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GateReleased 返回当前的门释放通知通道
func (p *Provider) GateReleased() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gateReleased
}

// setReady 更新就绪标志并在变化时广播
func (p *Provider) setReady(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready != v {
		p.ready = v
		p.broadcastLocked()
	}
}

// broadcastLocked 关闭并更换变化通知通道，调用方必须持锁
func (p *Provider) broadcastLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}
