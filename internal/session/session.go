package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session 一次使用外部客户端的尝试
//
// 每轮重连都会创建新的Session，旧的只会被销毁，不会被复用。
type Session struct {
	ID        string
	PID       int
	StartedAt time.Time

	disposeOnce  sync.Once
	disposed     chan struct{}
	teardownOnce sync.Once
	torndown     chan struct{}
}

// NewSession 创建会话
func NewSession(pid int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		PID:       pid,
		StartedAt: time.Now(),
		disposed:  make(chan struct{}),
		torndown:  make(chan struct{}),
	}
}

// Dispose 请求销毁会话（幂等）
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		close(s.disposed)
	})
}

// Disposed 会话被销毁时关闭
func (s *Session) Disposed() <-chan struct{} {
	return s.disposed
}

// IsDisposed 检查会话是否已被销毁
func (s *Session) IsDisposed() bool {
	select {
	case <-s.disposed:
		return true
	default:
		return false
	}
}

// FinishTeardown 消费方完成清理后调用（幂等）
func (s *Session) FinishTeardown() {
	s.teardownOnce.Do(func() {
		close(s.torndown)
	})
}

// TornDown 会话清理完成时关闭
func (s *Session) TornDown() <-chan struct{} {
	return s.torndown
}
