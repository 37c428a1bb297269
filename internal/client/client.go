// Package client 定义与外部游戏客户端之间的窄契约。
//
// 追踪器只依赖这里声明的接口：进程生命周期等待、登录/就绪信号、
// 以及按对局/比赛订阅的纯数据事件流。SDK内部的远程调用机制不在
// 本包范围内。
package client

import (
	"context"
)

// GameHandler 对局事件回调
//
// 回调在客户端自己的通知线程上触发，可能与其他回调并发。
type GameHandler func(ev GameEvent)

// MatchHandler 比赛事件回调
type MatchHandler func(ev MatchEvent)

// Client 外部游戏客户端连接
type Client interface {
	// WaitForProcess 阻塞直到可观察到客户端进程，返回进程ID
	WaitForProcess(ctx context.Context) (int, error)

	// WaitForLogin 阻塞直到用户完成登录
	WaitForLogin(ctx context.Context) error

	// WaitForReady 阻塞直到客户端报告初始化完成
	WaitForReady(ctx context.Context) error

	// IsRunning 检查客户端进程当前是否存活
	IsRunning() bool

	// JoinedEvents 枚举当前已加入的赛事（服务晚于客户端启动时热接入用）
	JoinedEvents(ctx context.Context) ([]*EventInfo, error)

	// SubscribeGame 订阅对局事件流，返回取消订阅函数
	SubscribeGame(gameID string, h GameHandler) (func(), error)

	// SubscribeMatch 订阅比赛事件流，返回取消订阅函数
	SubscribeMatch(matchID string, h MatchHandler) (func(), error)

	// Close 断开连接并释放资源
	Close() error
}
