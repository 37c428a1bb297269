package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/videre-project/Tracker-sub000/internal/errors"
	"github.com/videre-project/Tracker-sub000/internal/logger"
	"github.com/videre-project/Tracker-sub000/internal/session"
)

const defaultSettleTimeout = 5 * time.Second

// GuardedHandler 返回错误的处理函数，由守卫统一转成HTTP响应
type GuardedHandler func(c *gin.Context) error

// Guard 请求守卫
//
// 包装API处理函数：瞬时客户端故障触发一次就绪状态重算，
// 等待当前重连尝试结束后恰好重试一次；仍失败则返回503，
// 其余错误按错误码映射状态码。
type Guard struct {
	provider *session.Provider
	settle   time.Duration
	log      *zap.Logger
}

// NewGuard 创建请求守卫，settle为0时使用默认上限
func NewGuard(provider *session.Provider, settle time.Duration) *Guard {
	if settle <= 0 {
		settle = defaultSettleTimeout
	}
	return &Guard{
		provider: provider,
		settle:   settle,
		log:      logger.GetModuleLogger("guard"),
	}
}

// Wrap 包装处理函数
func (g *Guard) Wrap(h GuardedHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h(c)
		if err == nil {
			return
		}

		// 响应已部分写出时无法重试也无法改写状态码，只能记录
		if c.Writer.Written() {
			g.log.Warn("响应写出后处理函数报错",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			c.Abort()
			return
		}

		if errors.IsTransient(err) {
			// 先幂等重算就绪标志，让提供者立即感知故障
			g.provider.CheckAndUpdateReadyState()

			if g.waitForSettle(c) && g.provider.IsReady() {
				g.log.Info("客户端恢复就绪，重试请求",
					zap.String("path", c.Request.URL.Path))
				retryErr := h(c)
				if retryErr == nil {
					return
				}
				err = retryErr
				if c.Writer.Written() {
					g.log.Warn("重试时响应写出后报错",
						zap.String("path", c.Request.URL.Path),
						zap.Error(err))
					c.Abort()
					return
				}
			}
		}

		g.respondError(c, err)
	}
}

// waitForSettle 等待当前重连尝试结束
//
// 通过"获取互斥门后立即释放"观察到一次完整的重连迭代边界，
// 不长期占有门；请求取消时放弃等待。
func (g *Guard) waitForSettle(c *gin.Context) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), g.settle)
	defer cancel()

	release, err := g.provider.AcquireGate(ctx)
	if err != nil {
		return false
	}
	release()
	return true
}

// respondError 把错误转成统一的JSON响应
func (g *Guard) respondError(c *gin.Context, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError && !errors.IsTransient(appErr) {
		g.log.Error("请求处理失败",
			zap.String("path", c.Request.URL.Path),
			zap.Int("code", int(appErr.Code)),
			zap.Error(appErr),
			zap.String("stack", appErr.GetStack()))
	} else {
		g.log.Warn("请求被拒绝",
			zap.String("path", c.Request.URL.Path),
			zap.Int("code", int(appErr.Code)),
			zap.Error(appErr))
	}

	c.AbortWithStatusJSON(status, gin.H{
		"code":    int(appErr.Code),
		"message": appErr.Message,
		"details": appErr.Details,
	})
}
