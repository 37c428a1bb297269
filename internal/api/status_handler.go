package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/videre-project/Tracker-sub000/internal/session"
	"github.com/videre-project/Tracker-sub000/internal/tracker"
)

// StatusHandler 状态处理器
type StatusHandler struct {
	provider *session.Provider
	tracker  *tracker.Tracker
}

// NewStatusHandler 创建状态处理器
func NewStatusHandler(provider *session.Provider, tr *tracker.Tracker) *StatusHandler {
	return &StatusHandler{
		provider: provider,
		tracker:  tr,
	}
}

// StatusResponse 状态响应
type StatusResponse struct {
	tracker.Status
	PID       int    `json:"pid,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// GetStatus 获取追踪器状态快照
//
// 不经过请求守卫：客户端离线时状态接口仍然要可用。
func (h *StatusHandler) GetStatus(c *gin.Context) {
	resp := StatusResponse{Status: h.tracker.CurrentStatus()}
	if sess := h.provider.Current(); sess != nil && !sess.IsDisposed() {
		resp.PID = sess.PID
		resp.SessionID = sess.ID
	}
	c.JSON(http.StatusOK, resp)
}
