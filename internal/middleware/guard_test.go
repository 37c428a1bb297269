package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videre-project/Tracker-sub000/internal/client"
	"github.com/videre-project/Tracker-sub000/internal/config"
	"github.com/videre-project/Tracker-sub000/internal/errors"
	"github.com/videre-project/Tracker-sub000/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// readyProvider 启动一个已就绪的会话提供者
func readyProvider(t *testing.T) (*session.Provider, *client.FakeClient) {
	t.Helper()
	fake := client.NewFakeClient()
	p := session.NewProvider(fake, config.ClientConfig{
		ProcessPollInterval: 10 * time.Millisecond,
		TeardownTimeout:     50 * time.Millisecond,
		RetryDelay:          10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go p.Run(ctx)

	fake.SignalProcess()
	fake.SignalLogin()
	fake.SignalReady()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	_, err := p.WaitUntilReady(waitCtx)
	require.NoError(t, err)
	return p, fake
}

// idleProvider 创建未运行重连循环的提供者，始终未就绪
func idleProvider() *session.Provider {
	return session.NewProvider(client.NewFakeClient(), config.ClientConfig{
		ProcessPollInterval: 10 * time.Millisecond,
	})
}

func doRequest(p *session.Provider, h GuardedHandler) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/t", NewGuard(p, 100*time.Millisecond).Wrap(h))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGuardPassThrough(t *testing.T) {
	p, _ := readyProvider(t)

	w := doRequest(p, func(c *gin.Context) error {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return nil
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuardMapsErrorCode(t *testing.T) {
	p, _ := readyProvider(t)

	w := doRequest(p, func(c *gin.Context) error {
		return errors.New(errors.ErrNotFound, "对局不存在")
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(errors.ErrNotFound), body["code"])
	assert.Equal(t, "对局不存在", body["details"])
}

func TestGuardRetriesOnceAfterRecovery(t *testing.T) {
	p, _ := readyProvider(t)

	calls := 0
	w := doRequest(p, func(c *gin.Context) error {
		calls++
		if calls == 1 {
			return errors.New(errors.ErrClientGone)
		}
		c.JSON(http.StatusOK, gin.H{"calls": calls})
		return nil
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, calls)
}

func TestGuardTransientWithoutRecoveryReturns503(t *testing.T) {
	p := idleProvider()

	calls := 0
	w := doRequest(p, func(c *gin.Context) error {
		calls++
		return errors.New(errors.ErrClientGone)
	})

	// 未就绪时不重试，直接返回服务不可用
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 1, calls)
}

func TestGuardTransientRetryStillFailing(t *testing.T) {
	p, _ := readyProvider(t)

	calls := 0
	w := doRequest(p, func(c *gin.Context) error {
		calls++
		return errors.New(errors.ErrClientNotReady)
	})

	// 恰好重试一次，不会无限循环
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 2, calls)
}

func TestGuardCrashFlipsReadyState(t *testing.T) {
	p, fake := readyProvider(t)

	fake.Crash()
	w := doRequest(p, func(c *gin.Context) error {
		return errors.New(errors.ErrClientGone)
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, p.CheckAndUpdateReadyState())
}

func TestGuardPreservesWrittenResponse(t *testing.T) {
	p, _ := readyProvider(t)

	w := doRequest(p, func(c *gin.Context) error {
		c.JSON(http.StatusOK, gin.H{"partial": true})
		return errors.New(errors.ErrDatabase)
	})

	// 已写出的响应不被改写
	assert.Equal(t, http.StatusOK, w.Code)
}
