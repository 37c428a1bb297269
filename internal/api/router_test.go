package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/videre-project/Tracker-sub000/internal/client"
	"github.com/videre-project/Tracker-sub000/internal/config"
	"github.com/videre-project/Tracker-sub000/internal/logger"
	"github.com/videre-project/Tracker-sub000/internal/models"
	"github.com/videre-project/Tracker-sub000/internal/repository"
	"github.com/videre-project/Tracker-sub000/internal/session"
	"github.com/videre-project/Tracker-sub000/internal/tracker"
	ws "github.com/videre-project/Tracker-sub000/internal/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// apiFixture 路由器测试夹具
type apiFixture struct {
	engine *gin.Engine
	db     *gorm.DB
	event  *models.Event
	match  *models.Match
	game   *models.Game
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db := repository.TestDB(t)
	event, match, game := repository.SeedTestHierarchy(t, db)

	cfg := &config.Config{
		Client: config.ClientConfig{
			ProcessPollInterval: 10 * time.Millisecond,
			GateSettleTimeout:   100 * time.Millisecond,
		},
		Tracker: config.TrackerConfig{
			AbsorbTimeout: time.Millisecond,
			LogQueueSize:  16,
		},
	}

	fake := client.NewFakeClient()
	provider := session.NewProvider(fake, cfg.Client)
	games := repository.NewGameRepository(db)
	writer := tracker.NewLogWriter(games, repository.NewGameLogRepository(db), cfg.Tracker)
	tr := tracker.NewTracker(fake, provider, cfg.Tracker, writer,
		repository.NewEventRepository(db),
		repository.NewMatchRepository(db),
		games)
	hub := ws.NewHub(logger.GetModuleLogger("websocket"))

	router := NewRouter(db, provider, tr, hub, cfg, logger.GetModuleLogger("api"))
	return &apiFixture{
		engine: router.Engine(),
		db:     db,
		event:  event,
		match:  match,
		game:   game,
	}
}

func (f *apiFixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.engine.ServeHTTP(w, req)

	var body map[string]interface{}
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t)
	w, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestGetStatus(t *testing.T) {
	f := newAPIFixture(t)
	w, body := f.get(t, "/api/v1/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["client_ready"])
	assert.Equal(t, float64(0), body["active_matches"])
}

func TestListEvents(t *testing.T) {
	f := newAPIFixture(t)
	w, body := f.get(t, "/api/v1/events")
	assert.Equal(t, http.StatusOK, w.Code)

	events := body["events"].([]interface{})
	require.Len(t, events, 1)
	first := events[0].(map[string]interface{})
	assert.Equal(t, f.event.EventID, first["event_id"])
}

func TestListMatches(t *testing.T) {
	f := newAPIFixture(t)
	w, body := f.get(t, fmt.Sprintf("/api/v1/matches?event_id=%s", f.event.EventID))
	assert.Equal(t, http.StatusOK, w.Code)

	matches := body["matches"].([]interface{})
	require.Len(t, matches, 1)
	first := matches[0].(map[string]interface{})
	assert.Equal(t, f.match.MatchID, first["match_id"])
}

func TestListMatchesRequiresEventID(t *testing.T) {
	f := newAPIFixture(t)
	w, _ := f.get(t, "/api/v1/matches")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMatchesUnknownEvent(t *testing.T) {
	f := newAPIFixture(t)
	w, _ := f.get(t, "/api/v1/matches?event_id=no-such-event")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListGames(t *testing.T) {
	f := newAPIFixture(t)
	w, body := f.get(t, fmt.Sprintf("/api/v1/games?match_id=%s", f.match.MatchID))
	assert.Equal(t, http.StatusOK, w.Code)

	games := body["games"].([]interface{})
	require.Len(t, games, 1)
}

func TestGetGameLog(t *testing.T) {
	f := newAPIFixture(t)

	logs := repository.NewGameLogRepository(f.db)
	require.NoError(t, logs.Append(context.Background(), &models.GameLogEntry{
		GameRef: f.game.ID, Seq: 0, Timestamp: 1, Kind: "action",
		Payload: models.JSONMap{"name": "Lightning Bolt"},
	}))

	w, body := f.get(t, fmt.Sprintf("/api/v1/games/%s/log", f.game.GameID))
	assert.Equal(t, http.StatusOK, w.Code)

	entries := body["entries"].([]interface{})
	require.Len(t, entries, 1)
	first := entries[0].(map[string]interface{})
	assert.Equal(t, "action", first["kind"])
}

func TestGetGameLogUnknownGame(t *testing.T) {
	f := newAPIFixture(t)
	w, _ := f.get(t, "/api/v1/games/no-such-game/log")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
