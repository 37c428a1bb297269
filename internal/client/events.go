package client

import (
	"github.com/videre-project/Tracker-sub000/internal/models"
)

// GameEventKind 对局事件类型（封闭集合）
type GameEventKind string

const (
	GamePhaseChanged    GameEventKind = "phase"
	GameTurnChanged     GameEventKind = "turn"
	GameZoneChanged     GameEventKind = "zone"
	GameLifeChanged     GameEventKind = "life"
	GameLogMessage      GameEventKind = "log"
	GameActionPerformed GameEventKind = "action"
	GameActionUndone    GameEventKind = "undo"
	GameActionCancelled GameEventKind = "cancel"
	GamePromptChanged   GameEventKind = "prompt"
	GameStatusChanged   GameEventKind = "status"
	GameResultsChanged  GameEventKind = "result"
)

// GameEvent 对局事件
//
// 客户端SDK的富对象模型到达这里之前已被拍平成纯数据，
// 追踪器不持有SDK活对象。
type GameEvent struct {
	Kind      GameEventKind  `json:"kind"`
	Timestamp int64          `json:"timestamp"` // 交互时间戳
	Payload   models.JSONMap `json:"payload,omitempty"`

	// Kind为status时有效
	Finished bool `json:"finished,omitempty"`

	// Kind为result时有效
	Results models.GameResults `json:"results,omitempty"`
}

// MatchEventKind 比赛事件类型
type MatchEventKind string

const (
	MatchGameStarted      MatchEventKind = "game_started"
	MatchSideboardChanged MatchEventKind = "sideboard_changed"
	MatchStateChanged     MatchEventKind = "state_changed"
)

// MatchEvent 比赛事件
type MatchEvent struct {
	Kind MatchEventKind `json:"kind"`

	// Kind为game_started时有效
	Game *GameInfo `json:"game,omitempty"`

	// Kind为sideboard_changed时有效
	Deck *models.Deck `json:"deck,omitempty"`

	// Kind为state_changed时有效
	Completed bool `json:"completed,omitempty"`
}

// GameInfo 对局成员信息
type GameInfo struct {
	GameID  string `json:"game_id"`
	MatchID string `json:"match_id"`
	Number  int    `json:"number"`
}

// MatchInfo 比赛成员信息
type MatchInfo struct {
	MatchID string      `json:"match_id"`
	EventID string      `json:"event_id"`
	Players []string    `json:"players"`
	Deck    models.Deck `json:"deck"`
	Games   []GameInfo  `json:"games"`
}

// EventInfo 赛事成员信息
type EventInfo struct {
	EventID string      `json:"event_id"`
	Name    string      `json:"name"`
	Format  string      `json:"format"`
	Matches []MatchInfo `json:"matches"`
}
