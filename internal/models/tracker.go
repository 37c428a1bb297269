package models

import (
	"database/sql/driver"
	"encoding/json"
)

// 对局状态
const (
	GameStatusPlaying  = "playing"
	GameStatusFinished = "finished"
)

// 比赛状态
const (
	MatchStatusPlaying   = "playing"
	MatchStatusCompleted = "completed"
)

// Event 赛事表
type Event struct {
	BaseModel
	EventID     string  `gorm:"uniqueIndex;size:64;not null" json:"event_id"`
	Name        string  `gorm:"size:200" json:"name"`
	Format      string  `gorm:"size:50" json:"format"`
	Description string  `gorm:"size:500" json:"description"`

	// 关联（级联删除）
	Matches []Match `gorm:"foreignKey:EventRef;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"matches,omitempty"`
}

// Match 比赛表
type Match struct {
	BaseModel
	MatchID        string        `gorm:"uniqueIndex;size:64;not null" json:"match_id"`
	EventRef       uint          `gorm:"not null;index" json:"event_ref"`
	Status         string        `gorm:"size:20;default:'playing'" json:"status"` // playing, completed
	RegisteredDeck Deck          `gorm:"type:json" json:"registered_deck"`
	Results        PlayerResults `gorm:"type:json" json:"results,omitempty"` // 比赛结束后每位玩家一条

	// 关联（级联删除）
	Games []Game `gorm:"foreignKey:MatchRef;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"games,omitempty"`
}

// Game 对局表
type Game struct {
	BaseModel
	GameID         string      `gorm:"uniqueIndex;size:64;not null" json:"game_id"`
	MatchRef       uint        `gorm:"not null;index" json:"match_ref"`
	Number         int         `gorm:"default:1" json:"number"` // 比赛中的第几局
	Status         string      `gorm:"size:20;default:'playing'" json:"status"` // playing, finished
	SideboardDelta CardDeltas  `gorm:"type:json" json:"sideboard_delta,omitempty"` // 进入本局前的换备牌
	Results        GameResults `gorm:"type:json" json:"results,omitempty"`

	// 关联（级联删除）
	LogEntries []GameLogEntry `gorm:"foreignKey:GameRef;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"log_entries,omitempty"`
}

// GameLogEntry 对局日志表
//
// 同一对局内按 Seq 严格递增，时间戳相同的事件保持确认顺序。
type GameLogEntry struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	GameRef   uint    `gorm:"not null;uniqueIndex:idx_game_seq,priority:1" json:"game_ref"`
	Seq       int     `gorm:"not null;uniqueIndex:idx_game_seq,priority:2" json:"seq"`
	Timestamp int64   `gorm:"not null;index" json:"timestamp"`
	Kind      string  `gorm:"size:30;not null" json:"kind"`
	Payload   JSONMap `gorm:"type:json" json:"payload"`
}

// TableName 指定GameLogEntry表名
func (GameLogEntry) TableName() string {
	return "game_log_entries"
}

// GamePlayerResult 单局中单个玩家的结果
type GamePlayerResult struct {
	Player string `json:"player"`
	Won    bool   `json:"won"`
}

// GameResults 单局全部玩家的结果
type GameResults []GamePlayerResult

// Value 实现 driver.Valuer 接口
func (g GameResults) Value() (driver.Value, error) {
	if g == nil {
		return nil, nil
	}
	return json.Marshal(g)
}

// Scan 实现 sql.Scanner 接口
func (g *GameResults) Scan(value interface{}) error {
	if value == nil {
		*g = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		strVal, ok := value.(string)
		if !ok {
			return nil
		}
		bytes = []byte(strVal)
	}
	return json.Unmarshal(bytes, g)
}

// PlayerResult 整场比赛中单个玩家的聚合结果
type PlayerResult struct {
	Player     string `json:"player"`
	GameWins   int    `json:"game_wins"`
	GameLosses int    `json:"game_losses"`
	Winner     bool   `json:"winner"`
}

// PlayerResults 比赛全部玩家的聚合结果
type PlayerResults []PlayerResult

// Value 实现 driver.Valuer 接口
func (p PlayerResults) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan 实现 sql.Scanner 接口
func (p *PlayerResults) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		strVal, ok := value.(string)
		if !ok {
			return nil
		}
		bytes = []byte(strVal)
	}
	return json.Unmarshal(bytes, p)
}
