package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/videre-project/Tracker-sub000/internal/errors"
	"github.com/videre-project/Tracker-sub000/internal/repository"
)

// HistoryHandler 历史记录查询处理器
type HistoryHandler struct {
	events  repository.EventRepository
	matches repository.MatchRepository
	games   repository.GameRepository
	logs    repository.GameLogRepository
}

// NewHistoryHandler 创建历史记录处理器
func NewHistoryHandler(events repository.EventRepository, matches repository.MatchRepository, games repository.GameRepository, logs repository.GameLogRepository) *HistoryHandler {
	return &HistoryHandler{
		events:  events,
		matches: matches,
		games:   games,
		logs:    logs,
	}
}

// pagination 从查询参数解析分页
func pagination(c *gin.Context) *repository.Pagination {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return repository.NewPagination(page, pageSize)
}

// ListEvents 列出已追踪的赛事
func (h *HistoryHandler) ListEvents(c *gin.Context) error {
	p := pagination(c)
	events, err := h.events.List(c.Request.Context(), p)
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabase)
	}

	c.JSON(http.StatusOK, gin.H{
		"events":     events,
		"pagination": p,
	})
	return nil
}

// ListMatches 列出赛事下的比赛
func (h *HistoryHandler) ListMatches(c *gin.Context) error {
	eventID := c.Query("event_id")
	if eventID == "" {
		return errors.New(errors.ErrInvalidParam, "缺少event_id参数")
	}

	ctx := c.Request.Context()
	event, err := h.events.FindByEventID(ctx, eventID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.New(errors.ErrNotFound, "赛事不存在")
		}
		return errors.Wrap(err, errors.ErrDatabase)
	}

	p := pagination(c)
	matches, err := h.matches.FindByEvent(ctx, event.ID, p)
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabase)
	}

	c.JSON(http.StatusOK, gin.H{
		"matches":    matches,
		"pagination": p,
	})
	return nil
}

// ListGames 列出比赛下的全部对局
func (h *HistoryHandler) ListGames(c *gin.Context) error {
	matchID := c.Query("match_id")
	if matchID == "" {
		return errors.New(errors.ErrInvalidParam, "缺少match_id参数")
	}

	ctx := c.Request.Context()
	match, err := h.matches.FindByMatchID(ctx, matchID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.New(errors.ErrNotFound, "比赛不存在")
		}
		return errors.Wrap(err, errors.ErrDatabase)
	}

	games, err := h.games.FindByMatch(ctx, match.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabase)
	}

	c.JSON(http.StatusOK, gin.H{
		"games": games,
	})
	return nil
}

// GetGameLog 按提交顺序返回一局的完整日志
func (h *HistoryHandler) GetGameLog(c *gin.Context) error {
	gameID := c.Param("id")

	ctx := c.Request.Context()
	game, err := h.games.FindByGameID(ctx, gameID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.New(errors.ErrNotFound, "对局不存在")
		}
		return errors.Wrap(err, errors.ErrDatabase)
	}

	entries, err := h.logs.FindByGame(ctx, game.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabase)
	}

	c.JSON(http.StatusOK, gin.H{
		"game":    game,
		"entries": entries,
	})
	return nil
}
