package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ahrav/go-scorekeeper/internal/application"
	"github.com/ahrav/go-scorekeeper/internal/domain"
	"github.com/ahrav/go-scorekeeper/internal/ports"
)

// DefaultTopK is the leaderboard page size when k is not given.
const DefaultTopK = 10

// Reads is the query side served by the API. *application.ReadService
// implements it.
type Reads interface {
	GetFeedback(ctx context.Context, answerID int64) (domain.Feedback, error)
	GetMyRank(ctx context.Context, userID int64) (application.RankView, error)
	GetTopK(ctx context.Context, k int) ([]application.RankView, error)
	GetAggregate(ctx context.Context, userID int64) (domain.Aggregate, error)
}

// Rebuilder reloads the leaderboard index. *application.LeaderboardRebuilder
// implements it.
type Rebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}

// FeedbackResponse is the body of GET /v1/feedback/:answerID.
type FeedbackResponse struct {
	ID          string `json:"id"`
	AnswerID    int64  `json:"answer_id"`
	Score       int    `json:"score"`
	Explanation string `json:"explanation"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// AggregateResponse is the body of GET /v1/aggregate/:userID.
type AggregateResponse struct {
	UserID     int64       `json:"user_id"`
	TotalScore int64       `json:"total_score"`
	Tier       domain.Tier `json:"tier"`
	Rank       int64       `json:"rank,omitempty"`
	UpdatedAt  string      `json:"updated_at"`
}

type handlers struct {
	reads     Reads
	rebuilder Rebuilder
	publisher ports.EventPublisher
	health    func(ctx context.Context) error
}

func (h *handlers) healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			respondError(c, http.StatusServiceUnavailable, CodeUnhealthy, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) getFeedback(c *gin.Context) {
	id, ok := pathID(c, "answerID")
	if !ok {
		return
	}
	fb, err := h.reads.GetFeedback(c.Request.Context(), id)
	if err != nil {
		respondLookupError(c, CodeNotScored, err)
		return
	}
	c.JSON(http.StatusOK, FeedbackResponse{
		ID:          fb.ID.String(),
		AnswerID:    fb.AnswerID,
		Score:       fb.Score,
		Explanation: fb.Explanation,
		CreatedAt:   fb.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:   fb.UpdatedAt.UTC().Format(timeLayout),
	})
}

func (h *handlers) getRanking(c *gin.Context) {
	id, ok := pathID(c, "userID")
	if !ok {
		return
	}
	view, err := h.reads.GetMyRank(c.Request.Context(), id)
	if err != nil {
		respondLookupError(c, CodeUnranked, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handlers) getLeaderboard(c *gin.Context) {
	k := DefaultTopK
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > application.MaxTopK {
			respondError(c, http.StatusBadRequest, CodeInvalidK,
				errors.New("k must be an integer between 1 and "+strconv.Itoa(application.MaxTopK)))
			return
		}
		k = n
	}
	views, err := h.reads.GetTopK(c.Request.Context(), k)
	if err != nil {
		respondLookupError(c, CodeUnranked, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": views})
}

func (h *handlers) getAggregate(c *gin.Context) {
	id, ok := pathID(c, "userID")
	if !ok {
		return
	}
	agg, err := h.reads.GetAggregate(c.Request.Context(), id)
	if err != nil {
		respondLookupError(c, CodeNotScored, err)
		return
	}
	c.JSON(http.StatusOK, AggregateResponse{
		UserID:     agg.UserID,
		TotalScore: agg.TotalScore,
		Tier:       agg.Tier,
		Rank:       agg.Rank,
		UpdatedAt:  agg.UpdatedAt.UTC().Format(timeLayout),
	})
}

func (h *handlers) rebuildLeaderboard(c *gin.Context) {
	n, err := h.rebuilder.Rebuild(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, CodeInternal, errors.New("leaderboard rebuild failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": n})
}

// ingestEvent accepts a submission event and returns once it is queued.
// Scoring happens out of band.
func (h *handlers) ingestEvent(c *gin.Context) {
	var ev domain.AnswerEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidEvent, err)
		return
	}
	if ev.EventID == uuid.Nil {
		ev.EventID = uuid.New()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	if err := h.publisher.Publish(c.Request.Context(), ev); err != nil {
		if errors.Is(err, domain.ErrInvalidEvent) {
			respondError(c, http.StatusBadRequest, CodeInvalidEvent, err)
			return
		}
		_ = c.Error(err)
		respondError(c, http.StatusServiceUnavailable, CodeUnavailable, errors.New("event could not be queued"))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"event_id": ev.EventID.String()})
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func pathID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, CodeInvalidID, errors.New(name+" must be a positive integer"))
		return 0, false
	}
	return id, true
}
