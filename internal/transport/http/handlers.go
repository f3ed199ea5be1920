package http

import (
	"net/http"
	"strconv"

	"contest-service/internal/app"

	"github.com/gin-gonic/gin"
)

// Handler adapts REST calls onto the contest service.
type Handler struct {
	service *app.ContestService
}

func NewHandler(service *app.ContestService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) CreateContest(c *gin.Context) {
	var in app.CreateContestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid contest payload: "+err.Error())
		return
	}
	contest, err := h.service.CreateContest(c.Request.Context(), c.GetString(userIDKey), in)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusCreated, contest, "contest created")
}

func (h *Handler) GetContest(c *gin.Context) {
	contest, err := h.service.GetContest(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, contest, "")
}

func (h *Handler) UpdateQuestions(c *gin.Context) {
	var in questionsPayload
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid questions payload")
		return
	}
	contest, err := h.service.UpdateQuestions(c.Request.Context(), c.Param("id"), c.GetString(userIDKey), in.QuestionIDs)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, contest, "questions updated")
}

func (h *Handler) StartContest(c *gin.Context) {
	contest, err := h.service.StartContest(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, contest, "contest started")
}

func (h *Handler) EndContest(c *gin.Context) {
	contest, err := h.service.EndContest(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, contest, "contest ended")
}

func (h *Handler) Join(c *gin.Context) {
	var in joinPayload
	if err := c.ShouldBindJSON(&in); err != nil || in.Contest == "" {
		badRequest(c, "contest id or join code is required")
		return
	}
	participant, err := h.service.Join(c.Request.Context(), in.Contest, c.GetString(userIDKey))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, participant, "joined")
}

func (h *Handler) Leave(c *gin.Context) {
	if err := h.service.Leave(c.Request.Context(), c.Param("id"), c.GetString(userIDKey)); err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, nil, "left contest")
}

func (h *Handler) EnterLive(c *gin.Context) {
	window, err := h.service.EnterLive(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, window, "")
}

func (h *Handler) ListAttempts(c *gin.Context) {
	attempts, err := h.service.ListAttempts(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, attempts, "")
}

func (h *Handler) Submit(c *gin.Context) {
	var in submitPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, "invalid submission payload")
			return
		}
	}
	req := app.SubmitRequest{
		ContestID: c.Param("id"),
		UserID:    c.GetString(userIDKey),
		Attempts:  in.inputs(),
		Trigger:   app.TriggerManual,
	}
	if in.Auto {
		req.Trigger = app.TriggerExpiry
	}
	outcome, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, outcome, "submitted")
}

func (h *Handler) Rank(c *gin.Context) {
	rank, err := h.service.Rank(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, rank, "")
}

func (h *Handler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	board, err := h.service.Leaderboard(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, board, "")
}

func (h *Handler) UserStats(c *gin.Context) {
	stats, err := h.service.GetUserStats(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, http.StatusOK, stats, "")
}
