package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/testschool/testschool-backend/internal/services"
	"github.com/testschool/testschool-backend/internal/types"
)

type QuestionHandler struct {
	questionService services.QuestionService
}

func NewQuestionHandler(questionService services.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

// GET /api/questions?page=&limit=
func (qh *QuestionHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	result, err := qh.questionService.List(c.Request.Context(), page, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, result)
}

type createQuestionRequest struct {
	Level        string   `json:"level" binding:"required"`
	Competency   string   `json:"competency" binding:"required,min=2"`
	Text         string   `json:"text" binding:"required,min=4"`
	Choices      []string `json:"choices" binding:"required,min=2,dive,min=1"`
	CorrectIndex *int     `json:"correctIndex" binding:"required,min=0"`
}

// POST /api/questions
func (qh *QuestionHandler) Create(c *gin.Context) {
	var req createQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	question, err := qh.questionService.Create(
		c.Request.Context(),
		types.Level(req.Level),
		req.Competency,
		req.Text,
		req.Choices,
		*req.CorrectIndex,
	)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidLevel),
			errors.Is(err, services.ErrInvalidCorrectIndex),
			errors.Is(err, services.ErrTooFewChoices):
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
		default:
			RespondError(c, http.StatusInternalServerError, "create_failed", err)
		}
		return
	}
	c.JSON(http.StatusCreated, question)
}
