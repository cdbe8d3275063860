package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/services"
	"github.com/testschool/testschool-backend/internal/types"
)

type ExamHandler struct {
	log         *logger.Logger
	examService services.ExamService
}

func NewExamHandler(log *logger.Logger, examService services.ExamService) *ExamHandler {
	return &ExamHandler{
		log:         log.With("handler", "ExamHandler"),
		examService: examService,
	}
}

// GET /api/exams/status
func (eh *ExamHandler) Status(c *gin.Context) {
	result, err := eh.examService.Status(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "status_failed", err)
		return
	}
	RespondOK(c, result)
}

// POST /api/exams/start
func (eh *ExamHandler) Start(c *gin.Context) {
	result, err := eh.examService.Start(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrExamLocked) {
			RespondError(c, http.StatusForbidden, "exam_locked", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "start_failed", err)
		return
	}
	RespondOK(c, result)
}

// GET /api/exams/questions?step=STEP_n
func (eh *ExamHandler) Questions(c *gin.Context) {
	step := types.Step(c.DefaultQuery("step", string(types.StepOne)))
	questions, err := eh.examService.Questions(c.Request.Context(), step)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStep) {
			RespondError(c, http.StatusBadRequest, "invalid_step", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "questions_failed", err)
		return
	}
	RespondOK(c, gin.H{"questions": questions})
}

type submitRequest struct {
	Answers []services.SubmittedAnswer `json:"answers" binding:"required"`
}

// POST /api/exams/submit
func (eh *ExamHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	result, err := eh.examService.Submit(c.Request.Context(), req.Answers)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "submit_failed", err)
		return
	}
	RespondOK(c, result)
}
