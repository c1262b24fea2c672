package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ujianku/ujianku-backend/internal/middleware"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
	"github.com/ujianku/ujianku-backend/internal/response"
	"github.com/ujianku/ujianku-backend/internal/service"
	"github.com/ujianku/ujianku-backend/internal/validator"
)

// StudentExamHandler handles the student-facing exam session endpoints.
// The exam is never taken from the URL; it always comes from the token, so
// a student can only ever act on the exam they logged into.
type StudentExamHandler struct {
	sessionService *service.ExamSessionService
	examService    *service.ExamService
}

// NewStudentExamHandler creates a new StudentExamHandler.
func NewStudentExamHandler(sessionService *service.ExamSessionService, examService *service.ExamService) *StudentExamHandler {
	return &StudentExamHandler{
		sessionService: sessionService,
		examService:    examService,
	}
}

// StartExam godoc
// POST /api/v1/student/exam/start
// Opens the session, or resumes it if one already exists. The start
// timestamp is assigned server-side and never changes on repeat calls.
func (h *StudentExamHandler) StartExam(c *gin.Context) {
	examID, studentID, ok := h.sessionIdentity(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Start(c.Request.Context(), examID, studentID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetExamState godoc
// GET /api/v1/student/exam/state
// Read-only session view: status, remaining time, autosaved answers, and
// the final result once completed.
func (h *StudentExamHandler) GetExamState(c *gin.Context) {
	examID, studentID, ok := h.sessionIdentity(c)
	if !ok {
		return
	}

	view, err := h.sessionService.Status(c.Request.Context(), examID, studentID)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// SubmitExam godoc
// POST /api/v1/student/exam/submit
// Grades and finalizes the session. Safe to retry: repeat submissions
// return the stored result instead of regrading.
func (h *StudentExamHandler) SubmitExam(c *gin.Context) {
	examID, studentID, ok := h.sessionIdentity(c)
	if !ok {
		return
	}

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), examID, studentID, req.Answers)
	if err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// AutosaveAnswer godoc
// POST /api/v1/student/exam/autosave
// Stores a single answer in the hot-path cache so a crashed client can
// resume, and so the deadline worker has something to grade.
func (h *StudentExamHandler) AutosaveAnswer(c *gin.Context) {
	examID, studentID, ok := h.sessionIdentity(c)
	if !ok {
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.Autosave(c.Request.Context(), examID, studentID, req.Question, req.Answer); err != nil {
		h.failSession(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// GetExamPaper godoc
// GET /api/v1/student/exam/paper
// Serves the exam paper PDF.
func (h *StudentExamHandler) GetExamPaper(c *gin.Context) {
	examID, _, ok := h.sessionIdentity(c)
	if !ok {
		return
	}

	path, err := h.examService.PaperPath(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.File(path)
}

func (h *StudentExamHandler) sessionIdentity(c *gin.Context) (uuid.UUID, int, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, 0, false
	}

	examID, err := uuid.Parse(claims.ExamID)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return uuid.Nil, 0, false
	}
	return examID, claims.UserID, true
}

func (h *StudentExamHandler) failSession(c *gin.Context, err error) {
	var completed *service.AlreadyCompletedError
	var invalid *service.AnswerValidationError

	switch {
	case errors.As(err, &completed):
		response.FailWithData(c, http.StatusConflict, response.ErrAlreadyCompleted, completed.Result)
	case errors.As(err, &invalid):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, invalid.Fields)
	case errors.Is(err, service.ErrExamNotGraded):
		response.Fail(c, http.StatusConflict, response.ErrExamNotGraded)
	case errors.Is(err, service.ErrDeadlineExceeded):
		response.Fail(c, http.StatusConflict, response.ErrDeadlineExceeded)
	case errors.Is(err, service.ErrSessionNotOpen):
		response.Fail(c, http.StatusConflict, response.ErrNotFound)
	case errors.Is(err, repository.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
