package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ujianku/ujianku-backend/internal/middleware"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
	"github.com/ujianku/ujianku-backend/internal/response"
	"github.com/ujianku/ujianku-backend/internal/service"
	"github.com/ujianku/ujianku-backend/internal/validator"
)

// ExamHandler handles the guru-facing exam management endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// CreateExam godoc
// POST /api/v1/guru/exams
func (h *ExamHandler) CreateExam(c *gin.Context) {
	guruID, ok := guruIdentity(c)
	if !ok {
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), guruID, &req)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, exam)
}

// ListExams godoc
// GET /api/v1/guru/exams?page=1&per_page=20
func (h *ExamHandler) ListExams(c *gin.Context) {
	guruID, ok := guruIdentity(c)
	if !ok {
		return
	}

	page, perPage := pageParams(c)
	exams, total, err := h.examService.List(c.Request.Context(), guruID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, exams, paginationFor(page, perPage, total))
}

// GetExam godoc
// GET /api/v1/guru/exams/:id
func (h *ExamHandler) GetExam(c *gin.Context) {
	guruID, examID, ok := h.examIdentity(c)
	if !ok {
		return
	}

	exam, err := h.examService.Get(c.Request.Context(), examID, guruID)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam":   exam,
		"graded": exam.Graded(),
	})
}

// UpdateExam godoc
// PUT /api/v1/guru/exams/:id
// Changing the question count or choice set clears the answer key; the
// stored key no longer matches the new shape.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	guruID, examID, ok := h.examIdentity(c)
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), examID, guruID, &req)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, exam)
}

// DeleteExam godoc
// DELETE /api/v1/guru/exams/:id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	guruID, examID, ok := h.examIdentity(c)
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), examID, guruID); err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// UploadAnswerKey godoc
// POST /api/v1/guru/exams/:id/key (multipart, field "file", .csv or .xlsx)
// The whole file is rejected on the first invalid row; a partial key would
// silently mis-grade every student.
func (h *ExamHandler) UploadAnswerKey(c *gin.Context) {
	guruID, examID, ok := h.examIdentity(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer file.Close()

	key, err := h.examService.UploadAnswerKey(c.Request.Context(), examID, guruID, header.Filename, file)
	if err != nil {
		if errors.Is(err, service.ErrInvalidKeyFile) {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidKeyFile)
			return
		}
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": len(key)})
}

// UploadPaper godoc
// POST /api/v1/guru/exams/:id/paper (multipart, field "file", .pdf)
func (h *ExamHandler) UploadPaper(c *gin.Context) {
	guruID, examID, ok := h.examIdentity(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer file.Close()

	path, err := h.examService.UploadPaper(c.Request.Context(), examID, guruID, header.Filename, file)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPaper) {
			response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
			return
		}
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"path": path})
}

// GetResults godoc
// GET /api/v1/guru/exams/:id/results?page=1&per_page=20&kelas=XII%20IPA%201
// Lists sessions for the exam. Unfinished sessions appear with a null score.
func (h *ExamHandler) GetResults(c *gin.Context) {
	guruID, examID, ok := h.examIdentity(c)
	if !ok {
		return
	}

	page, perPage := pageParams(c)
	var kelas *string
	if k := c.Query("kelas"); k != "" {
		kelas = &k
	}

	results, total, err := h.examService.Results(c.Request.Context(), examID, guruID, page, perPage, kelas)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, results, paginationFor(page, perPage, int(total)))
}

// PurgeResults godoc
// DELETE /api/v1/guru/exams/:id/results?kelas=XII%20IPA%201
// Deletes the exam's sessions (optionally one kelas) so it can be retaken.
func (h *ExamHandler) PurgeResults(c *gin.Context) {
	guruID, examID, ok := h.examIdentity(c)
	if !ok {
		return
	}

	var kelas *string
	if k := c.Query("kelas"); k != "" {
		kelas = &k
	}

	deleted, err := h.examService.PurgeResults(c.Request.Context(), examID, guruID, kelas)
	if err != nil {
		h.failExam(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": deleted})
}

func (h *ExamHandler) examIdentity(c *gin.Context) (int, uuid.UUID, bool) {
	guruID, ok := guruIdentity(c)
	if !ok {
		return 0, uuid.Nil, false
	}

	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, uuid.Nil, false
	}
	return guruID, examID, true
}

func (h *ExamHandler) failExam(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotExamOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

func guruIdentity(c *gin.Context) (int, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, false
	}
	return claims.UserID, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

func paginationFor(page, perPage, total int) *response.Pagination {
	totalPages := total / perPage
	if total%perPage != 0 {
		totalPages++
	}
	return &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}
}
