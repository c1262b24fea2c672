package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
	"github.com/ujianku/ujianku-backend/internal/response"
	"github.com/ujianku/ujianku-backend/internal/service"
	"github.com/ujianku/ujianku-backend/internal/validator"
)

// StudentManagementHandler handles the guru-facing roster endpoints.
type StudentManagementHandler struct {
	studentService *service.StudentService
	authService    *service.AuthService
}

// NewStudentManagementHandler creates a new StudentManagementHandler.
func NewStudentManagementHandler(studentService *service.StudentService, authService *service.AuthService) *StudentManagementHandler {
	return &StudentManagementHandler{
		studentService: studentService,
		authService:    authService,
	}
}

// CreateStudent godoc
// POST /api/v1/guru/students
func (h *StudentManagementHandler) CreateStudent(c *gin.Context) {
	guruID, ok := guruIdentity(c)
	if !ok {
		return
	}

	var req model.CreateStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	student, err := h.studentService.Create(c.Request.Context(), guruID, &req)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, student)
}

// ListStudents godoc
// GET /api/v1/guru/students?page=1&per_page=20&kelas=XII%20IPA%201
func (h *StudentManagementHandler) ListStudents(c *gin.Context) {
	guruID, ok := guruIdentity(c)
	if !ok {
		return
	}

	page, perPage := pageParams(c)
	var kelas *string
	if k := c.Query("kelas"); k != "" {
		kelas = &k
	}

	students, total, err := h.studentService.List(c.Request.Context(), guruID, kelas, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, students, paginationFor(page, perPage, total))
}

// DeleteStudent godoc
// DELETE /api/v1/guru/students/:id
func (h *StudentManagementHandler) DeleteStudent(c *gin.Context) {
	guruID, ok := guruIdentity(c)
	if !ok {
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.studentService.Delete(c.Request.Context(), id, guruID); err != nil {
		if errors.Is(err, repository.ErrStudentNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ImportRoster godoc
// POST /api/v1/guru/students/import (multipart, field "file", .csv or .xlsx)
// Bad rows are skipped and reported; the rest of the file still imports.
func (h *StudentManagementHandler) ImportRoster(c *gin.Context) {
	guruID, ok := guruIdentity(c)
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

	result, err := h.studentService.ImportRoster(c.Request.Context(), guruID, header.Filename, file)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRosterFile) {
			response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ResetStudentSession godoc
// POST /api/v1/guru/students/:id/reset-session
// Clears the single-device lock so the student can log in again after a
// crashed or hijacked device.
func (h *StudentManagementHandler) ResetStudentSession(c *gin.Context) {
	guruID, ok := guruIdentity(c)
	if !ok {
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Ownership check before touching the session marker.
	if _, err := h.studentService.Get(c.Request.Context(), id, guruID); err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	if err := h.authService.ResetStudentSession(c.Request.Context(), id); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
