package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ujianku/ujianku-backend/internal/middleware"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
	"github.com/ujianku/ujianku-backend/internal/response"
	"github.com/ujianku/ujianku-backend/internal/service"
	"github.com/ujianku/ujianku-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService    *service.AuthService
	examService    *service.ExamService
	studentService *service.StudentService
	guruService    *service.GuruService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	examService *service.ExamService,
	studentService *service.StudentService,
	guruService *service.GuruService,
) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		examService:    examService,
		studentService: studentService,
		guruService:    guruService,
	}
}

// StudentLogin godoc
// POST /api/v1/auth/student/login
// A student enters an exam with the exam code plus their NISN. The issued
// token is scoped to that exam; logging in again revokes earlier tokens.
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req model.StudentLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctx := c.Request.Context()

	exam, err := h.examService.GetByCode(ctx, req.ExamCode)
	if err != nil {
		if errors.Is(err, repository.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrInvalidExamCode)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	student, err := h.studentService.ResolveForExam(ctx, req.NISN, exam)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrStudentNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNISNNotRegistered)
		case errors.Is(err, service.ErrKelasMismatch):
			response.Fail(c, http.StatusForbidden, response.ErrKelasMismatch)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	token, err := h.authService.GenerateStudentToken(ctx, student.ID, exam.ID, student.Kelas)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, model.StudentLoginResponse{
		Token:   token,
		Student: *student,
		Exam:    exam.Summary(),
	})
}

// GuruLogin godoc
// POST /api/v1/auth/guru/login
// Validates email + password and returns an account-scoped JWT.
func (h *AuthHandler) GuruLogin(c *gin.Context) {
	var req model.GuruLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	guru, err := h.guruService.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and wrong password.
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}
	if !h.authService.CheckPassword(guru.PasswordHash, req.Password) {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.authService.GenerateGuruToken(guru.ID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, model.GuruLoginResponse{
		Token: token,
		Guru:  *guru,
	})
}

// GetStudentProfile godoc
// GET /api/v1/auth/student/me
func (h *AuthHandler) GetStudentProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	student, err := h.studentService.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"student": student})
}

// GetGuruProfile godoc
// GET /api/v1/auth/guru/me
func (h *AuthHandler) GetGuruProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	guru, err := h.guruService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"guru": guru})
}

// StudentLogout godoc
// POST /api/v1/auth/student/logout
func (h *AuthHandler) StudentLogout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.ResetStudentSession(c.Request.Context(), claims.UserID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
