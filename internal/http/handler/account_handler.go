package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/smallbiznis-users/internal/domain"
	"github.com/smallbiznis/smallbiznis-users/internal/http/middleware"
	"github.com/smallbiznis/smallbiznis-users/internal/service"
)

// PictureUploader stores a binary upload and returns its public URL.
type PictureUploader interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// AccountHandler maps the HTTP surface onto the reconciliation engine.
type AccountHandler struct {
	Accounts *service.AccountService
	Uploader PictureUploader
}

// NewAccountHandler creates the handler set.
func NewAccountHandler(accounts *service.AccountService, uploader PictureUploader) *AccountHandler {
	return &AccountHandler{Accounts: accounts, Uploader: uploader}
}

// Check reports service liveness.
func (h *AccountHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "The users service is working properly"})
}

type registerRequest struct {
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Username  string      `json:"username"`
	Password  string      `json:"password"`
	Email     string      `json:"email"`
	Plan      domain.Plan `json:"plan"`
}

// Register creates a new account and returns a token with the public view.
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid registration body."})
		return
	}

	result, err := h.Accounts.Create(c.Request.Context(), service.CreateInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		Plan:      req.Plan,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"token": result.Token, "user": result.Account}})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates a username/password pair.
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Username and password are required."})
		return
	}

	result, err := h.Accounts.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"token": result.Token, "user": result.Account}})
}

// Me returns the authenticated account.
func (h *AccountHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetAccessClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing token claims."})
		return
	}

	account, err := h.Accounts.Get(c.Request.Context(), claims.Username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

// Get returns one account by username, or the directory listing when the
// path parameter is the literal "all".
func (h *AccountHandler) Get(c *gin.Context) {
	username := c.Param("username")

	if username == "all" {
		claims, ok := middleware.GetAccessClaims(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing token claims."})
			return
		}
		summaries, err := h.Accounts.List(c.Request.Context(), claims.Username)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": summaries})
		return
	}

	account, err := h.Accounts.Get(c.Request.Context(), username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": account})
}

// Reset generates a one-time password and emails it to the account owner.
func (h *AccountHandler) Reset(c *gin.Context) {
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "username is required."})
		return
	}

	if err := h.Accounts.ResetPassword(c.Request.Context(), username); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password reset!"})
}

type updateRequest struct {
	FirstName       *string      `json:"firstName" form:"firstName"`
	LastName        *string      `json:"lastName" form:"lastName"`
	Username        *string      `json:"username" form:"username"`
	Email           *string      `json:"email" form:"email"`
	ProfilePicture  *string      `json:"profilePicture" form:"profilePicture"`
	CoinsAmount     *int64       `json:"coinsAmount" form:"coinsAmount"`
	Plan            *domain.Plan `json:"plan" form:"plan"`
	Role            *domain.Role `json:"role" form:"role"`
	CurrentPassword string       `json:"currentPassword" form:"currentPassword"`
	NewPassword     string       `json:"newPassword" form:"newPassword"`
}

func (r updateRequest) patch() service.Patch {
	return service.Patch{
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		Username:          r.Username,
		Email:             r.Email,
		ProfilePictureURL: r.ProfilePicture,
		CoinsAmount:       r.CoinsAmount,
		Plan:              r.Plan,
		Role:              r.Role,
		CurrentPassword:   r.CurrentPassword,
		NewPassword:       r.NewPassword,
	}
}

// UpdateMe applies a self-service patch, optionally uploading a new profile
// picture first. The refreshed token is handed back in the Authorization
// header since the patch may change the identity used downstream.
func (h *AccountHandler) UpdateMe(c *gin.Context) {
	claims, ok := middleware.GetAccessClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing token claims."})
		return
	}

	var req updateRequest
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid update form."})
			return
		}
		if fileHeader, err := c.FormFile("profilePicture"); err == nil {
			url, uploadErr := h.uploadPicture(c, fileHeader)
			if uploadErr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed", "error_description": uploadErr.Error()})
				return
			}
			req.ProfilePicture = &url
		}
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid update body."})
			return
		}
	}

	result, err := h.Accounts.SelfUpdate(c.Request.Context(), claims.Username, req.patch())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Authorization", "Bearer "+result.Token)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"token": result.Token, "user": result.Account}})
}

// UpdateUser applies an administrative patch to the target account.
func (h *AccountHandler) UpdateUser(c *gin.Context) {
	claims, ok := middleware.GetAccessClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing token claims."})
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid update body."})
		return
	}

	result, err := h.Accounts.AdminUpdate(c.Request.Context(), domain.Role(claims.Role), c.Param("username"), req.patch())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Authorization", "Bearer "+result.Token)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"token": result.Token, "user": result.Account}})
}

// DeleteMe removes the authenticated account and its dependents.
func (h *AccountHandler) DeleteMe(c *gin.Context) {
	claims, ok := middleware.GetAccessClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing token claims."})
		return
	}

	if err := h.Accounts.Delete(c.Request.Context(), claims.Username); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted!"})
}

func (h *AccountHandler) uploadPicture(c *gin.Context, fileHeader *multipart.FileHeader) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	return h.Uploader.Upload(c.Request.Context(), fileHeader.Filename, http.DetectContentType(data), data)
}

func (h *AccountHandler) respondError(c *gin.Context, err error) {
	logger := zap.L()
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "error_description": validationErr.Error(), "field": validationErr.Field})
	case errors.Is(err, domain.ErrDuplicateUsername):
		c.JSON(http.StatusBadRequest, gin.H{"error": "duplicate_username", "error_description": "Username already exists."})
	case errors.Is(err, domain.ErrDuplicateEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "duplicate_email", "error_description": "Email already exists."})
	case errors.Is(err, domain.ErrInvalidCurrentPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_current_password", "error_description": "Current password is not valid."})
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "error_description": "Invalid username or password."})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Operation not permitted."})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Account does not exist."})
	default:
		logger.Error("account operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}
