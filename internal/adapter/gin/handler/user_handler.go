package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domain "social-graph-service/internal/domain/user"
	"social-graph-service/internal/usecase/user"
	"social-graph-service/pkg/logger"
)

// UserHandler handles HTTP requests for user directory operations
type UserHandler struct {
	uc  user.Usecase
	log *zap.Logger
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(uc user.Usecase, log *zap.Logger) *UserHandler {
	return &UserHandler{
		uc:  uc,
		log: log,
	}
}

// CreateUserRequest represents the HTTP request body for creating a user
type CreateUserRequest struct {
	Username   string `json:"username" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Bio        string `json:"bio"`
	Avatar     string `json:"avatar"`
	Credential string `json:"credential" binding:"required"`
}

// UpdateProfileRequest represents the HTTP request body for a profile patch.
// Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
}

// ProfileResponse wraps a single user profile
type ProfileResponse struct {
	User domain.Profile `json:"user"`
}

// SearchUsersResponse represents the HTTP response for user search
type SearchUsersResponse struct {
	Users      []domain.SearchSummary `json:"users"`
	Pagination *domain.Pagination     `json:"pagination,omitempty"`
}

// CreateUser handles POST /v1/users
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid create user request", err)
		return
	}

	h.log.Info("Gin CreateUser request", zap.String("username", req.Username), zap.String("email", req.Email))

	resp, err := h.uc.CreateUser(c.Request.Context(), user.CreateUserRequest{
		Username:   req.Username,
		Email:      req.Email,
		Bio:        req.Bio,
		Avatar:     req.Avatar,
		Credential: req.Credential,
	})
	if err != nil {
		respondError(c, h.log, "Gin CreateUser failed", err)
		return
	}

	c.JSON(http.StatusCreated, ProfileResponse{User: resp.User})
}

// GetUser handles GET /v1/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	resp, err := h.uc.GetUser(c.Request.Context(), user.GetUserRequest{ID: c.Param("id")})
	if err != nil {
		respondError(c, h.log, "Gin GetUser failed", err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{User: resp.User})
}

// GetUserByUsername handles GET /v1/users/username/:username
func (h *UserHandler) GetUserByUsername(c *gin.Context) {
	resp, err := h.uc.GetUserByUsername(c.Request.Context(), user.GetUserByUsernameRequest{Username: c.Param("username")})
	if err != nil {
		respondError(c, h.log, "Gin GetUserByUsername failed", err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{User: resp.User})
}

// GetUserByEmail handles GET /v1/users/email/:email
func (h *UserHandler) GetUserByEmail(c *gin.Context) {
	resp, err := h.uc.GetUserByEmail(c.Request.Context(), user.GetUserByEmailRequest{Email: c.Param("email")})
	if err != nil {
		respondError(c, h.log, "Gin GetUserByEmail failed", err)
		return
	}
	c.JSON(http.StatusOK, ProfileResponse{User: resp.User})
}

// UpdateProfile handles PUT /v1/users/:id
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid update profile request", err)
		return
	}

	id := c.Param("id")
	h.log.Info("Gin UpdateProfile request", zap.String("id", id))

	resp, err := h.uc.UpdateProfile(c.Request.Context(), user.UpdateProfileRequest{
		ID:       id,
		Username: req.Username,
		Email:    req.Email,
		Bio:      req.Bio,
		Avatar:   req.Avatar,
	})
	if err != nil {
		respondError(c, h.log, "Gin UpdateProfile failed", err)
		return
	}

	c.JSON(http.StatusOK, ProfileResponse{User: resp.User})
}

// DeleteUser handles DELETE /v1/users/:id. Every follow edge touching the
// user is removed with it.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	logger.WithContext(c.Request.Context(), h.log).Info("Gin DeleteUser request", zap.String("id", id))

	resp, err := h.uc.DeleteUser(c.Request.Context(), user.DeleteUserRequest{ID: id})
	if err != nil {
		respondError(c, h.log, "Gin DeleteUser failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id": resp.ID,
	})
}

// SearchUsers handles GET /v1/users/search
func (h *UserHandler) SearchUsers(c *gin.Context) {
	// Malformed numbers fall through to the use case defaults
	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "10"), 10, 64)

	resp, err := h.uc.SearchUsers(c.Request.Context(), user.SearchUsersRequest{
		Query: c.Query("query"),
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		respondError(c, h.log, "Gin SearchUsers failed", err)
		return
	}

	c.JSON(http.StatusOK, SearchUsersResponse{
		Users:      resp.Users,
		Pagination: resp.Pagination,
	})
}

func (h *UserHandler) badRequest(c *gin.Context, msg string, err error) {
	logger.WithContext(c.Request.Context(), h.log).Warn(msg, zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: err.Error(),
	})
}
