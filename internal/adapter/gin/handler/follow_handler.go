package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domain "social-graph-service/internal/domain/user"
	"social-graph-service/internal/usecase/follow"
	"social-graph-service/pkg/logger"
)

// FollowHandler handles HTTP requests for the follow graph
type FollowHandler struct {
	uc  follow.Usecase
	log *zap.Logger
}

// NewFollowHandler creates a new FollowHandler instance
func NewFollowHandler(uc follow.Usecase, log *zap.Logger) *FollowHandler {
	return &FollowHandler{
		uc:  uc,
		log: log,
	}
}

// FollowRequest is the body of the follow and unfollow routes
type FollowRequest struct {
	TargetUserID string `json:"target_user_id" binding:"required"`
}

// MessageResponse confirms a follow or unfollow
type MessageResponse struct {
	Message string `json:"message"`
}

// RelationsResponse lists user summaries in relation order
type RelationsResponse struct {
	Users []domain.Summary `json:"users"`
}

// Follow handles POST /v1/users/:id/follow
func (h *FollowHandler) Follow(c *gin.Context) {
	var req FollowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx := actorContext(c)
	logger.WithContext(ctx, h.log).Info("Gin Follow request", zap.String("target_id", req.TargetUserID))

	resp, err := h.uc.Follow(ctx, follow.FollowRequest{ActorID: c.Param("id"), TargetID: req.TargetUserID})
	if err != nil {
		respondError(c, h.log, "Gin Follow failed", err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: resp.Message})
}

// Unfollow handles POST /v1/users/:id/unfollow
func (h *FollowHandler) Unfollow(c *gin.Context) {
	var req FollowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx := actorContext(c)
	logger.WithContext(ctx, h.log).Info("Gin Unfollow request", zap.String("target_id", req.TargetUserID))

	resp, err := h.uc.Unfollow(ctx, follow.UnfollowRequest{ActorID: c.Param("id"), TargetID: req.TargetUserID})
	if err != nil {
		respondError(c, h.log, "Gin Unfollow failed", err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: resp.Message})
}

// ListFollowers handles GET /v1/users/:id/followers
func (h *FollowHandler) ListFollowers(c *gin.Context) {
	resp, err := h.uc.ListFollowers(c.Request.Context(), follow.ListRelationsRequest{UserID: c.Param("id")})
	if err != nil {
		respondError(c, h.log, "Gin ListFollowers failed", err)
		return
	}
	c.JSON(http.StatusOK, RelationsResponse{Users: resp.Users})
}

// ListFollowing handles GET /v1/users/:id/following
func (h *FollowHandler) ListFollowing(c *gin.Context) {
	resp, err := h.uc.ListFollowing(c.Request.Context(), follow.ListRelationsRequest{UserID: c.Param("id")})
	if err != nil {
		respondError(c, h.log, "Gin ListFollowing failed", err)
		return
	}
	c.JSON(http.StatusOK, RelationsResponse{Users: resp.Users})
}

// MutualFollowers handles GET /v1/users/:id/mutual/:other_id
func (h *FollowHandler) MutualFollowers(c *gin.Context) {
	resp, err := h.uc.MutualFollowers(c.Request.Context(), follow.MutualFollowersRequest{
		UserID:      c.Param("id"),
		OtherUserID: c.Param("other_id"),
	})
	if err != nil {
		respondError(c, h.log, "Gin MutualFollowers failed", err)
		return
	}
	c.JSON(http.StatusOK, RelationsResponse{Users: resp.Users})
}

func (h *FollowHandler) badRequest(c *gin.Context, err error) {
	logger.WithContext(c.Request.Context(), h.log).Warn("Invalid follow request", zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: err.Error(),
	})
}

// actorContext tags the request context with the acting user for logging.
func actorContext(c *gin.Context) context.Context {
	return context.WithValue(c.Request.Context(), logger.UserIDKey, c.Param("id"))
}
