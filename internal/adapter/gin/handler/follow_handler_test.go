package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domain "social-graph-service/internal/domain/user"
	"social-graph-service/internal/usecase/follow"
	pkgerrors "social-graph-service/pkg/errors"
	"social-graph-service/pkg/logger"
)

type MockFollowUsecase struct {
	mock.Mock
}

func (m *MockFollowUsecase) Follow(ctx context.Context, req follow.FollowRequest) (*follow.FollowResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*follow.FollowResponse), args.Error(1)
}

func (m *MockFollowUsecase) Unfollow(ctx context.Context, req follow.UnfollowRequest) (*follow.UnfollowResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*follow.UnfollowResponse), args.Error(1)
}

func (m *MockFollowUsecase) relations(args mock.Arguments) (*follow.ListRelationsResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*follow.ListRelationsResponse), args.Error(1)
}

func (m *MockFollowUsecase) ListFollowers(ctx context.Context, req follow.ListRelationsRequest) (*follow.ListRelationsResponse, error) {
	return m.relations(m.Called(ctx, req))
}

func (m *MockFollowUsecase) ListFollowing(ctx context.Context, req follow.ListRelationsRequest) (*follow.ListRelationsResponse, error) {
	return m.relations(m.Called(ctx, req))
}

func (m *MockFollowUsecase) MutualFollowers(ctx context.Context, req follow.MutualFollowersRequest) (*follow.ListRelationsResponse, error) {
	return m.relations(m.Called(ctx, req))
}

func (m *MockFollowUsecase) DeleteUserCascade(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func setupFollowTest(t *testing.T) (*gin.Engine, *MockFollowUsecase) {
	gin.SetMode(gin.TestMode)
	mockUsecase := new(MockFollowUsecase)
	h := NewFollowHandler(mockUsecase, zaptest.NewLogger(t))

	r := gin.New()
	r.POST("/users/:id/follow", h.Follow)
	r.POST("/users/:id/unfollow", h.Unfollow)
	r.GET("/users/:id/followers", h.ListFollowers)
	r.GET("/users/:id/following", h.ListFollowing)
	r.GET("/users/:id/mutual/:other_id", h.MutualFollowers)
	return r, mockUsecase
}

func TestFollow(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r, mockUsecase := setupFollowTest(t)

		mockUsecase.On("Follow", mock.MatchedBy(func(ctx context.Context) bool {
			return logger.GetUserID(ctx) == "a"
		}), follow.FollowRequest{ActorID: "a", TargetID: "b"}).
			Return(&follow.FollowResponse{Message: "Successfully followed the user"}, nil)

		w := doJSON(r, http.MethodPost, "/users/a/follow", gin.H{"target_user_id": "b"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"Successfully followed the user"}`, w.Body.String())
	})

	t.Run("Missing Target", func(t *testing.T) {
		r, mockUsecase := setupFollowTest(t)

		w := doJSON(r, http.MethodPost, "/users/a/follow", gin.H{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockUsecase.AssertNotCalled(t, "Follow", mock.Anything, mock.Anything)
	})

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"Self", pkgerrors.NewSelfReferenceError("a"), http.StatusBadRequest, "self_reference"},
		{"Already Following", pkgerrors.NewAlreadyFollowingError("a", "b"), http.StatusConflict, "already_following"},
		{"Unknown Target", pkgerrors.NewNotFoundError("user", "b"), http.StatusNotFound, "not_found"},
		{"Store", pkgerrors.NewStoreError("update pair", errors.New("tx aborted")), http.StatusInternalServerError, "store_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, mockUsecase := setupFollowTest(t)
			mockUsecase.On("Follow", mock.Anything, mock.Anything).Return(nil, tc.err)

			w := doJSON(r, http.MethodPost, "/users/a/follow", gin.H{"target_user_id": "b"})

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeError(t, w).Error)
		})
	}
}

func TestUnfollow(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		r, mockUsecase := setupFollowTest(t)
		mockUsecase.On("Unfollow", mock.Anything, follow.UnfollowRequest{ActorID: "a", TargetID: "b"}).
			Return(&follow.UnfollowResponse{Message: "Successfully unfollowed the user"}, nil)

		w := doJSON(r, http.MethodPost, "/users/a/unfollow", gin.H{"target_user_id": "b"})

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Not Following Is Distinct From Already Following", func(t *testing.T) {
		r, mockUsecase := setupFollowTest(t)
		mockUsecase.On("Unfollow", mock.Anything, mock.Anything).Return(nil, pkgerrors.NewNotFollowingError("a", "b"))

		w := doJSON(r, http.MethodPost, "/users/a/unfollow", gin.H{"target_user_id": "b"})

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "not_following", decodeError(t, w).Error)
	})
}

func TestListRelations(t *testing.T) {
	r, mockUsecase := setupFollowTest(t)

	mockUsecase.On("ListFollowers", mock.Anything, follow.ListRelationsRequest{UserID: "a"}).
		Return(&follow.ListRelationsResponse{Users: []domain.Summary{{ID: "c", Username: "carol"}, {ID: "b", Username: "bob"}}}, nil)
	mockUsecase.On("ListFollowing", mock.Anything, follow.ListRelationsRequest{UserID: "a"}).
		Return(&follow.ListRelationsResponse{Users: []domain.Summary{}}, nil)
	mockUsecase.On("MutualFollowers", mock.Anything, follow.MutualFollowersRequest{UserID: "a", OtherUserID: "b"}).
		Return(nil, pkgerrors.NewNotFoundError("user", "b"))

	w := doJSON(r, http.MethodGet, "/users/a/followers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp RelationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Users, 2)
	assert.Equal(t, "c", resp.Users[0].ID)
	assert.Equal(t, "b", resp.Users[1].ID)

	w = doJSON(r, http.MethodGet, "/users/a/following", nil)
	assert.JSONEq(t, `{"users":[]}`, w.Body.String())

	w = doJSON(r, http.MethodGet, "/users/a/mutual/b", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
