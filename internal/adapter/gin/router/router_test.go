package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"social-graph-service/internal/adapter/db/postgres"
	"social-graph-service/internal/adapter/gin/handler"
	"social-graph-service/internal/usecase/follow"
	"social-graph-service/internal/usecase/user"
)

// RouterSuite drives the HTTP surface against a real sqlite-backed store.
type RouterSuite struct {
	suite.Suite
	router http.Handler
	ids    map[string]string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	t := s.T()
	log := zaptest.NewLogger(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, postgres.Migrate(db))

	store := postgres.NewUserRepoPG(db, log)
	followSvc := follow.New(store, log)
	userSvc := user.New(store, followSvc, log)

	s.router = SetupRouter(
		handler.NewUserHandler(userSvc, log),
		handler.NewFollowHandler(followSvc, log),
		nil,
		log,
		Options{ServiceName: "social-graph-service"},
	)

	s.ids = map[string]string{}
	for _, name := range []string{"alice", "bob", "carol"} {
		s.ids[name] = s.createUser(name)
	}
}

func (s *RouterSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) createUser(name string) string {
	w := s.do(http.MethodPost, "/v1/users", map[string]string{
		"username":   name,
		"email":      name + "@example.com",
		"credential": "secret-hash",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp handler.ProfileResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.User.ID
}

func (s *RouterSuite) follow(actor, target string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/v1/users/"+s.ids[actor]+"/follow", map[string]string{"target_user_id": s.ids[target]})
}

func (s *RouterSuite) relationIDs(path string) []string {
	w := s.do(http.MethodGet, path, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp handler.RelationsResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	ids := make([]string, 0, len(resp.Users))
	for _, u := range resp.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

func (s *RouterSuite) TestHealth() {
	w := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestFollowLifecycle() {
	s.Equal(http.StatusOK, s.follow("alice", "bob").Code)
	s.Equal(http.StatusConflict, s.follow("alice", "bob").Code)
	s.Equal(http.StatusBadRequest, s.follow("alice", "alice").Code)

	s.Equal([]string{s.ids["alice"]}, s.relationIDs("/v1/users/"+s.ids["bob"]+"/followers"))
	s.Equal([]string{s.ids["bob"]}, s.relationIDs("/v1/users/"+s.ids["alice"]+"/following"))

	w := s.do(http.MethodPost, "/v1/users/"+s.ids["alice"]+"/unfollow", map[string]string{"target_user_id": s.ids["bob"]})
	s.Equal(http.StatusOK, w.Code)
	s.Empty(s.relationIDs("/v1/users/" + s.ids["bob"] + "/followers"))

	w = s.do(http.MethodPost, "/v1/users/"+s.ids["alice"]+"/unfollow", map[string]string{"target_user_id": s.ids["bob"]})
	s.Equal(http.StatusConflict, w.Code)
	s.Contains(w.Body.String(), "not_following")
}

func (s *RouterSuite) TestMutualFollowers() {
	s.Require().Equal(http.StatusOK, s.follow("alice", "carol").Code)
	s.Require().Equal(http.StatusOK, s.follow("carol", "bob").Code)

	s.Equal([]string{s.ids["carol"]}, s.relationIDs("/v1/users/"+s.ids["alice"]+"/mutual/"+s.ids["bob"]))
	s.Empty(s.relationIDs("/v1/users/" + s.ids["bob"] + "/mutual/" + s.ids["alice"]))
}

func (s *RouterSuite) TestDeleteCascade() {
	s.Require().Equal(http.StatusOK, s.follow("alice", "bob").Code)
	s.Require().Equal(http.StatusOK, s.follow("carol", "alice").Code)

	w := s.do(http.MethodDelete, "/v1/users/"+s.ids["alice"], nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v1/users/"+s.ids["alice"], nil).Code)
	s.Empty(s.relationIDs("/v1/users/" + s.ids["bob"] + "/followers"))
	s.Empty(s.relationIDs("/v1/users/" + s.ids["carol"] + "/following"))

	var resp handler.ProfileResponse
	w = s.do(http.MethodGet, "/v1/users/"+s.ids["bob"], nil)
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Zero(resp.User.FollowersCount)
}

func (s *RouterSuite) TestDirectoryRoutes() {
	w := s.do(http.MethodGet, "/v1/users/username/bob", nil)
	s.Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "secret-hash")

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/v1/users/email/carol@example.com", nil).Code)

	w = s.do(http.MethodPut, "/v1/users/"+s.ids["bob"], map[string]string{"bio": "hi"})
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"bio":"hi"`)

	w = s.do(http.MethodPut, "/v1/users/"+s.ids["bob"], map[string]string{"username": "alice"})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/v1/users/search?query=AL", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var search handler.SearchUsersResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &search))
	s.Require().Len(search.Users, 1)
	s.Equal("alice", search.Users[0].Username)
}

func TestSetupRouter_HealthWithoutBackends(t *testing.T) {
	log := zaptest.NewLogger(t)
	r := SetupRouter(handler.NewUserHandler(nil, log), handler.NewFollowHandler(nil, log), nil, log, Options{})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestSetupRouter_HealthReportsFailingBackend(t *testing.T) {
	log := zaptest.NewLogger(t)
	r := SetupRouter(handler.NewUserHandler(nil, log), handler.NewFollowHandler(nil, log), nil, log, Options{
		ServiceName: "social-graph-service",
		Checks: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status   string            `json:"status"`
		Backends map[string]string `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Backends["database"])
	assert.Equal(t, "connection refused", body.Backends["redis"])
}
