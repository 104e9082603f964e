// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verbavid/verbavid-api/internal/api"
	"github.com/verbavid/verbavid-api/internal/core/commands"
	"github.com/verbavid/verbavid-api/internal/core/services"
	"github.com/verbavid/verbavid-api/internal/core/workflow"
	test "github.com/verbavid/verbavid-api/internal/testutil"
)

type server struct {
	router   *gin.Engine
	handlers *api.Handlers
	model    *test.FakeTextModel
	runner   *test.FakeRunner
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config := test.NewTestConfig(t)
	store := services.NewGormAccountStore(test.NewTestDatabase(t))
	cache, err := commands.NewLRUImageCache(16)
	require.NoError(t, err)

	s := &server{
		model:  test.NewFakeTextModel(test.FakeResponse{Text: "Cats are great.\nDogs are loyal."}),
		runner: &test.FakeRunner{},
	}
	videos, err := services.NewVideoService(config, nil, workflow.PipelineDependencies{
		TextModel:   s.model,
		ImageSearch: test.NewFakeImageSearcher(map[string]string{"Cats are great": "https://images.pexels.com/cats.jpeg"}),
		ImageCache:  cache,
		Runner:      s.runner,
	})
	require.NoError(t, err)

	s.handlers = &api.Handlers{
		Videos:   videos,
		Accounts: services.NewAccountService(store, config.Auth),
		Ratings:  &services.RatingService{Store: store},
	}
	s.router = gin.New()
	api.RegisterRoutes(s.router, s.handlers)
	return s
}

func (s *server) do(t *testing.T, method string, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *server) signupAndLogin(t *testing.T, name string, email string) (uint, string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/signup", gin.H{"name": name, "email": email, "password": "password1"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/auth/login", gin.H{"email": email, "password": "password1"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	user := body["user"].(map[string]interface{})
	return uint(user["id"].(float64)), body["token"].(string)
}

func TestPing(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodGet, "/ping", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", decode(t, w)["message"])
}

func TestRenderVideo(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/render-video", gin.H{"userPrompt": "Cats and dogs", "videoLength": "short"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out api.RenderVideoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.NotEmpty(t, out.RequestID)
	assert.Contains(t, out.OutputPath, out.RequestID)
	assert.Equal(t, "Done", out.Stages[len(out.Stages)-1])

	w = s.do(t, http.MethodGet, "/api/v1/videos/"+out.RequestID+"/download", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), out.RequestID+".mp4")
}

func TestRenderVideoValidation(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodPost, "/render-video", gin.H{"template": "minimal"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, s.model.CallCount())
}

func TestRenderVideoStageFailure(t *testing.T) {
	s := newServer(t)
	s.runner.Err = assert.AnError

	w := s.do(t, http.MethodPost, "/render-video", gin.H{"userPrompt": "Cats and dogs"}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Rendering", body["stage"])
	assert.NotEmpty(t, body["error"])
}

func TestRenderVideoDocument(t *testing.T) {
	s := newServer(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("document", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("Cats are great. Dogs are loyal."))
	require.NoError(t, err)
	require.NoError(t, form.WriteField("orientation", "square"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/render-video-document", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, s.model.LastPrompt(), "extracted from a document")

	w = s.do(t, http.MethodPost, "/render-video-document", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/auth/signup", gin.H{"name": "ab", "email": "ab@example.com", "password": "password1"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "name too short")
	w = s.do(t, http.MethodPost, "/auth/signup", gin.H{"name": "  ab  ", "email": "ab@example.com", "password": "password1"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "name too short once trimmed")

	id, token := s.signupAndLogin(t, "Ada Lovelace", "ada@example.com")

	w = s.do(t, http.MethodPost, "/auth/signup", gin.H{"name": "Ada Again", "email": "ada@example.com", "password": "password1"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "duplicate email")

	w = s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "ada@example.com", "password": "wrong-pass"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/auth/profile", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodGet, "/auth/profile", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/auth/profile", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@example.com", decode(t, w)["email"])

	w = s.do(t, http.MethodPut, "/auth/profile", gin.H{"name": "  ab  "}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code, "name too short once trimmed")
	w = s.do(t, http.MethodPut, "/auth/profile", gin.H{"name": "Countess Ada"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/auth/users", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var users []api.UserView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "Countess Ada", users[0].Name)

	otherID, _ := s.signupAndLogin(t, "Other Person", "other@example.com")
	w = s.do(t, http.MethodDelete, "/auth/users/"+strconv.Itoa(int(otherID)), nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/auth/logout", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "jwt=;")

	w = s.do(t, http.MethodDelete, "/auth/users/"+strconv.Itoa(int(id)), nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/auth/profile", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionCookie(t *testing.T) {
	s := newServer(t)
	_, token := s.signupAndLogin(t, "Cookie Monster", "cookie@example.com")

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.AddCookie(&http.Cookie{Name: api.TokenCookie, Value: token})
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPasswordResetRoutes(t *testing.T) {
	s := newServer(t)
	s.signupAndLogin(t, "Forgetful", "forgetful@example.com")

	w := s.do(t, http.MethodPost, "/auth/forgot-password", gin.H{"email": "unknown@example.com"}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	token, err := s.handlers.Accounts.ForgotPassword(context.Background(), "forgetful@example.com")
	require.NoError(t, err)

	w = s.do(t, http.MethodPost, "/auth/reset-password", gin.H{"token": "nope", "password": "new-password"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/auth/reset-password", gin.H{"token": token, "password": "new-password"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "forgetful@example.com", "password": "new-password"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t)
	_, userToken := s.signupAndLogin(t, "Regular User", "user@example.com")
	_, err := s.handlers.Accounts.CreateAdmin(context.Background(), "Admin", "admin@example.com", "admin-pass")
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/admin/stats", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodGet, "/admin/stats", nil, userToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/admin/login", gin.H{"email": "user@example.com", "password": "password1"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/admin/login", gin.H{"email": "admin@example.com", "password": "admin-pass"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	adminToken := decode(t, w)["token"].(string)

	w = s.do(t, http.MethodGet, "/admin/stats", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.EqualValues(t, 2, stats["totalUsers"])
	assert.EqualValues(t, 2, stats["newUsers"])
	assert.Len(t, stats["monthlyStats"], 6)

	w = s.do(t, http.MethodGet, "/admin/users", nil, adminToken)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodDelete, "/admin/users/9999", nil, adminToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPut, "/admin/users/abc", gin.H{"name": "Whoever"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRatingRoute(t *testing.T) {
	s := newServer(t)
	_, token := s.signupAndLogin(t, "Critic", "critic@example.com")

	w := s.do(t, http.MethodPost, "/rating", gin.H{"rating": 4}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/rating", gin.H{"rating": 6}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Rating must be between 1 and 5", decode(t, w)["message"])

	w = s.do(t, http.MethodPost, "/rating", gin.H{"rating": 4, "comment": "nice"}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Rating saved successfully", body["message"])
}

func TestVideoRoutesWithoutCloud(t *testing.T) {
	s := newServer(t)
	_, token := s.signupAndLogin(t, "Publisher", "publisher@example.com")

	w := s.do(t, http.MethodGet, "/api/v1/videos/not-a-uuid/download", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/videos/0b0d1f0e-5a8e-4a51-9d4f-7c1d0d8a1e01/publish", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/videos/0b0d1f0e-5a8e-4a51-9d4f-7c1d0d8a1e01/publish", nil, token)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/videos/0b0d1f0e-5a8e-4a51-9d4f-7c1d0d8a1e01/preview", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/videos/recent", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
