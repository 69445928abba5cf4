package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"kaaj/internal/app"
	"kaaj/internal/app/apptest"
	"kaaj/internal/backend"
	"kaaj/internal/middleware"
	"kaaj/internal/models"
	"kaaj/internal/worker"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/suite"
)

type HandlerTestSuite struct {
	suite.Suite
	app *app.App
	mr  *miniredis.Miniredis
}

func (s *HandlerTestSuite) SetupTest() {
	s.app, s.mr = apptest.New(s.T(), nil)
}

func (s *HandlerTestSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.app.Router().ServeHTTP(w, req)
	return w
}

func (s *HandlerTestSuite) decode(w *httptest.ResponseRecorder, dst any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func (s *HandlerTestSuite) errorCode(w *httptest.ResponseRecorder) string {
	var body middleware.ErrorBody
	s.decode(w, &body)
	return body.Error
}

func (s *HandlerTestSuite) signUp(email string) backend.Credentials {
	w := s.do(http.MethodPost, "/v1/auth/signup", "", body{"email": email, "password": "secret1"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var creds backend.Credentials
	s.decode(w, &creds)
	return creds
}

type body map[string]any

func (s *HandlerTestSuite) TestSignUp() {
	creds := s.signUp("rahim@example.com")

	s.Equal("rahim@example.com", creds.Identity.Email)
	s.False(creds.Identity.EmailVerified)
	s.NotEmpty(creds.Tokens.AccessToken)
	s.NotEmpty(creds.Tokens.RefreshToken)
	s.NotEmpty(creds.Tokens.SessionID)

	tests := []struct {
		name   string
		req    body
		status int
		code   string
	}{
		{"duplicate", body{"email": "rahim@example.com", "password": "secret1"}, http.StatusConflict, "email_already_in_use"},
		{"bad email", body{"email": "not-an-email", "password": "secret1"}, http.StatusBadRequest, "invalid_email"},
		{"weak password", body{"email": "karim@example.com", "password": "123"}, http.StatusBadRequest, "weak_password"},
		{"missing password", body{"email": "karim@example.com"}, http.StatusBadRequest, "validation_failed"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do(http.MethodPost, "/v1/auth/signup", "", tt.req)
			s.Equal(tt.status, w.Code)
			s.Equal(tt.code, s.errorCode(w))
		})
	}
}

func (s *HandlerTestSuite) TestSignIn() {
	s.signUp("rahim@example.com")

	w := s.do(http.MethodPost, "/v1/auth/signin", "", body{"email": "rahim@example.com", "password": "secret1"})
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/v1/auth/signin", "", body{"email": "rahim@example.com", "password": "wrong-one"})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("wrong_password", s.errorCode(w))

	w = s.do(http.MethodPost, "/v1/auth/signin", "", body{"email": "nobody@example.com", "password": "secret1"})
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("user_not_found", s.errorCode(w))
}

func (s *HandlerTestSuite) TestRefreshAndSignOut() {
	creds := s.signUp("rahim@example.com")

	w := s.do(http.MethodPost, "/v1/auth/refresh", "", body{"refresh_token": creds.Tokens.RefreshToken})
	s.Require().Equal(http.StatusOK, w.Code)
	var refreshed backend.Credentials
	s.decode(w, &refreshed)
	s.Equal(creds.Tokens.SessionID, refreshed.Tokens.SessionID)
	s.NotEqual(creds.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)

	w = s.do(http.MethodPost, "/v1/auth/refresh", "", body{"refresh_token": creds.Tokens.RefreshToken})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("expired_token", s.errorCode(w))

	w = s.do(http.MethodPost, "/v1/auth/signout", "", body{"refresh_token": refreshed.Tokens.RefreshToken})
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/v1/auth/me", refreshed.Tokens.AccessToken, nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlerTestSuite) TestProtectedRoutesNeedToken() {
	for _, path := range []string{"/v1/todos", "/v1/auth/me", "/v1/profiles/x"} {
		w := s.do(http.MethodGet, path, "", nil)
		s.Equal(http.StatusUnauthorized, w.Code, path)
		s.Equal("not_authenticated", s.errorCode(w), path)
	}
}

func (s *HandlerTestSuite) TestTodoLifecycle() {
	creds := s.signUp("rahim@example.com")
	token := creds.Tokens.AccessToken

	w := s.do(http.MethodPost, "/v1/todos", token, body{"title": "বাজার করা", "priority": "high"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var created models.Todo
	s.decode(w, &created)
	s.NotEmpty(created.ID)
	s.Equal(creds.Identity.UID, created.UserID)
	s.Equal(models.StatusPending, created.Status)

	w = s.do(http.MethodGet, "/v1/todos", token, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list []models.Todo
	s.decode(w, &list)
	s.Require().Len(list, 1)
	s.Equal(created.ID, list[0].ID)

	w = s.do(http.MethodPatch, "/v1/todos/"+created.ID, token, body{"status": "completed"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var updated models.Todo
	s.decode(w, &updated)
	s.Equal(models.StatusCompleted, updated.Status)

	w = s.do(http.MethodGet, "/v1/todos/"+created.ID, token, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, "/v1/todos/"+created.ID, token, nil)
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/v1/todos/"+created.ID, token, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("not_found", s.errorCode(w))
}

func (s *HandlerTestSuite) TestTodoErrors() {
	rahim := s.signUp("rahim@example.com")
	karim := s.signUp("karim@example.com")

	w := s.do(http.MethodGet, "/v1/todos?owner="+karim.Identity.UID, rahim.Tokens.AccessToken, nil)
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("permission_denied", s.errorCode(w))

	w = s.do(http.MethodPost, "/v1/todos", rahim.Tokens.AccessToken, body{"title": "   "})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("validation_failed", s.errorCode(w))

	w = s.do(http.MethodPost, "/v1/todos", karim.Tokens.AccessToken, body{"title": "karim's"})
	s.Require().Equal(http.StatusCreated, w.Code)
	var todo models.Todo
	s.decode(w, &todo)

	w = s.do(http.MethodPatch, "/v1/todos/"+todo.ID, rahim.Tokens.AccessToken, body{"status": "completed"})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPatch, "/v1/todos/"+todo.ID, karim.Tokens.AccessToken, body{"status": "done"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("validation_failed", s.errorCode(w))
}

func (s *HandlerTestSuite) TestProfiles() {
	rahim := s.signUp("rahim@example.com")
	karim := s.signUp("karim@example.com")
	path := "/v1/profiles/" + rahim.Identity.UID

	w := s.do(http.MethodGet, path, rahim.Tokens.AccessToken, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodPatch, path, rahim.Tokens.AccessToken, body{"name": "Rahim", "email": "rahim@example.com"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPatch, path, rahim.Tokens.AccessToken, body{"photo_url": "https://img.example/r.png"})
	s.Require().Equal(http.StatusOK, w.Code)
	var p models.Profile
	s.decode(w, &p)
	s.Equal("Rahim", p.Name)
	s.Equal("https://img.example/r.png", p.PhotoURL)

	w = s.do(http.MethodGet, path, karim.Tokens.AccessToken, nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *HandlerTestSuite) TestVerification() {
	creds := s.signUp("rahim@example.com")

	w := s.do(http.MethodPost, "/v1/auth/verification", creds.Tokens.AccessToken, nil)
	s.Require().Equal(http.StatusAccepted, w.Code)

	raw, err := s.mr.List(worker.QueueMail)
	s.Require().NoError(err)
	s.Require().Len(raw, 1)
	var job worker.Job
	s.Require().NoError(json.Unmarshal([]byte(raw[0]), &job))
	link, err := url.Parse(job.String("link"))
	s.Require().NoError(err)

	w = s.do(http.MethodGet, "/v1/auth/verify?"+link.RawQuery, "", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var ident backend.Identity
	s.decode(w, &ident)
	s.True(ident.EmailVerified)

	w = s.do(http.MethodPost, "/v1/auth/verify", "", body{"token": link.Query().Get("token")})
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("expired_token", s.errorCode(w))
}

func (s *HandlerTestSuite) TestUpdatePassword_SignsOutOtherSessions() {
	first := s.signUp("rahim@example.com")
	w := s.do(http.MethodPost, "/v1/auth/signin", "", body{"email": "rahim@example.com", "password": "secret1"})
	s.Require().Equal(http.StatusOK, w.Code)
	var second backend.Credentials
	s.decode(w, &second)

	w = s.do(http.MethodPost, "/v1/auth/reauthenticate", first.Tokens.AccessToken, body{"password": "nope-nope"})
	s.Equal(http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodPost, "/v1/auth/reauthenticate", first.Tokens.AccessToken, body{"password": "secret1"})
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodPut, "/v1/auth/password", first.Tokens.AccessToken, body{"password": "123"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("weak_password", s.errorCode(w))

	w = s.do(http.MethodPut, "/v1/auth/password", first.Tokens.AccessToken, body{"password": "new-secret"})
	s.Require().Equal(http.StatusNoContent, w.Code)

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/v1/auth/me", first.Tokens.AccessToken, nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/v1/auth/me", second.Tokens.AccessToken, nil).Code)

	w = s.do(http.MethodPost, "/v1/auth/signin", "", body{"email": "rahim@example.com", "password": "new-secret"})
	s.Equal(http.StatusOK, w.Code)
}

func (s *HandlerTestSuite) TestUpdateProfile() {
	creds := s.signUp("rahim@example.com")

	w := s.do(http.MethodPatch, "/v1/auth/profile", creds.Tokens.AccessToken, body{"display_name": "রহিম"})
	s.Require().Equal(http.StatusOK, w.Code)
	var ident backend.Identity
	s.decode(w, &ident)
	s.Equal("রহিম", ident.DisplayName)
}

func (s *HandlerTestSuite) TestHealthAndMetrics() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health", "", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/ready", "", nil).Code)

	w := s.do(http.MethodGet, "/metrics", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var body map[string]any
	s.decode(w, &body)
	s.Contains(body, "cache")
	s.Contains(body, "queues")
	s.Equal(true, body["todo_index"])

	s.mr.Close()
	w = s.do(http.MethodGet, "/ready", "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Equal("unavailable", s.errorCode(w))
}

func TestHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func TestTodos_IndexBuilding(t *testing.T) {
	cfg := apptest.Config()
	cfg.Database.AutoIndex = false
	a, _ := apptest.New(t, cfg)

	body := bytes.NewBufferString(`{"email":"rahim@example.com","password":"secret1"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/signup", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", w.Code, w.Body.String())
	}
	var creds backend.Credentials
	if err := json.Unmarshal(w.Body.Bytes(), &creds); err != nil {
		t.Fatal(err)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/todos", nil)
	req.Header.Set("Authorization", "Bearer "+creds.Tokens.AccessToken)
	w = httptest.NewRecorder()
	a.Router().ServeHTTP(w, req)

	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("Expected status %d, got %d", http.StatusPreconditionFailed, w.Code)
	}
	var errBody middleware.ErrorBody
	if err := json.Unmarshal(w.Body.Bytes(), &errBody); err != nil {
		t.Fatal(err)
	}
	if errBody.Error != "index_building" {
		t.Errorf("Expected index_building, got %s", errBody.Error)
	}
}
