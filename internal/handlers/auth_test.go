package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helpqueue/internal/auth"
	"helpqueue/internal/config"
	"helpqueue/internal/response"
	"helpqueue/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterLoginRefresh(t *testing.T) {
	db, ok, err := storage.ConnectTestingDatabase()
	if !ok {
		t.Skip("TEST_DB_HOST не задан")
	}
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	jwtCfg := config.JWT{
		AccessSecret:  []byte("access"),
		RefreshSecret: []byte("refresh"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}
	h := &Handler{DB: db, JWT: jwtCfg}
	r := gin.New()
	RegisterRoutes(r, h, AuthMiddlewareTest())

	email := fmt.Sprintf("ivan_%d@example.com", time.Now().UnixNano())
	reg := RegisterRequest{Name: "Иван", Surname: "Иванов", Email: email, Password: "secret123"}

	w := postJSON(r, "/auth/register", reg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = postJSON(r, "/auth/register", reg)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMAIL_EXISTS", errorCode(t, w.Body.Bytes()))

	w = postJSON(r, "/auth/login", LoginRequest{Email: email, Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/auth/login", LoginRequest{Email: email, Password: "secret123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tokens response.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))

	userID, err := auth.ParseToken(tokens.AccessToken, jwtCfg.AccessSecret)
	require.NoError(t, err)
	assert.NotZero(t, userID)

	// access токен не годится для обновления
	w = postJSON(r, "/auth/refresh", RefreshTokenRequest{RefreshToken: tokens.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", errorCode(t, w.Body.Bytes()))

	w = postJSON(r, "/auth/refresh", RefreshTokenRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
