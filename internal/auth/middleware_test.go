package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetUint("userID")})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := setupRouter()
	valid, err := GenerateToken(42, time.Minute, testSecret)
	require.NoError(t, err)
	expired, err := GenerateToken(42, -time.Minute, testSecret)
	require.NoError(t, err)
	foreign, err := GenerateToken(42, time.Minute, []byte("other"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		url    string
		header string
		status int
	}{
		{"bearer header", "/me", "Bearer " + valid, http.StatusOK},
		{"query token", "/me?token=" + valid, "", http.StatusOK},
		{"no token", "/me", "", http.StatusUnauthorized},
		{"expired", "/me", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "/me", "Bearer " + foreign, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":42}`, w.Body.String())
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	token, err := GenerateToken(7, time.Minute, testSecret)
	require.NoError(t, err)

	id, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)

	_, err = ParseToken("garbage", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
