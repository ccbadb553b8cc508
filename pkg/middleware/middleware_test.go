package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grigta/simgate/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestAuth_TokenRoundTrip(t *testing.T) {
	am := NewAuthMiddleware("secret", time.Hour)

	token, err := am.GenerateToken("u1", "0612345678", "CUSTOMER")
	require.NoError(t, err)

	claims, err := am.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "0612345678", claims.Phone)
	assert.Equal(t, "CUSTOMER", claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestAuth_ExpiredAndForeignTokens(t *testing.T) {
	am := NewAuthMiddleware("secret", time.Minute)
	token, err := am.GenerateToken("u1", "0612345678", "ADMIN")
	require.NoError(t, err)

	am.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = am.ValidateToken(token)
	assert.Error(t, err)

	other := NewAuthMiddleware("other-secret", time.Minute)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuth_AuthenticateAndRequireRole(t *testing.T) {
	am := NewAuthMiddleware("secret", time.Hour)
	r := gin.New()
	r.GET("/admin", am.Authenticate(), am.RequireRole("ADMIN"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextUserID))
	})

	adminToken, _ := am.GenerateToken("admin-1", "0600000000", "ADMIN")
	customerToken, _ := am.GenerateToken("cust-1", "0611111111", "CUSTOMER")

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + customerToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		id, _ := c.Request.Context().Value(logger.RequestIDKey).(string)
		c.String(http.StatusOK, id)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "given-id", w.Body.String())
}

type fakeCounter struct {
	hits map[string]int64
	err  error
}

func (f *fakeCounter) IncrementWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.hits[key]++
	return f.hits[key], nil
}

func TestRateLimiter(t *testing.T) {
	counter := &fakeCounter{hits: map[string]int64{}}
	r := gin.New()
	r.Use(NewRateLimiter(counter, 2, time.Minute, quietLogger()).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Len(t, counter.hits, 1)
}

func TestRateLimiter_CounterDownAllows(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(&fakeCounter{err: errors.New("redis down")}, 1, time.Minute, quietLogger()).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig()))
	r.OPTIONS("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://backoffice.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://backoffice.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), RequestIDHeader)
}
