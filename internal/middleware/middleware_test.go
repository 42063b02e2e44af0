package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/rentaltax/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// bufferLogger returns a logger whose JSON lines are captured in the buffer.
func bufferLogger() (*logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.NewWithWriter(&buf, zerolog.DebugLevel), &buf
}

// logLines decodes every captured line, failing on malformed JSON.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &line), string(raw))
		lines = append(lines, line)
	}
	return lines
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		reused   bool
	}{
		{"generates an ID when none is sent", "", false},
		{"reuses an upstream ID", "edge-7f3a", true},
		{"replaces an oversized upstream ID", strings.Repeat("x", maxRequestIDLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(RequestID())
			router.GET("/id", func(c *gin.Context) {
				c.String(http.StatusOK, GetRequestID(c))
			})

			req := httptest.NewRequest(http.MethodGet, "/id", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			got := w.Body.String()
			assert.Equal(t, got, w.Header().Get(RequestIDHeader))
			if tt.reused {
				assert.Equal(t, tt.incoming, got)
				return
			}
			assert.Len(t, got, 36, "Expected a generated UUID")
		})
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	assert.Empty(t, GetRequestID(&gin.Context{}))
}

func TestCORS(t *testing.T) {
	newRouter := func() *gin.Engine {
		router := gin.New()
		router.Use(CORS([]string{"http://localhost:3000"}, "X-WX-OpenID"))
		router.Any("/api/admin/records", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("allowed origin gets credentials and exposed headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/records", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

		exposed := strings.ToLower(w.Header().Get("Access-Control-Expose-Headers"))
		assert.Contains(t, exposed, "x-ratelimit-remaining")
		assert.Contains(t, exposed, "retry-after")
	})

	t.Run("disallowed origin gets no CORS headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/records", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight allows admin reset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/admin/records", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
		req.Header.Set("Access-Control-Request-Headers", AdminTokenHeader)
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
		assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "x-admin-token")
	})

	t.Run("preflight from disallowed origin is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/admin/records", nil)
		req.Header.Set("Origin", "http://evil.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestLogger_AccessLog(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
	}{
		{"success is info", "/api/my/records?limit=5", http.StatusOK, "info"},
		{"client error is warn", "/api/my/records?limit=abc", http.StatusBadRequest, "warn"},
		{"server error is error", "/api/my/records", http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := bufferLogger()
			router := gin.New()
			router.Use(RequestID())
			router.Use(Logger(log))
			router.Use(Identity(testIdentityConfig()))
			router.GET("/api/my/records", func(c *gin.Context) {
				require.NotNil(t, GetLogger(c))
				c.Status(tt.status)
			})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set(RequestIDHeader, "req-access")
			req.Header.Set("X-WX-OpenID", "openid-1")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"request_id":`)))

			lines := logLines(t, buf)
			require.Len(t, lines, 1)
			line := lines[0]
			assert.Equal(t, tt.wantLevel, line["level"])
			assert.Equal(t, "req-access", line["request_id"])
			assert.Equal(t, "/api/my/records", line["path"])
			assert.Equal(t, float64(tt.status), line["status"])
			assert.Equal(t, "authenticated", line["identity_kind"])
		})
	}
}

func TestGetLogger_NotSet(t *testing.T) {
	assert.Nil(t, GetLogger(&gin.Context{}))
}

func TestRecovery(t *testing.T) {
	t.Run("panic becomes the failure envelope", func(t *testing.T) {
		log, buf := bufferLogger()
		router := gin.New()
		router.Use(RequestID())
		router.Use(Recovery(log))
		router.POST("/api/tax/calc-simple", func(c *gin.Context) {
			panic("calculator exploded")
		})

		req := httptest.NewRequest(http.MethodPost, "/api/tax/calc-simple", nil)
		req.Header.Set(RequestIDHeader, "req-panic")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusInternalServerError, w.Code)

		var body struct {
			Code  int `json:"code"`
			Error struct {
				Code      string `json:"code"`
				RequestID string `json:"request_id"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Code)
		assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Error.Code)
		assert.Equal(t, "req-panic", body.Error.RequestID)
		assert.NotContains(t, w.Body.String(), "calculator exploded")

		// Without the Logger middleware the base logger still tags the ID once
		assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"request_id":`)))
		lines := logLines(t, buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "req-panic", lines[0]["request_id"])
		assert.Contains(t, lines[0]["error"], "calculator exploded")
	})

	t.Run("normal requests pass through", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery(logger.Nop()))
		router.GET("/api/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OK", w.Body.String())
	})
}

func TestMiddlewareStack(t *testing.T) {
	log, _ := bufferLogger()

	router := gin.New()
	router.Use(RequestID())
	router.Use(Logger(log))
	router.Use(Recovery(log))
	router.Use(CORS([]string{"http://localhost:3000"}, "X-WX-OpenID"))
	router.Use(Identity(testIdentityConfig()))
	router.GET("/api/my/records", func(c *gin.Context) {
		assert.NotEmpty(t, GetRequestID(c))
		assert.NotNil(t, GetLogger(c))

		identity, ok := GetIdentity(c)
		assert.True(t, ok)
		assert.Equal(t, "anonymous", string(identity.Kind))

		c.String(http.StatusOK, "OK")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/my/records", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Result().Cookies(), "Expected an identity cookie")
}
