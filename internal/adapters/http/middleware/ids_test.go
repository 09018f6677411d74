package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedIDs struct {
	request, correlation       string
	ctxRequest, ctxCorrelation string
}

func serveIDs(t *testing.T, headers map[string]string) (*httptest.ResponseRecorder, capturedIDs) {
	t.Helper()

	var got capturedIDs

	router := gin.New()
	router.Use(RequestID(), CorrelationID())
	router.GET("/ids", func(c *gin.Context) {
		got.request = GetRequestID(c)
		got.correlation = GetCorrelationID(c)
		got.ctxRequest = RequestIDFromContext(c.Request.Context())
		got.ctxCorrelation = CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ids", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w, got
}

func TestIDs_PassThrough(t *testing.T) {
	w, got := serveIDs(t, map[string]string{
		HeaderRequestID:     "req-1",
		HeaderCorrelationID: "flow-7",
	})

	assert.Equal(t, "req-1", got.request)
	assert.Equal(t, "req-1", got.ctxRequest)
	assert.Equal(t, "flow-7", got.correlation)
	assert.Equal(t, "flow-7", got.ctxCorrelation)
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "flow-7", w.Header().Get(HeaderCorrelationID))
}

func TestIDs_GeneratedWhenAbsent(t *testing.T) {
	w, got := serveIDs(t, nil)

	parsed, err := uuid.Parse(got.request)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	assert.Equal(t, got.request, got.correlation, "first hop reuses the request ID")
	assert.Equal(t, got.request, w.Header().Get(HeaderRequestID))
	assert.Equal(t, got.request, w.Header().Get(HeaderCorrelationID))
}

func TestIDs_RejectsUnsafeInbound(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"too long", strings.Repeat("a", maxInboundIDLength+1)},
		{"contains space", "req 1"},
		{"control character", "req\x01"},
		{"non ascii", "réq"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := serveIDs(t, map[string]string{HeaderRequestID: tt.value})

			assert.NotEqual(t, tt.value, got.request)
			_, err := uuid.Parse(got.request)
			assert.NoError(t, err)
		})
	}
}

func TestIDs_AcceptsMaxLength(t *testing.T) {
	id := strings.Repeat("z", maxInboundIDLength)

	_, got := serveIDs(t, map[string]string{HeaderRequestID: id})

	assert.Equal(t, id, got.request)
}

func TestCorrelationID_WithoutRequestID(t *testing.T) {
	var id string

	router := gin.New()
	router.Use(CorrelationID())
	router.GET("/ids", func(c *gin.Context) {
		id = GetCorrelationID(c)
		c.Status(http.StatusNoContent)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ids", nil))

	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestGetIDs_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Empty(t, GetRequestID(c))
	assert.Empty(t, GetCorrelationID(c))

	c.Set(ContextKeyRequestID, 42)
	assert.Empty(t, GetRequestID(c))
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, CorrelationIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "req-9")
	ctx = ContextWithCorrelationID(ctx, "flow-9")

	assert.Equal(t, "req-9", RequestIDFromContext(ctx))
	assert.Equal(t, "flow-9", CorrelationIDFromContext(ctx))
}
