package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(t *testing.T, incoming string) (string, string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	var fromGin, fromCtx string
	r.GET("/", func(c *gin.Context) {
		fromGin = Value(c)
		fromCtx = FromContext(c.Request.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if incoming != "" {
		req.Header.Set(Header, incoming)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header().Get(Header), fromGin, fromCtx
}

func TestKeepsClientID(t *testing.T) {
	echoed, fromGin, fromCtx := serve(t, "panel-42")
	assert.Equal(t, "panel-42", echoed)
	assert.Equal(t, "panel-42", fromGin)
	assert.Equal(t, "panel-42", fromCtx)
}

func TestReplacesUnacceptableID(t *testing.T) {
	for _, incoming := range []string{"", "has space", strings.Repeat("x", maxLength+1)} {
		echoed, fromGin, _ := serve(t, incoming)
		assert.Len(t, echoed, 32, incoming)
		assert.Equal(t, echoed, fromGin)
	}
}
