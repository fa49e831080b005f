package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/callpanel-api/internal/models"
)

func TestAuditLogsSuccessfulChanges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin})
		c.Next()
	})
	router.DELETE("/announcements/:id", Audit(zap.New(core), "delete", "announcement"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	router.PUT("/announcements/:id", Audit(zap.New(core), "update", "announcement"), func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/announcements/ann-1", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/announcements/ann-1", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)

	entries := logs.FilterMessage("admin change").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "delete", ctx["action"])
	assert.Equal(t, "ann-1", ctx["resource_id"])
	assert.Equal(t, "u-1", ctx["user_id"])
	assert.Equal(t, "audit", entries[0].LoggerName)
}
