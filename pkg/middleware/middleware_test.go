package middleware

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/transfer-service/pkg/errors"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	Setup(router, DefaultConfig("transfer-service", slog.New(slog.NewTextHandler(io.Discard, nil))))
	router.GET("/health", HealthCheck("transfer-service"))
	return router
}

type station struct {
	Code   string `json:"code" binding:"required,station_code"`
	SKU    string `json:"sku" binding:"omitempty,sku"`
	Scope  string `json:"scope" binding:"omitempty,scope"`
	Serial string `json:"serial" binding:"omitempty,serial"`
}

func TestValidateStruct_CustomTags(t *testing.T) {
	tests := []struct {
		name  string
		in    station
		field string
	}{
		{"Valid", station{Code: "WH-1", SKU: "SKU-A/1", Scope: "internal", Serial: "SN:001"}, ""},
		{"Missing code", station{}, "station.code"},
		{"Bad code", station{Code: "WH 1"}, "station.code"},
		{"Bad sku", station{Code: "WH-1", SKU: "-x"}, "station.sku"},
		{"Unknown scope", station{Code: "WH-1", Scope: "global"}, "station.scope"},
		{"Bad serial", station{Code: "WH-1", Serial: "has space"}, "station.serial"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := ValidateStruct(&tt.in)
			if tt.field == "" {
				assert.Nil(t, appErr)
				return
			}
			require.NotNil(t, appErr)
			assert.Equal(t, errors.CodeValidationError, appErr.Code)
			assert.Contains(t, appErr.Details, tt.field)
		})
	}
}

func TestReadinessCheck(t *testing.T) {
	router := newRouter()
	router.GET("/ready", ReadinessCheck("transfer-service", map[string]Check{
		"mongodb":  func(context.Context) error { return nil },
		"temporal": func(context.Context) error { return stderrors.New("connection refused") },
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, map[string]string{"temporal": "connection refused"}, body.Checks)
}

func TestContentType_RejectsNonJSON(t *testing.T) {
	router := newRouter()
	router.POST("/things", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/things", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/things", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRequestID_PropagatesHeader(t *testing.T) {
	router := newRouter()
	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))
}

func TestNoRoute(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ROUTE_NOT_FOUND")
}

func TestNoMethod(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), "METHOD_NOT_ALLOWED")
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	config := DefaultConfig("transfer-service", slog.New(slog.NewTextHandler(io.Discard, nil)))
	config.CORSOrigins = ParseOrigins(" http://localhost:5173, ,https://ops.example.com")
	Setup(router, config)
	router.POST("/orders", func(c *gin.Context) { c.Status(http.StatusCreated) })

	assert.Equal(t, []string{"http://localhost:5173", "https://ops.example.com"}, config.CORSOrigins)

	req := httptest.NewRequest(http.MethodOptions, "/orders", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{}`))
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
