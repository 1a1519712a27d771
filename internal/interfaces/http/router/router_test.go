package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterRegister(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	r.Register(NewDomainGroup("invoices", "/invoices"))

	assert.Len(t, r.registrars, 1)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	group := NewDomainGroup("invoices", "/invoices")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.Register(group)
	r.Setup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/ping", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup_Routes(t *testing.T) {
	engine := gin.New()
	ok := func(body string) gin.HandlerFunc {
		return func(c *gin.Context) { c.String(http.StatusOK, body) }
	}

	group := NewDomainGroup("receipts", "/receipts").
		GET("/:id", ok("get")).
		POST("/:id/audit", ok("audit"))
	group.RegisterRoutes(engine.Group("/api/v1"))

	tests := []struct {
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{http.MethodGet, "/api/v1/receipts/abc", http.StatusOK, "get"},
		{http.MethodPost, "/api/v1/receipts/abc/audit", http.StatusOK, "audit"},
		{http.MethodPost, "/api/v1/receipts/abc", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestDomainGroup_Middleware(t *testing.T) {
	engine := gin.New()

	group := NewDomainGroup("admin", "/admin")
	group.Use(func(c *gin.Context) {
		c.Header("X-Group", "admin")
		c.Next()
	})
	group.POST("/reconcile", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	group.RegisterRoutes(engine.Group("/api/v1"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "admin", w.Header().Get("X-Group"))
}

func TestDomainGroup_Subgroup(t *testing.T) {
	engine := gin.New()

	parent := NewDomainGroup("invoices", "/invoices")
	child := parent.Group("payments", "/:id/payments")
	child.GET("", func(c *gin.Context) {
		c.String(http.StatusOK, c.Param("id"))
	})
	parent.RegisterRoutes(engine.Group("/api/v1"))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/inv-7/payments", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inv-7", w.Body.String())
	assert.Equal(t, "payments", child.Name())
	assert.Equal(t, "/:id/payments", child.Prefix())
}
