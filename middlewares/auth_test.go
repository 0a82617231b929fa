package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"settlement-service/utils"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api/:tenant", TenantMiddleware(), AuthMiddleware())
	g.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": c.GetString(TenantKey), "staff": c.GetString(StaffAliasKey)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := utils.GenerateToken("cafe-1", "anu", "staff", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	r := newRouter()

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"bearer header", "/api/cafe-1/whoami", "Bearer " + token, http.StatusOK},
		{"query token", "/api/cafe-1/whoami?token=" + token, "", http.StatusOK},
		{"missing token", "/api/cafe-1/whoami", "", http.StatusUnauthorized},
		{"bad token", "/api/cafe-1/whoami", "Bearer nope", http.StatusUnauthorized},
		{"other tenant", "/api/cafe-2/whoami", "Bearer " + token, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}
