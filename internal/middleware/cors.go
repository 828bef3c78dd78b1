package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig конфигурация CORS
type CORSConfig struct {
	// AllowedOrigins список разрешённых origin, "*" разрешает любой
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// DefaultCORSConfig конфигурация по умолчанию
var DefaultCORSConfig = CORSConfig{
	AllowedOrigins: []string{"http://localhost:3000"},
	AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	AllowedHeaders: []string{"Content-Type", "Authorization"},
}

// CORS middleware с белым списком origin
type CORS struct {
	origins  map[string]struct{}
	allowAll bool
	methods  string
	headers  string
}

// NewCORS создаёт CORS middleware
func NewCORS(config CORSConfig) *CORS {
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = DefaultCORSConfig.AllowedOrigins
	}
	if len(config.AllowedMethods) == 0 {
		config.AllowedMethods = DefaultCORSConfig.AllowedMethods
	}
	if len(config.AllowedHeaders) == 0 {
		config.AllowedHeaders = DefaultCORSConfig.AllowedHeaders
	}

	cors := &CORS{
		origins: make(map[string]struct{}, len(config.AllowedOrigins)),
		methods: strings.Join(config.AllowedMethods, ", "),
		headers: strings.Join(config.AllowedHeaders, ", "),
	}
	for _, origin := range config.AllowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			cors.allowAll = true
			continue
		}
		if origin != "" {
			cors.origins[origin] = struct{}{}
		}
	}
	return cors
}

func (cr *CORS) allowed(origin string) bool {
	if cr.allowAll {
		return true
	}
	_, ok := cr.origins[origin]
	return ok
}

// Middleware возвращает Gin middleware handler
func (cr *CORS) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		// Запросы без Origin (curl, сервер-сервер, редиректы) пропускаем как есть
		if origin == "" {
			c.Next()
			return
		}

		if !cr.allowed(origin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "origin_not_allowed",
				"message": "Origin is not allowed by CORS policy",
			})
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", cr.methods)
		h.Set("Access-Control-Allow-Headers", cr.headers)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
