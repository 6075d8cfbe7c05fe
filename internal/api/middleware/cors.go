package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// DefaultCORSConfig allows any origin to call the sandbox API.
// Credentials are never allowed; callers authenticate with the service secret.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Accept-Encoding",
			"Origin",
			ServiceSecretHeader,
			"X-Request-ID",
			"X-Trace-ID",
			"X-Span-ID",
		},
		MaxAge: 12 * time.Hour,
	}
}

// CORS creates a CORS middleware. An empty origin list allows all origins.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	conf := cors.Config{
		AllowOrigins:  cfg.AllowOrigins,
		AllowMethods:  cfg.AllowMethods,
		AllowHeaders:  cfg.AllowHeaders,
		ExposeHeaders: []string{"Retry-After", "X-Trace-ID"},
		MaxAge:        cfg.MaxAge,
	}
	if len(conf.AllowOrigins) == 0 || (len(conf.AllowOrigins) == 1 && conf.AllowOrigins[0] == "*") {
		conf.AllowOrigins = nil
		conf.AllowAllOrigins = true
	}
	return cors.New(conf)
}
