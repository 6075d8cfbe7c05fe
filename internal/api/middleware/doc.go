// Package middleware provides the gin middleware in front of the sandbox API.
//
//   - ServiceAuth: shared-secret check on X-Service-Secret
//   - RateLimit: per-IP token bucket with idle client eviction
//   - GlobalRateLimit: one bucket for the whole process
//   - CORS: gin-contrib/cors with the sandbox headers allowed
//
// Rejections use the same {success:false, error:{type, message}} envelope
// as the handlers.
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//	api.Use(middleware.ServiceAuth(secret))
package middleware
