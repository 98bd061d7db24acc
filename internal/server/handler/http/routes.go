// Package http provides HTTP routing and middleware configuration
// for the credstore service.
package http

import (
	"net/http"

	"github.com/credself/credstore/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves the
// credstore API. It enforces JSON content types on bodies, logs each
// request and requires the fronting layer's identity header.
//
// Routes:
//
//	GET    /api/responses/profile → responseHandler.Profile
//	GET    /api/responses         → responseHandler.Read
//	PUT    /api/responses         → responseHandler.Set
//	DELETE /api/responses         → responseHandler.Clear
//	POST   /api/otp/setup         → otpHandler.Setup
//	GET    /api/otp               → otpHandler.Read
//	POST   /api/otp/verify        → otpHandler.Verify
//	DELETE /api/otp               → otpHandler.Clear
func NewRouter(
	responseHandler *ResponseHandler,
	otpHandler *OtpHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Only allow requests with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))
	// Require the fronting layer's authenticated-user header
	r.Use(middleware.Identity)

	r.Route("/api", func(r chi.Router) {
		r.Route("/responses", func(r chi.Router) {
			r.Get("/profile", responseHandler.Profile)
			r.Get("/", responseHandler.Read)
			r.Put("/", responseHandler.Set)
			r.Delete("/", responseHandler.Clear)
		})
		r.Route("/otp", func(r chi.Router) {
			r.Post("/setup", otpHandler.Setup)
			r.Get("/", otpHandler.Read)
			r.Post("/verify", otpHandler.Verify)
			r.Delete("/", otpHandler.Clear)
		})
	})

	return r
}
