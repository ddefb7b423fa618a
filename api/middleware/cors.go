package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/sweetshop-backend/pkg/types"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// CORS returns middleware that applies the API's allowed origin policy. An empty list falls back
// to the local development origins.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, types.RequestIDHeader},
		ExposedHeaders:   []string{types.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
