package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/shopflow/shopflow-backend/api/responses"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000", // local storefront
}

// CORS returns middleware that applies the storefront's allowed origin policy.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", responses.HeaderRequestID},
		ExposedHeaders:   []string{responses.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
