package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter wires the API routes. metrics may be nil to skip /metrics.
func NewRouter(h *Handlers, metrics http.Handler, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{"status": "ok"})
	}).Methods("GET")

	if metrics != nil {
		router.Handle("/metrics", metrics).Methods("GET")
	}

	// API routes
	apiRouter := router.PathPrefix("/api").Subrouter()

	// Groups
	apiRouter.HandleFunc("/groups", h.CreateGroup).Methods("POST")

	// Runs
	apiRouter.HandleFunc("/runs", h.ListRuns).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")
	apiRouter.HandleFunc("/runs/{id}/cancel", h.CancelRun).Methods("POST")

	// WebSocket for real-time updates
	apiRouter.HandleFunc("/runs/{id}/stream", h.StreamRunUpdates).Methods("GET")

	// Selectors and debugging
	apiRouter.HandleFunc("/selectors", h.GetSelectors).Methods("GET")
	apiRouter.HandleFunc("/debug/page-source", h.ServeDebugPage).Methods("GET")

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(router)
}
