package httpapi

import "net/http"

// routes builds the ServeMux for the read API plus the single ingest
// control endpoint, using Go 1.22+ method-prefixed patterns.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/canvas", s.handleCanvas)
	mux.HandleFunc("GET /api/canvas/meta", s.handleCanvasMeta)
	mux.HandleFunc("GET /api/canvas/pixel/{x}/{y}", s.handlePixel)
	mux.HandleFunc("GET /api/canvas/palette", s.handlePalette)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("PUT /api/ingest/{public_key}", s.handleIngest)
	mux.HandleFunc("GET /api/user/{public_key}/credits", s.handleCredits)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return s.cors(mux)
}

// cors adds permissive CORS headers so any browser-based canvas viewer can
// read from the API without a same-origin deployment.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
