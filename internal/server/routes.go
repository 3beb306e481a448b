package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws/ask", s.app.WSHandler.AskHandler)

	// API routes - Question answering
	mux.HandleFunc("/api/ask", s.app.AskHandler.AskHandler)
	mux.HandleFunc("/api/ask/stream", s.app.AskHandler.AskStreamHandler)
	mux.HandleFunc("/api/ask/health", s.app.AskHandler.HealthHandler)

	// API routes - Documents
	mux.HandleFunc("/api/documents/upload", s.app.DocumentHandler.UploadHandler)
	mux.HandleFunc("/api/documents/text", s.app.DocumentHandler.IngestTextHandler)
	mux.HandleFunc("/api/documents/stats", s.app.DocumentHandler.StatsHandler)
	mux.HandleFunc("/api/documents/reembed", s.app.DocumentHandler.ReembedHandler)
	mux.HandleFunc("/api/documents", s.app.DocumentHandler.ListHandler)
	mux.HandleFunc("/api/documents/", s.handleDocumentRoutes) // GET/DELETE /{id}

	// API routes - Service
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	return mux
}

// handleDocumentRoutes dispatches /api/documents/{id} while keeping the
// fixed sub-routes on their own handlers.
func (s *Server) handleDocumentRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	switch rest {
	case "upload", "text", "stats", "reembed", "":
		http.NotFound(w, r)
	default:
		s.app.DocumentHandler.DocumentHandler(w, r)
	}
}
