package rest

import (
	"masbaha/internal/service"
	"masbaha/internal/transport/rest/handler"
	"masbaha/internal/transport/rest/middleware"
	"masbaha/internal/transport/ws"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService    *service.AuthService
	RoomService    *service.RoomService
	WSHub          *ws.Hub
	AllowedOrigins []string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	deviceHandler := handler.NewDeviceHandler(c.AuthService)
	roomHandler := handler.NewRoomHandler(c.RoomService)
	actionHandler := handler.NewActionHandler(c.RoomService)
	wsHandler := ws.NewHandler(c.WSHub, c.RoomService, c.AuthService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/devices", deviceHandler.Register).Methods("POST")

	// WebSocket route (device token optional, in query param)
	v1.HandleFunc("/ws/rooms/{code}", wsHandler.RoomWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Participant routes; a device credential is attached when present
	participantRoutes := v1.NewRoute().Subrouter()
	participantRoutes.Use(authMW.OptionalDevice)

	participantRoutes.HandleFunc("/rooms/{code}", roomHandler.Get).Methods("GET")
	participantRoutes.HandleFunc("/rooms/{code}/join", roomHandler.Join).Methods("POST")
	participantRoutes.HandleFunc("/rooms/{code}/tap", roomHandler.Tap).Methods("POST")
	participantRoutes.HandleFunc("/rooms/{code}/participants/{id}", roomHandler.Leave).Methods("DELETE")
	participantRoutes.HandleFunc("/action", actionHandler.Dispatch).Methods("POST")

	// Owner routes (require device credential)
	ownerRoutes := v1.NewRoute().Subrouter()
	ownerRoutes.Use(authMW.RequireDevice)

	ownerRoutes.HandleFunc("/rooms", roomHandler.Create).Methods("POST")
	ownerRoutes.HandleFunc("/rooms/{code}/bulk", roomHandler.Bulk).Methods("POST")
	ownerRoutes.HandleFunc("/rooms/{code}/reset", roomHandler.Reset).Methods("POST")
	ownerRoutes.HandleFunc("/rooms/{code}/target", roomHandler.UpdateTarget).Methods("PUT")
	ownerRoutes.HandleFunc("/rooms/{code}/alerts", roomHandler.Alert).Methods("POST")

	return corsMiddleware(c.AllowedOrigins).Handler(r)
}

func corsMiddleware(allowedOrigins []string) *cors.Cors {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
}
