package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/reservation"
)

// Deps are the collaborators shared by the handlers.
type Deps struct {
	DB        *sql.DB
	JWTSecret string
	Engine    *reservation.Engine

	// DeviceKey enables the device endpoints when non-empty.
	DeviceKey string
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, JWTSecret: d.JWTSecret}
	usersHandler := &UsersHandler{DB: d.DB}
	baysHandler := &BaysHandler{DB: d.DB}
	itemsHandler := &ItemsHandler{DB: d.DB, Engine: d.Engine}
	reservationsHandler := &ReservationsHandler{Engine: d.Engine}
	deviceHandler := &DeviceHandler{DB: d.DB, Engine: d.Engine, Key: d.DeviceKey}

	authMW := AuthMiddleware(d.JWTSecret, d.DB)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("GET /api/auth/me", authMW(http.HandlerFunc(authHandler.Me)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Bays: read (all roles), write (manager+).
	mux.Handle("GET /api/bays", authMW(http.HandlerFunc(baysHandler.List)))
	mux.Handle("POST /api/bays", authMW(requireManager(http.HandlerFunc(baysHandler.Create))))
	mux.Handle("GET /api/bays/{id}", authMW(http.HandlerFunc(baysHandler.Get)))
	mux.Handle("PUT /api/bays/{id}", authMW(requireManager(http.HandlerFunc(baysHandler.Update))))
	mux.Handle("DELETE /api/bays/{id}", authMW(requireManager(http.HandlerFunc(baysHandler.Delete))))

	// Items: read (all roles), write (manager+), delete (admin).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(requireManager(http.HandlerFunc(itemsHandler.Create))))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(requireManager(http.HandlerFunc(itemsHandler.Update))))
	mux.Handle("DELETE /api/items/{id}", authMW(requireAdmin(http.HandlerFunc(itemsHandler.Delete))))
	mux.Handle("PUT /api/items/{id}/image", authMW(requireManager(http.HandlerFunc(itemsHandler.UploadImage))))
	mux.Handle("GET /api/items/{id}/image", authMW(http.HandlerFunc(itemsHandler.GetImage)))
	mux.Handle("GET /api/items/{id}/history", authMW(http.HandlerFunc(itemsHandler.GetHistory)))

	// Reservations (all roles; the engine enforces ownership).
	mux.Handle("GET /api/reservations", authMW(http.HandlerFunc(reservationsHandler.List)))
	mux.Handle("POST /api/reservations", authMW(http.HandlerFunc(reservationsHandler.Create)))
	mux.Handle("GET /api/reservations/items", authMW(http.HandlerFunc(reservationsHandler.ReservedItems)))
	mux.Handle("POST /api/reservations/check", authMW(http.HandlerFunc(reservationsHandler.Check)))
	mux.Handle("POST /api/reservations/auto-return", authMW(requireAdmin(http.HandlerFunc(reservationsHandler.AutoReturn))))
	mux.Handle("GET /api/reservations/{id}", authMW(http.HandlerFunc(reservationsHandler.Get)))
	mux.Handle("PUT /api/reservations/{id}", authMW(http.HandlerFunc(reservationsHandler.Update)))
	mux.Handle("DELETE /api/reservations/{id}", authMW(http.HandlerFunc(reservationsHandler.Cancel)))
	mux.Handle("POST /api/reservations/{id}/action", authMW(http.HandlerFunc(reservationsHandler.Action)))

	// Devices authenticate with the shared key and a reservation code.
	mux.Handle("GET /api/device/reservation", deviceHandler.Middleware(http.HandlerFunc(deviceHandler.Get)))
	mux.Handle("POST /api/device/reservation/action", deviceHandler.Middleware(http.HandlerFunc(deviceHandler.Action)))

	return mux
}
