package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tutorhub/bookingengine/libs/httpx"
)

type RouteOptions struct {
	// BodyLimit caps request bodies on write routes.
	BodyLimit int64
	// PublicLimit throttles the public routes; nil disables it.
	PublicLimit     httpx.Middleware
	// ReadTimeout bounds the read-only and admin routes. Booking is left
	// unbounded here; the transactor carries its own deadlines.
	ReadTimeout     time.Duration
	AdminJWTSecret  string
	AdminAPIKeyHash string
	Logger          *slog.Logger
}

// Register mounts the public and admin API on mux.
func Register(mux *http.ServeMux, bookings *BookingHandler, admin *AdminHandler, opts RouteOptions) {
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 64 << 10
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	public := []httpx.Middleware{}
	if opts.PublicLimit != nil {
		public = append(public, opts.PublicLimit)
	}
	read := append(append([]httpx.Middleware{}, public...), httpx.WithTimeout(opts.ReadTimeout))
	write := append(append([]httpx.Middleware{}, public...), httpx.WithBodyLimit(opts.BodyLimit))

	mux.Handle("GET /api/v1/public/slots", httpx.Chain(http.HandlerFunc(bookings.Slots), read...))
	mux.Handle("POST /api/v1/public/book", httpx.Chain(http.HandlerFunc(bookings.Book), write...))

	guard := RequireAdmin(opts.AdminJWTSecret, opts.AdminAPIKeyHash, opts.Logger)
	adminRoute := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, httpx.Chain(h, guard, httpx.WithTimeout(opts.ReadTimeout), httpx.WithBodyLimit(opts.BodyLimit)))
	}
	adminRoute("GET /api/v1/admin/availability/template", admin.GetTemplate)
	adminRoute("PUT /api/v1/admin/availability/template", admin.PutTemplate)
	adminRoute("GET /api/v1/admin/availability/exceptions", admin.ListExceptions)
	adminRoute("POST /api/v1/admin/availability/exceptions", admin.CreateException)
	adminRoute("DELETE /api/v1/admin/availability/exceptions/{id}", admin.DeleteException)
	adminRoute("GET /api/v1/admin/bookings", admin.ListBookings)
}
