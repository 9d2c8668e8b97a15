// Package router mounts the /v1 API on a Go 1.22 pattern mux and wraps it
// in the shared middleware chain.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/auth"
	"github.com/inaiurai/marketplace/internal/handlers"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/idempotency"
	"github.com/inaiurai/marketplace/internal/middleware"
	"github.com/inaiurai/marketplace/internal/registry"
)

// Handlers groups every endpoint the API serves.
type Handlers struct {
	Auth     *auth.Handler
	Registry *registry.Handler
	Tasks    *handlers.TaskHandler
	Bids     *handlers.BidHandler
	Bookings *handlers.BookingHandler
	Disputes *handlers.DisputeHandler
	Admin    *handlers.AdminHandler
}

type Options struct {
	Tokens         middleware.TokenValidator
	Idempotency    *idempotency.Store
	AllowedOrigins []string
	// Ping backs /healthz. Nil reports healthy without checking anything.
	Ping   func(ctx context.Context) error
	Logger *slog.Logger
}

// New returns the API handler: access log, then CORS, then the mux.
// Authenticated routes run Authenticate and the idempotency cache; /v1/admin
// additionally requires a staff role.
func New(h Handlers, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idem := opts.Idempotency
	if idem == nil {
		idem = idempotency.NewStore(nil, 0, logger)
	}
	authn := middleware.Authenticate(opts.Tokens, logger)
	staff := middleware.RequireStaff(logger)

	mux := http.NewServeMux()
	public := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, fn)
	}
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn(idem.Middleware(fn)))
	}
	admin := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, authn(staff(idem.Middleware(fn))))
	}

	public("GET /healthz", healthz(opts.Ping, logger))
	public("POST /v1/auth/register", h.Auth.Register)
	public("POST /v1/auth/login", h.Auth.Login)
	public("GET /v1/categories", h.Tasks.ListCategories)

	// --- taskers ---
	private("PUT /v1/taskers/me/profile", h.Registry.PutMyProfile)
	private("GET /v1/taskers/{id}", h.Registry.GetProfile)
	private("GET /v1/taskers", h.Registry.Search)

	// --- tasks ---
	private("POST /v1/tasks", h.Tasks.CreateTask)
	private("GET /v1/tasks", h.Tasks.ListTasks)
	private("GET /v1/tasks/{id}", h.Tasks.GetTask)
	private("PATCH /v1/tasks/{id}", h.Tasks.UpdateTask)
	private("POST /v1/tasks/{id}/post", h.Tasks.PostTask)
	private("POST /v1/tasks/{id}/cancel", h.Tasks.CancelTask)
	private("POST /v1/tasks/{id}/accept", h.Tasks.AcceptTask)
	private("POST /v1/tasks/{id}/decline", h.Tasks.DeclineTask)
	private("POST /v1/tasks/{id}/invite", h.Tasks.InviteTaskers)
	private("GET /v1/tasks/{id}/candidates", h.Tasks.ListCandidates)
	private("GET /v1/tasks/{id}/events", h.Tasks.ListEvents)
	private("GET /v1/tasks/{id}/bids", h.Tasks.ListBids)
	private("POST /v1/tasks/{id}/quote-requests", h.Tasks.RequestQuote)

	// --- bids ---
	private("POST /v1/bids", h.Bids.SubmitBid)
	private("POST /v1/bids/{id}/accept", h.Bids.AcceptBid)
	private("POST /v1/bids/{id}/decline", h.Bids.DeclineBid)
	private("POST /v1/bids/{id}/messages", h.Bids.SendMessage)
	private("GET /v1/bids/{id}/messages", h.Bids.ListMessages)

	// --- bookings ---
	private("POST /v1/bookings", h.Bookings.CreateBooking)
	private("GET /v1/bookings", h.Bookings.ListBookings)
	private("GET /v1/bookings/{id}", h.Bookings.GetBooking)
	private("GET /v1/bookings/{id}/events", h.Bookings.ListEvents)
	private("POST /v1/bookings/{id}/accept", h.Bookings.AcceptBooking)
	private("POST /v1/bookings/{id}/reject", h.Bookings.RejectBooking)
	private("POST /v1/bookings/{id}/arrived", h.Bookings.MarkArrived)
	private("POST /v1/bookings/{id}/status", h.Bookings.UpdateStatus)
	private("POST /v1/bookings/{id}/cancel", h.Bookings.CancelBooking)

	// --- disputes and reviews ---
	private("POST /v1/disputes", h.Disputes.OpenDispute)
	private("GET /v1/disputes/{id}", h.Disputes.GetDispute)
	private("POST /v1/disputes/{id}/evidence", h.Disputes.AddEvidence)
	private("POST /v1/reviews", h.Disputes.CreateReview)

	// --- admin ---
	admin("POST /v1/admin/disputes/{id}/resolve", h.Admin.ResolveDispute)
	admin("POST /v1/admin/tasks/{id}/cancel", h.Admin.CancelTask)
	admin("POST /v1/admin/tasks/{id}/settle", h.Admin.SettleTask)
	admin("GET /v1/admin/tasks/{id}/history", h.Admin.TaskHistory)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotency.HeaderKey},
		ExposedHeaders:   []string{idempotency.HeaderReplayed},
		AllowCredentials: true,
	}).Handler(mux)

	return middleware.RequestLogger(logger)(corsHandler)
}

func healthz(ping func(context.Context) error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				httpx.WriteError(w, r, logger, apperr.Unavailable(err))
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
