package router

import (
	"net/http"

	"github.com/gigchain/backend/internal/auth"
	"github.com/gigchain/backend/internal/contracts"
	"github.com/gigchain/backend/internal/escrow"
	"github.com/gigchain/backend/internal/finance"
	"github.com/gigchain/backend/internal/notify"
	"github.com/gigchain/backend/internal/projects"
	"github.com/gigchain/backend/internal/reviews"
	"github.com/gigchain/backend/internal/wallet"
)

// Handlers collects every HTTP handler the API mounts.
type Handlers struct {
	Auth      *auth.Handler
	Wallets   *wallet.Handler
	Escrow    *escrow.Handler
	Finance   *finance.Handler
	Contracts *contracts.Handler
	Projects  *projects.Handler
	Reviews   *reviews.Handler
	Notify    *notify.Handler
}

// New returns an http.Handler serving the API under /api/v1. Everything
// except register and login sits behind the session middleware.
func New(h Handlers, sessionAuth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", h.Auth.Register)
	mux.HandleFunc("POST "+base+"/auth/login", h.Auth.Login)

	protected := http.NewServeMux()
	protected.HandleFunc("GET "+base+"/auth/me", h.Auth.Me)
	protected.HandleFunc("PUT "+base+"/auth/me", h.Auth.UpdateMe)

	protected.HandleFunc("POST "+base+"/wallets", h.Wallets.Create)
	protected.HandleFunc("GET "+base+"/wallets", h.Wallets.List)
	protected.HandleFunc("GET "+base+"/wallets/{id}", h.Wallets.Get)
	protected.HandleFunc("PUT "+base+"/wallets/{id}", h.Wallets.Update)
	protected.HandleFunc("DELETE "+base+"/wallets/{id}", h.Wallets.Deactivate)
	protected.HandleFunc("GET "+base+"/wallets/{id}/entries", h.Wallets.ListEntries)

	protected.HandleFunc("POST "+base+"/finance/escrow", h.Escrow.Fund)
	protected.HandleFunc("PATCH "+base+"/finance/escrow", h.Escrow.Act)
	protected.HandleFunc("GET "+base+"/finance/escrow/{id}", h.Escrow.Get)

	protected.HandleFunc("POST "+base+"/finance/deposits", h.Finance.Deposit)
	protected.HandleFunc("POST "+base+"/finance/withdrawals", h.Finance.Withdraw)
	protected.HandleFunc("GET "+base+"/finance/entries", h.Finance.ListEntries)

	protected.HandleFunc("POST "+base+"/contracts", h.Contracts.Create)
	protected.HandleFunc("GET "+base+"/contracts", h.Contracts.List)
	protected.HandleFunc("GET "+base+"/contracts/{id}", h.Contracts.Get)
	protected.HandleFunc("PUT "+base+"/contracts/{id}", h.Contracts.Update)
	protected.HandleFunc("DELETE "+base+"/contracts/{id}", h.Contracts.Delete)
	protected.HandleFunc("POST "+base+"/contracts/{id}/milestones", h.Contracts.AddMilestone)
	protected.HandleFunc("GET "+base+"/contracts/{id}/milestones", h.Contracts.ListMilestones)
	protected.HandleFunc("GET "+base+"/contracts/{id}/escrows", h.Escrow.ListByContract)
	protected.HandleFunc("PUT "+base+"/milestones/{id}", h.Contracts.UpdateMilestone)
	protected.HandleFunc("DELETE "+base+"/milestones/{id}", h.Contracts.DeleteMilestone)

	protected.HandleFunc("POST "+base+"/projects", h.Projects.Create)
	protected.HandleFunc("GET "+base+"/projects", h.Projects.List)
	protected.HandleFunc("GET "+base+"/projects/{id}", h.Projects.Get)
	protected.HandleFunc("PUT "+base+"/projects/{id}", h.Projects.Update)
	protected.HandleFunc("POST "+base+"/projects/{id}/proposals", h.Projects.Propose)
	protected.HandleFunc("GET "+base+"/projects/{id}/proposals", h.Projects.ListProposals)
	protected.HandleFunc("POST "+base+"/proposals/{id}/decision", h.Projects.Decide)

	protected.HandleFunc("POST "+base+"/reviews", h.Reviews.Create)
	protected.HandleFunc("GET "+base+"/reviews", h.Reviews.List)
	protected.HandleFunc("PUT "+base+"/reviews/{id}", h.Reviews.Update)
	protected.HandleFunc("DELETE "+base+"/reviews/{id}", h.Reviews.Delete)

	protected.HandleFunc("GET "+base+"/notifications", h.Notify.List)
	protected.HandleFunc("POST "+base+"/notifications/{id}/read", h.Notify.MarkRead)

	mux.Handle(base+"/", sessionAuth(protected))
	return mux
}
