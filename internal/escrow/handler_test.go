package escrow

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/gigchain/backend/internal/middleware"
	"github.com/gigchain/backend/internal/models"
)

func (f *fixture) handler() *Handler {
	return NewHandler(f.svc, f.wallets, nil)
}

func doJSON(t *testing.T, h http.HandlerFunc, method, target string, userID uuid.UUID, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithUser(req.Context(), &models.User{ID: userID}))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestFundHandler(t *testing.T) {
	f := newFixture(t, 10_000)
	h := f.handler()

	body := `{"wallet_id":"` + f.clientWallet.String() + `","contract_id":"` + f.contractID.String() + `","amount_cents":10000}`
	rec := doJSON(t, h.Fund, http.MethodPost, "/api/v1/finance/escrow", f.client, body, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Escrow models.EscrowTransaction `json:"escrow"`
		Wallet struct {
			BalanceCents int64 `json:"balance_cents"`
		} `json:"wallet"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Escrow.Status != models.EscrowStatusFunded {
		t.Errorf("escrow status: got %q, want funded", resp.Escrow.Status)
	}
	if resp.Escrow.AmountCents != 9_500 || resp.Escrow.PlatformFeeCents != 500 {
		t.Errorf("split: got held %d fee %d, want 9500 and 500", resp.Escrow.AmountCents, resp.Escrow.PlatformFeeCents)
	}
	if resp.Wallet.BalanceCents != 0 {
		t.Errorf("wallet balance after fund: got %d, want 0", resp.Wallet.BalanceCents)
	}
}

func TestFundHandlerErrorMapping(t *testing.T) {
	f := newFixture(t, 100)
	h := f.handler()

	cases := []struct {
		name string
		user uuid.UUID
		body string
		want int
	}{
		{
			"broken JSON",
			f.client,
			`{`,
			http.StatusBadRequest,
		},
		{
			"zero amount",
			f.client,
			`{"wallet_id":"` + f.clientWallet.String() + `","contract_id":"` + f.contractID.String() + `","amount_cents":0}`,
			http.StatusBadRequest,
		},
		{
			"foreign wallet",
			f.freelancer,
			`{"wallet_id":"` + f.clientWallet.String() + `","contract_id":"` + f.contractID.String() + `","amount_cents":100}`,
			http.StatusForbidden,
		},
		{
			"insufficient funds",
			f.client,
			`{"wallet_id":"` + f.clientWallet.String() + `","contract_id":"` + f.contractID.String() + `","amount_cents":10000}`,
			http.StatusBadRequest,
		},
		{
			"unknown contract",
			f.client,
			`{"wallet_id":"` + f.clientWallet.String() + `","contract_id":"` + uuid.NewString() + `","amount_cents":100}`,
			http.StatusNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h.Fund, http.MethodPost, "/api/v1/finance/escrow", tc.user, tc.body, nil)
			if rec.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestFundHandlerIdempotencyHeader(t *testing.T) {
	f := newFixture(t, 50_000)
	h := f.handler()

	body := `{"wallet_id":"` + f.clientWallet.String() + `","contract_id":"` + f.contractID.String() + `","amount_cents":10000}`
	header := map[string]string{"Idempotency-Key": "fund-once"}

	first := doJSON(t, h.Fund, http.MethodPost, "/api/v1/finance/escrow", f.client, body, header)
	second := doJSON(t, h.Fund, http.MethodPost, "/api/v1/finance/escrow", f.client, body, header)
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}

	var a, b struct {
		Escrow models.EscrowTransaction `json:"escrow"`
	}
	_ = json.Unmarshal(first.Body.Bytes(), &a)
	_ = json.Unmarshal(second.Body.Bytes(), &b)
	if a.Escrow.ID != b.Escrow.ID {
		t.Errorf("retry created a new escrow: %s vs %s", a.Escrow.ID, b.Escrow.ID)
	}
	if bal := f.wallets.balance(f.clientWallet); bal != 40_000 {
		t.Errorf("balance: got %d, want 40000 (debited once)", bal)
	}
}

func TestActHandler(t *testing.T) {
	f := newFixture(t, 10_000)
	h := f.handler()
	esc := f.fund(t, 10_000)

	body := `{"escrow_id":"` + esc.ID.String() + `","action":"release"}`
	rec := doJSON(t, h.Act, http.MethodPatch, "/api/v1/finance/escrow", f.client, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out models.EscrowTransaction
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Status != models.EscrowStatusReleased {
		t.Errorf("status: got %q, want released", out.Status)
	}

	// Terminal state now; acting again is an invalid-state 400.
	body = `{"escrow_id":"` + esc.ID.String() + `","action":"refund"}`
	rec = doJSON(t, h.Act, http.MethodPatch, "/api/v1/finance/escrow", f.client, body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("refund after release: expected 400, got %d", rec.Code)
	}

	// Unknown action.
	body = `{"escrow_id":"` + esc.ID.String() + `","action":"steal"}`
	rec = doJSON(t, h.Act, http.MethodPatch, "/api/v1/finance/escrow", f.client, body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad action: expected 400, got %d", rec.Code)
	}
}

func TestGetHandlerPartyGate(t *testing.T) {
	f := newFixture(t, 10_000)
	h := f.handler()
	esc := f.fund(t, 10_000)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/finance/escrow/"+esc.ID.String(), nil)
	req.SetPathValue("id", esc.ID.String())
	req = req.WithContext(middleware.WithUser(req.Context(), &models.User{ID: f.freelancer}))
	rec := httptest.NewRecorder()
	h.Get(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("freelancer get: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/finance/escrow/"+esc.ID.String(), nil)
	req.SetPathValue("id", esc.ID.String())
	req = req.WithContext(middleware.WithUser(req.Context(), &models.User{ID: uuid.New()}))
	rec = httptest.NewRecorder()
	h.Get(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("outsider get: expected 403, got %d", rec.Code)
	}
}
