package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const validatorJSON = `{
	"validator": {
		"operator_address": "cosmosvaloper1abc",
		"jailed": true,
		"status": "BOND_STATUS_UNBONDED",
		"tokens": "1500000",
		"description": {"moniker": "Atlas Node"},
		"commission": {
			"commission_rates": {"rate": "0.120000000000000000", "max_rate": "0.250000000000000000"}
		}
	}
}`

const validatorsJSON = `{
	"validators": [
		{
			"operator_address": "cosmosvaloper1small",
			"jailed": false,
			"status": "BOND_STATUS_BONDED",
			"tokens": "1000",
			"description": {"moniker": "Small"},
			"commission": {"commission_rates": {"rate": "0.05", "max_rate": "0.10"}}
		},
		{
			"operator_address": "cosmosvaloper1big",
			"jailed": false,
			"status": "BOND_STATUS_UNBONDING",
			"tokens": "9000000",
			"description": {"moniker": "Big"},
			"commission": {"commission_rates": {"rate": "0.10", "max_rate": "0.20"}}
		}
	]
}`

const delegationsJSON = `{
	"delegation_responses": [
		{
			"delegation": {"validator_address": "cosmosvaloper1big"},
			"balance": {"denom": "uatom", "amount": "1250000000"}
		}
	]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestValidator_Normalizes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cosmos/staking/v1beta1/validators/cosmosvaloper1abc" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(validatorJSON))
	})

	tel, err := c.Validator(context.Background(), "cosmosvaloper1abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tel.Name != "Atlas Node" {
		t.Errorf("name = %q, want Atlas Node", tel.Name)
	}
	if !tel.Jailed {
		t.Error("jailed flag lost in normalisation")
	}
	if tel.Status != StatusUnbonded {
		t.Errorf("status = %q, want unbonded", tel.Status)
	}
	if tel.CommissionRate != 0.12 {
		t.Errorf("commission = %v, want 0.12", tel.CommissionRate)
	}
	if tel.CommissionMaxRate != 0.25 {
		t.Errorf("max rate = %v, want 0.25", tel.CommissionMaxRate)
	}
}

func TestValidators_RankedByTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(validatorsJSON))
	})

	set, err := c.Validators(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("expected 2 validators, got %d", len(set))
	}
	if set[0].Name != "Big" || set[0].VotingPowerRank != 1 {
		t.Errorf("expected Big ranked 1, got %q rank %d", set[0].Name, set[0].VotingPowerRank)
	}
	if set[1].Name != "Small" || set[1].VotingPowerRank != 2 {
		t.Errorf("expected Small ranked 2, got %q rank %d", set[1].Name, set[1].VotingPowerRank)
	}
	if set[0].Status != StatusUnbonding {
		t.Errorf("status = %q, want unbonding", set[0].Status)
	}
}

func TestDelegations_ConvertsToDisplayUnits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(delegationsJSON))
	})

	dels, err := c.Delegations(context.Background(), "cosmos1delegator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dels) != 1 {
		t.Fatalf("expected 1 delegation, got %d", len(dels))
	}
	if dels[0].Amount != 1250 {
		t.Errorf("amount = %v, want 1250", dels[0].Amount)
	}
	if dels[0].Display != "1250.00 ATOM" {
		t.Errorf("display = %q, want %q", dels[0].Display, "1250.00 ATOM")
	}
}

func TestGet_Non200IsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	if _, err := c.Validator(context.Background(), "cosmosvaloper1abc"); err == nil {
		t.Fatal("expected error on 429 response")
	}
}

func TestSyntheticSigning_Deterministic(t *testing.T) {
	u1, m1 := syntheticSigning("cosmosvaloper1abc")
	u2, m2 := syntheticSigning("cosmosvaloper1abc")
	if u1 != u2 || m1 != m2 {
		t.Errorf("synthetic signing stats diverged: (%v,%d) vs (%v,%d)", u1, m1, u2, m2)
	}
	if u1 < 95 || u1 > 100 {
		t.Errorf("uptime %v outside [95, 100]", u1)
	}
}
