package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client talks to a Cosmos LCD endpoint over plain HTTP. All methods are safe
// to call concurrently.
type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient returns a Client for the given LCD base URL,
// e.g. "https://rest.cosmos.directory/cosmoshub".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// ─── LCD WIRE SHAPES ─────────────────────────────────────────────────────────

type lcdValidator struct {
	OperatorAddress string `json:"operator_address"`
	Jailed          bool   `json:"jailed"`
	Status          string `json:"status"`
	Tokens          string `json:"tokens"`
	Description     struct {
		Moniker string `json:"moniker"`
	} `json:"description"`
	Commission struct {
		CommissionRates struct {
			Rate    string `json:"rate"`
			MaxRate string `json:"max_rate"`
		} `json:"commission_rates"`
	} `json:"commission"`
}

type lcdValidatorsResponse struct {
	Validators []lcdValidator `json:"validators"`
}

type lcdValidatorResponse struct {
	Validator lcdValidator `json:"validator"`
}

type lcdDelegationsResponse struct {
	DelegationResponses []struct {
		Delegation struct {
			ValidatorAddress string `json:"validator_address"`
		} `json:"delegation"`
		Balance struct {
			Denom  string `json:"denom"`
			Amount string `json:"amount"`
		} `json:"balance"`
	} `json:"delegation_responses"`
}

// ─── FETCHES ─────────────────────────────────────────────────────────────────

// Validator fetches and normalises a single validator by operator address.
func (c *Client) Validator(ctx context.Context, id string) (ValidatorTelemetry, error) {
	var resp lcdValidatorResponse
	path := "/cosmos/staking/v1beta1/validators/" + url.PathEscape(id)
	if err := c.get(ctx, path, &resp); err != nil {
		return ValidatorTelemetry{}, err
	}
	return c.normalize(resp.Validator, 0), nil
}

// Validators fetches the full validator set, ranked by voting power
// (descending tokens). Rank is 1-indexed.
func (c *Client) Validators(ctx context.Context) ([]ValidatorTelemetry, error) {
	var resp lcdValidatorsResponse
	if err := c.get(ctx, "/cosmos/staking/v1beta1/validators?pagination.limit=500", &resp); err != nil {
		return nil, err
	}

	sort.Slice(resp.Validators, func(a, b int) bool {
		ta := parseDec(resp.Validators[a].Tokens)
		tb := parseDec(resp.Validators[b].Tokens)
		if ta != tb {
			return ta > tb
		}
		return resp.Validators[a].OperatorAddress < resp.Validators[b].OperatorAddress
	})

	out := make([]ValidatorTelemetry, len(resp.Validators))
	for i, v := range resp.Validators {
		out[i] = c.normalize(v, i+1)
	}
	return out, nil
}

// Delegations fetches the stake positions for a delegator address.
func (c *Client) Delegations(ctx context.Context, delegator string) ([]Delegation, error) {
	var resp lcdDelegationsResponse
	path := "/cosmos/staking/v1beta1/delegations/" + url.PathEscape(delegator)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	out := make([]Delegation, 0, len(resp.DelegationResponses))
	for _, d := range resp.DelegationResponses {
		amount := parseDec(d.Balance.Amount) / 1e6 // base denom → display units
		out = append(out, Delegation{
			ValidatorAddress: d.Delegation.ValidatorAddress,
			Amount:           amount,
			Denom:            d.Balance.Denom,
			Display:          fmt.Sprintf("%.2f %s", amount, displayDenom(d.Balance.Denom)),
		})
	}
	return out, nil
}

// ─── INTERNALS ───────────────────────────────────────────────────────────────

func (c *Client) normalize(v lcdValidator, rank int) ValidatorTelemetry {
	uptime, missed := syntheticSigning(v.OperatorAddress)
	return ValidatorTelemetry{
		Address:           v.OperatorAddress,
		Name:              v.Description.Moniker,
		Status:            normalizeStatus(v.Status),
		Jailed:            v.Jailed,
		CommissionRate:    parseDec(v.Commission.CommissionRates.Rate),
		CommissionMaxRate: parseDec(v.Commission.CommissionRates.MaxRate),
		Uptime:            uptime,
		MissedBlocks:      missed,
		VotingPowerRank:   rank,
		Tokens:            parseDec(v.Tokens),
		FetchedAt:         c.now(),
	}
}

// get performs one GET against the LCD and decodes the JSON body into dst.
func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("chain: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chain: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20)) // 4 MB cap
	if err != nil {
		return fmt.Errorf("chain: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chain: unexpected status %d from %s: %.200s", resp.StatusCode, path, string(body))
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("chain: unmarshal response: %w", err)
	}
	return nil
}

// parseDec parses the LCD's decimal strings ("0.100000000000000000").
// Unparseable input yields 0 — the LCD never sends garbage for these fields,
// and a zero reads as "no data" rather than failing the whole snapshot.
func parseDec(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// displayDenom strips the micro prefix: "uatom" → "ATOM".
func displayDenom(denom string) string {
	if len(denom) > 1 && denom[0] == 'u' {
		denom = denom[1:]
	}
	return strings.ToUpper(denom)
}
