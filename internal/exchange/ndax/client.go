// Package ndax is the venue edge: authenticated REST calls and the
// authenticated websocket user stream, decoded into typed events.
package ndax

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"ndax-connector/internal/core"
)

type AuthType int

const (
	AuthNone AuthType = iota
	AuthSigned
)

type Client struct {
	uid       string
	apiKey    string
	secretKey string
	baseURL   string
	wsBaseURL string
	userName  string
	omsID     int64

	httpClient *http.Client
	limiter    *rate.Limiter
	nonce      nonceSource
}

type Options struct {
	UID               string
	APIKey            string
	SecretKey         string
	UserName          string
	RestBaseURL       string
	WSBaseURL         string
	OMSID             int64
	HTTPTimeoutSec    int64
	RequestsPerSecond int
}

func NewClient(opts Options) (*Client, error) {
	if opts.UID == "" {
		return nil, errors.New("uid required")
	}
	if opts.APIKey == "" || opts.SecretKey == "" {
		return nil, errors.New("api_key/secret_key required")
	}
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	omsID := opts.OMSID
	if omsID == 0 {
		omsID = 1
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		uid:        opts.UID,
		apiKey:     opts.APIKey,
		secretKey:  opts.SecretKey,
		userName:   opts.UserName,
		baseURL:    strings.TrimRight(opts.RestBaseURL, "/"),
		wsBaseURL:  strings.TrimRight(opts.WSBaseURL, "/"),
		omsID:      omsID,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

func (c *Client) Name() string { return "ndax" }

// AccountID resolves the caller's own account id; every authenticated balance
// call depends on it.
func (c *Client) AccountID(ctx context.Context) (int64, error) {
	params := url.Values{}
	params.Set("OMSId", strconv.FormatInt(c.omsID, 10))
	params.Set("UserId", c.uid)
	params.Set("UserName", c.userName)
	body, err := c.doRequest(ctx, http.MethodGet, "GetUserAccounts", params, AuthSigned)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrAccountNotResolved, err)
	}
	var ids []int64
	if err := json.Unmarshal(body, &ids); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrAccountNotResolved, err)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: venue returned no accounts", core.ErrAccountNotResolved)
	}
	return ids[0], nil
}

// AccountPositions fetches the balance snapshot for the account. The snapshot
// covers only assets the venue reports; absent assets are not zeroed.
func (c *Client) AccountPositions(ctx context.Context, accountID int64) ([]core.BalanceEntry, error) {
	params := url.Values{}
	params.Set("AccountId", strconv.FormatInt(accountID, 10))
	params.Set("OMSId", strconv.FormatInt(c.omsID, 10))
	body, err := c.doRequest(ctx, http.MethodGet, "GetAccountPositions", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []accountPositionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	entries := make([]core.BalanceEntry, 0, len(resp))
	for _, pos := range resp {
		if pos.ProductSymbol == "" {
			continue
		}
		entries = append(entries, core.BalanceEntry{
			Asset:  pos.ProductSymbol,
			Amount: pos.Amount,
			Hold:   pos.Hold,
		})
	}
	return entries, nil
}

// Instruments fetches the venue's instrument catalogue for symbol mapping.
func (c *Client) Instruments(ctx context.Context) ([]core.Instrument, error) {
	params := url.Values{}
	params.Set("OMSId", strconv.FormatInt(c.omsID, 10))
	body, err := c.doRequest(ctx, http.MethodGet, "GetInstruments", params, AuthNone)
	if err != nil {
		return nil, err
	}
	var resp []instrumentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	instruments := make([]core.Instrument, 0, len(resp))
	for _, inst := range resp {
		if inst.Product1 == "" || inst.Product2 == "" {
			continue
		}
		instruments = append(instruments, core.Instrument{
			Pair:       inst.Product1 + "-" + inst.Product2,
			BaseAsset:  inst.Product1,
			QuoteAsset: inst.Product2,
			VenueID:    inst.InstrumentID,
		})
	}
	return instruments, nil
}

// Ping classifies venue reachability. Anything it can parse degrades to
// NotConnected rather than returning an error: only the exact PONG
// acknowledgement on HTTP success counts as connected.
func (c *Client) Ping(ctx context.Context) core.NetworkStatus {
	body, err := c.doRequest(ctx, http.MethodGet, "Ping", url.Values{}, AuthNone)
	if err != nil {
		return core.NotConnected
	}
	var resp pingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.NotConnected
	}
	if resp.Msg != "PONG" {
		return core.NotConnected
	}
	return core.Connected
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, auth AuthType) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	urlStr := c.baseURL + "/" + path
	if encoded := params.Encode(); encoded != "" && (method == http.MethodGet || method == http.MethodDelete) {
		urlStr += "?" + encoded
	}
	var reqBody io.Reader
	if method != http.MethodGet && method != http.MethodDelete {
		reqBody = strings.NewReader(params.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if auth == AuthSigned {
		for key, value := range c.authFields() {
			req.Header.Set(key, value)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func parseAPIError(status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorMsg != "" {
		return wrapAPIError(apiErr.ErrorCode, apiErr.ErrorMsg)
	}
	return fmt.Errorf("ndax http error %d: %s", status, strings.TrimSpace(string(body)))
}
