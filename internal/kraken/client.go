// Package kraken implements the exchange adapters: a REST client for
// Kraken's public/private API, a websocket ticker feed, and the
// MarketDataSource / OrderExecutor / BalanceSource implementations the
// trading core consumes.
package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/swingbot/goswing/internal/domain"
	"github.com/swingbot/goswing/pkg/config"
)

// Client is a thin Kraken REST API client. Public endpoints need no
// credentials; private endpoints sign each request with API-Sign.
type Client struct {
	client    *resty.Client
	apiKey    string
	secretKey string

	// nonce must be strictly increasing across private calls;
	// the coarse and fine cycles can issue private requests concurrently
	nonceMu   sync.Mutex
	lastNonce int64
}

// NewClient builds a REST client for the given endpoint configuration.
func NewClient(cfg config.KrakenConfig, timeout time.Duration) *Client {
	host := strings.TrimSuffix(cfg.RESTURL, "/")

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", "goswing/1.0")

	return &Client{
		client:    client,
		apiKey:    cfg.APIKey,
		secretKey: cfg.SecretKey,
	}
}

// apiResponse is the envelope every Kraken endpoint returns.
type apiResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	var envelope apiResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&envelope).
		Get(path)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	return decodeEnvelope(path, resp, &envelope, out)
}

// post signs and submits a private endpoint request.
func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	if c.apiKey == "" || c.secretKey == "" {
		return errors.New("private endpoint requires API credentials")
	}

	nonce := c.nextNonce()
	form.Set("nonce", strconv.FormatInt(nonce, 10))
	body := form.Encode()

	sign, err := c.sign(path, strconv.FormatInt(nonce, 10), body)
	if err != nil {
		return err
	}

	var envelope apiResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("API-Key", c.apiKey).
		SetHeader("API-Sign", sign).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(body).
		SetResult(&envelope).
		Post(path)
	if err != nil {
		return errors.Wrapf(err, "POST %s", path)
	}
	return decodeEnvelope(path, resp, &envelope, out)
}

func decodeEnvelope(path string, resp *resty.Response, envelope *apiResponse, out any) error {
	if !resp.IsSuccess() {
		return errors.Errorf("%s: http %d: %s", path, resp.StatusCode(), resp.String())
	}
	if len(envelope.Error) > 0 {
		return errors.Errorf("%s: kraken error: %s", path, strings.Join(envelope.Error, "; "))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return errors.Wrapf(err, "%s: decode result", path)
	}
	return nil
}

func (c *Client) nextNonce() int64 {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	nonce := time.Now().UnixMilli()
	if nonce <= c.lastNonce {
		nonce = c.lastNonce + 1
	}
	c.lastNonce = nonce
	return nonce
}

// sign computes API-Sign: HMAC-SHA512 of (uri path + SHA256(nonce + post
// data)) keyed with the base64-decoded secret.
func (c *Client) sign(path, nonce, body string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(c.secretKey)
	if err != nil {
		return "", errors.Wrap(err, "decode secret key")
	}

	sha := sha256.Sum256([]byte(nonce + body))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// restPair converts "ETH/USD" to the altname form "ETHUSD".
func restPair(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// ServerTime checks API reachability via the public Time endpoint.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var result struct {
		UnixTime int64 `json:"unixtime"`
	}
	if err := c.get(ctx, "/0/public/Time", nil, &result); err != nil {
		return time.Time{}, err
	}
	return time.Unix(result.UnixTime, 0), nil
}

// tickerEntry is the per-pair payload of the public Ticker endpoint;
// only the last-trade field is used.
type tickerEntry struct {
	Close []string `json:"c"` // [price, lot volume]
}

// LastPrice returns the most recent trade price for the pair.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	result := make(map[string]tickerEntry)
	params := map[string]string{"pair": restPair(symbol)}
	if err := c.get(ctx, "/0/public/Ticker", params, &result); err != nil {
		return 0, err
	}

	// the result key may be the altname or the legacy X/Z-prefixed name
	for _, entry := range result {
		if len(entry.Close) == 0 {
			continue
		}
		price, err := decimal.NewFromString(entry.Close[0])
		if err != nil {
			return 0, errors.Wrapf(err, "parse ticker price for %s", symbol)
		}
		f, _ := price.Float64()
		return f, nil
	}
	return 0, errors.Errorf("no ticker data for %s", symbol)
}

// OHLC fetches candle history. interval is in minutes; Kraken returns up
// to 720 candles, the caller trims to the count it needs.
func (c *Client) OHLC(ctx context.Context, symbol string, interval int) ([]domain.Candle, error) {
	params := map[string]string{
		"pair":     restPair(symbol),
		"interval": strconv.Itoa(interval),
	}

	result := make(map[string]json.RawMessage)
	if err := c.get(ctx, "/0/public/OHLC", params, &result); err != nil {
		return nil, err
	}

	for key, raw := range result {
		if key == "last" {
			continue
		}
		return parseOHLCRows(symbol, raw)
	}
	return nil, errors.Errorf("no OHLC data for %s", symbol)
}

// parseOHLCRows decodes Kraken's mixed-type candle rows:
// [time, "open", "high", "low", "close", "vwap", "volume", count]
func parseOHLCRows(symbol string, raw json.RawMessage) ([]domain.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, errors.Wrapf(err, "decode OHLC rows for %s", symbol)
	}

	candles := make([]domain.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			return nil, errors.Errorf("short OHLC row for %s", symbol)
		}
		var ts int64
		if err := json.Unmarshal(row[0], &ts); err != nil {
			return nil, errors.Wrapf(err, "parse OHLC timestamp for %s", symbol)
		}

		values := make([]float64, 0, 6)
		// open, high, low, close, vwap, volume come back as strings
		for i := 1; i <= 6; i++ {
			var s string
			if err := json.Unmarshal(row[i], &s); err != nil {
				return nil, errors.Wrapf(err, "parse OHLC field %d for %s", i, symbol)
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, errors.Wrapf(err, "parse OHLC value %q for %s", s, symbol)
			}
			f, _ := d.Float64()
			values = append(values, f)
		}

		candles = append(candles, domain.Candle{
			Time:   time.Unix(ts, 0),
			Open:   values[0],
			High:   values[1],
			Low:    values[2],
			Close:  values[3],
			Volume: values[5],
		})
	}
	return candles, nil
}

// Balance returns all non-zero account balances keyed by Kraken asset
// code (e.g. ZUSD, XETH).
func (c *Client) Balance(ctx context.Context) (map[string]float64, error) {
	result := make(map[string]string)
	if err := c.post(ctx, "/0/private/Balance", url.Values{}, &result); err != nil {
		return nil, err
	}

	balances := make(map[string]float64, len(result))
	for asset, amount := range result {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, errors.Wrapf(err, "parse balance for %s", asset)
		}
		f, _ := d.Float64()
		if f > 0 {
			balances[asset] = f
		}
	}
	return balances, nil
}

// AddOrder submits a market order and returns the transaction ID.
func (c *Client) AddOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (string, error) {
	form := url.Values{}
	form.Set("pair", restPair(symbol))
	form.Set("type", strings.ToLower(string(side)))
	form.Set("ordertype", "market")
	form.Set("volume", fmt.Sprintf("%.8f", quantity))

	var result struct {
		TxID []string `json:"txid"`
	}
	if err := c.post(ctx, "/0/private/AddOrder", form, &result); err != nil {
		return "", err
	}
	if len(result.TxID) == 0 {
		return "", errors.Errorf("AddOrder for %s accepted but returned no txid", symbol)
	}
	return result.TxID[0], nil
}
