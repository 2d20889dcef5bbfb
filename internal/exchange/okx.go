package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trade_core/internal/helper"
	"trade_core/internal/models"

	"github.com/bytedance/sonic"
)

const (
	okxBaseURL     = "https://www.okx.com"
	okxTestnetFlag = "1" // x-simulated-trading
)

// OKX is a thin spot-trading client over the OKX v5 REST API.
// Credentials are passed per call so one client serves every account.
type OKX struct {
	http    *http.Client
	baseURL string
}

func NewOKX() *OKX {
	return &OKX{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: okxBaseURL,
	}
}

type instrumentMeta struct {
	LotSz  float64
	MinSz  float64
	TickSz float64
}

func (c *OKX) sign(creds models.Credentials, ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(creds.SecretKey))
	mac.Write([]byte(ts + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *OKX) signedRequest(ctx context.Context, creds models.Credentials, method, path, body string) (*http.Request, error) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("OK-ACCESS-KEY", creds.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(creds, ts, method, path, body))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", creds.Passphrase)
	req.Header.Set("Content-Type", "application/json")
	if creds.IsTestnet {
		req.Header.Set("x-simulated-trading", okxTestnetFlag)
	}
	return req, nil
}

func (c *OKX) instrument(ctx context.Context, symbol string) (instrumentMeta, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+"/api/v5/public/instruments?instType=SPOT&instId="+url.QueryEscape(symbol),
		nil,
	)
	if err != nil {
		return instrumentMeta{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return instrumentMeta{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return instrumentMeta{}, fmt.Errorf("http %d: %s", resp.StatusCode, string(rb))
	}

	var payload struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			LotSz  string `json:"lotSz"`
			MinSz  string `json:"minSz"`
			TickSz string `json:"tickSz"`
			State  string `json:"state"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(rb, &payload); err != nil {
		return instrumentMeta{}, fmt.Errorf("decode: %w", err)
	}
	if payload.Code != "0" {
		return instrumentMeta{}, fmt.Errorf("okx error %s: %s", payload.Code, payload.Msg)
	}
	if len(payload.Data) == 0 {
		return instrumentMeta{}, fmt.Errorf("instrument %s not found", symbol)
	}
	d := payload.Data[0]
	if d.State != "" && d.State != "live" {
		return instrumentMeta{}, fmt.Errorf("instrument %s not live: state=%s", symbol, d.State)
	}

	lotSz, _ := strconv.ParseFloat(d.LotSz, 64)
	minSz, _ := strconv.ParseFloat(d.MinSz, 64)
	tickSz, _ := strconv.ParseFloat(d.TickSz, 64)
	return instrumentMeta{LotSz: lotSz, MinSz: minSz, TickSz: tickSz}, nil
}

func (c *OKX) lastPrice(ctx context.Context, symbol string) (float64, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+"/api/v5/market/ticker?instId="+url.QueryEscape(symbol),
		nil,
	)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("http %d: %s", resp.StatusCode, string(rb))
	}

	var payload struct {
		Code string `json:"code"`
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(rb, &payload); err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	if payload.Code != "0" || len(payload.Data) == 0 {
		return 0, fmt.Errorf("ticker %s: empty response", symbol)
	}
	px, err := strconv.ParseFloat(payload.Data[0].Last, 64)
	if err != nil || px <= 0 {
		return 0, fmt.Errorf("ticker %s: bad price %q", symbol, payload.Data[0].Last)
	}
	return px, nil
}

// QuantityFromQuoteAmount converts a quote-currency budget into a base
// quantity at the last traded price, floored to the lot size.
func (c *OKX) QuantityFromQuoteAmount(ctx context.Context, symbol string, quoteAmount float64) (float64, error) {
	if quoteAmount <= 0 {
		return 0, fmt.Errorf("quote amount <= 0")
	}
	px, err := c.lastPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	meta, err := c.instrument(ctx, symbol)
	if err != nil {
		return 0, err
	}
	qty := helper.RoundDownToTick(quoteAmount/px, meta.LotSz)
	if qty < meta.MinSz {
		return 0, fmt.Errorf("quantity %.8f below min size %.8f", qty, meta.MinSz)
	}
	return qty, nil
}

func (c *OKX) ValidateOrder(_ context.Context, req OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return fmt.Errorf("unsupported side %q", req.Side)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity <= 0")
	}
	return nil
}

func (c *OKX) PlaceMarketOrder(ctx context.Context, creds models.Credentials, ord OrderRequest) (OrderResult, error) {
	body := map[string]string{
		"instId":  ord.Symbol,
		"tdMode":  "cash",
		"side":    strings.ToLower(string(ord.Side)),
		"ordType": "market",
		"sz":      formatQty(ord.Quantity),
		"tgtCcy":  "base_ccy",
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return OrderResult{}, fmt.Errorf("PlaceMarketOrder marshal: %w", err)
	}

	const requestPath = "/api/v5/trade/order"
	req, err := c.signedRequest(ctx, creds, http.MethodPost, requestPath, string(payload))
	if err != nil {
		return OrderResult{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return OrderResult{}, fmt.Errorf("PlaceMarketOrder do: %w", err)
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return OrderResult{}, fmt.Errorf("PlaceMarketOrder http %d: %s", resp.StatusCode, string(rb))
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			OrdID string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(rb, &r); err != nil {
		return OrderResult{}, fmt.Errorf("PlaceMarketOrder decode: %w", err)
	}
	if r.Code != "0" {
		return OrderResult{}, fmt.Errorf("okx order error: code=%s msg=%s", r.Code, r.Msg)
	}
	if len(r.Data) == 0 || r.Data[0].SCode != "0" {
		return OrderResult{}, fmt.Errorf("okx order reject: %s", string(rb))
	}

	return c.orderResult(ctx, creds, ord.Symbol, r.Data[0].OrdID)
}

// orderResult reads back the realized fill of a just-placed order.
func (c *OKX) orderResult(ctx context.Context, creds models.Credentials, symbol, ordID string) (OrderResult, error) {
	path := "/api/v5/trade/order?instId=" + url.QueryEscape(symbol) + "&ordId=" + url.QueryEscape(ordID)
	req, err := c.signedRequest(ctx, creds, http.MethodGet, path, "")
	if err != nil {
		return OrderResult{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return OrderResult{}, fmt.Errorf("order detail do: %w", err)
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return OrderResult{}, fmt.Errorf("order detail http %d: %s", resp.StatusCode, string(rb))
	}

	var r struct {
		Code string `json:"code"`
		Data []struct {
			AvgPx     string `json:"avgPx"`
			AccFillSz string `json:"accFillSz"`
			Fee       string `json:"fee"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(rb, &r); err != nil {
		return OrderResult{}, fmt.Errorf("order detail decode: %w", err)
	}
	if r.Code != "0" || len(r.Data) == 0 {
		return OrderResult{}, fmt.Errorf("order detail %s: empty response", ordID)
	}

	avg, _ := strconv.ParseFloat(r.Data[0].AvgPx, 64)
	filled, _ := strconv.ParseFloat(r.Data[0].AccFillSz, 64)
	fee, _ := strconv.ParseFloat(r.Data[0].Fee, 64)
	if fee < 0 {
		fee = -fee // OKX reports fees as negative deltas
	}
	return OrderResult{OrderID: ordID, AvgPrice: avg, FilledQty: filled, Fee: fee}, nil
}

func (c *OKX) PlaceOcoOrder(ctx context.Context, creds models.Credentials, oco OcoRequest) (string, error) {
	body := map[string]string{
		"instId":          oco.Symbol,
		"tdMode":          "cash",
		"side":            strings.ToLower(string(oco.Side)),
		"ordType":         "oco",
		"sz":              formatQty(oco.Quantity),
		"tpTriggerPx":     formatPx(oco.TakeProfit),
		"tpOrdPx":         "-1",
		"tpTriggerPxType": "last",
		"slTriggerPx":     formatPx(oco.StopLoss),
		"slOrdPx":         "-1",
		"slTriggerPxType": "last",
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("PlaceOcoOrder marshal: %w", err)
	}

	const requestPath = "/api/v5/trade/order-algo"
	req, err := c.signedRequest(ctx, creds, http.MethodPost, requestPath, string(payload))
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("PlaceOcoOrder do: %w", err)
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("PlaceOcoOrder http %d: %s", resp.StatusCode, string(rb))
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			AlgoID string `json:"algoId"`
			SCode  string `json:"sCode"`
			SMsg   string `json:"sMsg"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(rb, &r); err != nil {
		return "", fmt.Errorf("PlaceOcoOrder decode: %w", err)
	}
	if r.Code != "0" {
		return "", fmt.Errorf("okx algo error: code=%s msg=%s", r.Code, r.Msg)
	}
	if len(r.Data) == 0 {
		return "", fmt.Errorf("algo empty response: %s", string(rb))
	}
	if r.Data[0].SCode != "0" {
		return "", fmt.Errorf("algo reject: sCode=%s sMsg=%s", r.Data[0].SCode, r.Data[0].SMsg)
	}
	return r.Data[0].AlgoID, nil
}

func (c *OKX) CancelOcoOrder(ctx context.Context, creds models.Credentials, symbol, ocoOrderID string) error {
	body := []map[string]string{{"instId": symbol, "algoId": ocoOrderID}}
	payload, _ := sonic.Marshal(body)

	const requestPath = "/api/v5/trade/cancel-algos"
	req, err := c.signedRequest(ctx, creds, http.MethodPost, requestPath, string(payload))
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("CancelOcoOrder do: %w", err)
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("CancelOcoOrder http %d: %s", resp.StatusCode, string(rb))
	}

	var r struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(rb, &r); err != nil {
		return fmt.Errorf("CancelOcoOrder decode: %w", err)
	}
	if r.Code != "0" {
		return fmt.Errorf("CancelOcoOrder error: code=%s msg=%s", r.Code, r.Msg)
	}
	if len(r.Data) == 0 || r.Data[0].SCode != "0" {
		return fmt.Errorf("CancelOcoOrder reject: %s", string(rb))
	}
	return nil
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
