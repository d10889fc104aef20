package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/linear"
)

// BybitExecution is the signed V5 REST adapter behind the outbound execution
// contract. Entries go out as market orders with the native stop-loss and
// take-profit attached, so the protective orders live on the exchange and
// survive a crash of this process.
type BybitExecution struct {
	apiKey          string
	apiSecret       string
	baseURL         string
	orderQty        float64 // base quantity before the envelope multiplier
	riskPerTradePct float64
	equityUSD       float64 // 0 disables risk-based sizing
	leverage        int
	client          *http.Client
	log             *zap.Logger
}

func NewBybitExecution(apiKey, apiSecret, baseURL string, orderQty, riskPerTradePct, equityUSD float64, leverage int, log *zap.Logger) *BybitExecution {
	return &BybitExecution{
		apiKey:          apiKey,
		apiSecret:       apiSecret,
		baseURL:         baseURL,
		orderQty:        orderQty,
		riskPerTradePct: riskPerTradePct,
		equityUSD:       equityUSD,
		leverage:        leverage,
		client:          &http.Client{Timeout: 10 * time.Second},
		log:             log,
	}
}

func (b *BybitExecution) sign(params string, timestamp int64, recvWindow int) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *BybitExecution) sendRequest(ctx context.Context, method, path string, payload map[string]interface{}) ([]byte, error) {
	timestamp := time.Now().UnixMilli()
	recvWindow := 5000

	var body []byte
	var paramsStr string

	if payload != nil {
		jsonBody, _ := json.Marshal(payload)
		body = jsonBody
		paramsStr = string(jsonBody)
	} else if method == "GET" {
		if idx := strings.Index(path, "?"); idx != -1 {
			paramsStr = path[idx+1:]
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	signature := b.sign(paramsStr, timestamp, recvWindow)

	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-SIGN", signature)
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: %s", string(respBody))
	}

	return respBody, nil
}

func checkRetCode(resp []byte) error {
	var result struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return err
	}
	if result.RetCode != 0 {
		return fmt.Errorf("bybit error %d: %s", result.RetCode, result.RetMsg)
	}
	return nil
}

// quantity sizes the order. With account equity configured, the risk-per-trade
// budget is spread over the stop distance, so a stop-out loses close to the
// budgeted fraction of equity. Otherwise the fixed base quantity applies. The
// envelope multiplier scales both paths.
func (b *BybitExecution) quantity(instr domain.EntryInstruction) float64 {
	qty := b.orderQty
	if b.equityUSD > 0 && instr.ReferencePrice > 0 && instr.StopLossPct > 0 {
		riskUSD := b.equityUSD * b.riskPerTradePct / 100
		qty = riskUSD / (instr.ReferencePrice * instr.StopLossPct)
	}
	return qty * instr.QuantityMultiplier
}

// PlaceEntry submits the market entry with native SL/TP.
func (b *BybitExecution) PlaceEntry(ctx context.Context, instr domain.EntryInstruction) error {
	b.setLeverage(ctx, instr.Symbol)

	side := "Buy"
	if instr.Side == domain.SideShort {
		side = "Sell"
	}
	qty := b.quantity(instr)

	payload := map[string]interface{}{
		"category":    "linear",
		"symbol":      instr.Symbol,
		"side":        side,
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(qty, 'f', -1, 64),
		"timeInForce": "GTC",
		"stopLoss":    fmt.Sprintf("%.2f", instr.StopLossPrice()),
		"takeProfit":  fmt.Sprintf("%.2f", instr.TakeProfitPrice()),
		"tpslMode":    "Full",
		"slOrderType": instr.SLTPOrderType,
		"tpOrderType": instr.SLTPOrderType,
		"slTriggerBy": instr.SLTPTriggerBy,
		"tpTriggerBy": instr.SLTPTriggerBy,
	}

	resp, err := b.sendRequest(ctx, "POST", "/v5/order/create", payload)
	if err != nil {
		return err
	}
	return checkRetCode(resp)
}

// ClosePosition flattens the current position with a reduce-only market
// order.
func (b *BybitExecution) ClosePosition(ctx context.Context, symbol string) error {
	pos, err := b.getPosition(ctx, symbol)
	if err != nil {
		return err
	}
	if pos.size == 0 {
		return nil
	}

	closeSide := "Sell"
	if pos.side == "Sell" {
		closeSide = "Buy"
	}

	payload := map[string]interface{}{
		"category":   "linear",
		"symbol":     symbol,
		"side":       closeSide,
		"orderType":  "Market",
		"qty":        strconv.FormatFloat(pos.size, 'f', -1, 64),
		"reduceOnly": true,
	}

	resp, err := b.sendRequest(ctx, "POST", "/v5/order/create", payload)
	if err != nil {
		return err
	}
	return checkRetCode(resp)
}

type positionInfo struct {
	side string
	size float64
}

func (b *BybitExecution) getPosition(ctx context.Context, symbol string) (positionInfo, error) {
	path := "/v5/position/list?category=linear&symbol=" + symbol
	resp, err := b.sendRequest(ctx, "GET", path, nil)
	if err != nil {
		return positionInfo{}, err
	}

	var result struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				Side string `json:"side"`
				Size string `json:"size"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return positionInfo{}, err
	}
	if len(result.Result.List) == 0 {
		return positionInfo{}, nil
	}

	size, _ := strconv.ParseFloat(result.Result.List[0].Size, 64)
	return positionInfo{side: result.Result.List[0].Side, size: size}, nil
}

func (b *BybitExecution) setLeverage(ctx context.Context, symbol string) {
	payload := map[string]interface{}{
		"category":     "linear",
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(b.leverage),
		"sellLeverage": strconv.Itoa(b.leverage),
	}
	// Fails when the leverage is already set; safe to ignore.
	if _, err := b.sendRequest(ctx, "POST", "/v5/position/set-leverage", payload); err != nil {
		b.log.Debug("set leverage", zap.Error(err))
	}
}
