package exchange

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/braulionova/bybit-orderflow-bot/internal/domain"
)

// BookHandler consumes the decoded feed. ApplyDelta returning
// domain.ErrSequenceGap forces a resubscribe so the exchange resends a fresh
// snapshot.
type BookHandler interface {
	ApplySnapshot(msg domain.SnapshotMsg)
	ApplyDelta(msg domain.DeltaMsg) error
	OnTrade(t domain.Trade)
}

// FeedClient is the Bybit V5 public stream client for a single symbol. It
// subscribes to the orderbook and publicTrade topics, keeps the connection
// alive with the op-ping heartbeat, reconnects with a fixed backoff, and
// decodes the wire messages into the inbound feed contract.
//
// Bybit batches level updates under one update id; the client decomposes each
// batch into per-level deltas carrying its own contiguous sequence stream,
// and maps any gap in the exchange update ids to a resubscribe.
type FeedClient struct {
	url     string
	symbol  string
	depth   int
	handler BookHandler
	log     *zap.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex // the connection allows one writer at a time
	nextSeq uint64
	lastU   uint64
	synced  bool
}

func NewFeedClient(url, symbol string, depth int, handler BookHandler, log *zap.Logger) *FeedClient {
	return &FeedClient{
		url:     url,
		symbol:  symbol,
		depth:   depth,
		handler: handler,
		log:     log,
	}
}

func (f *FeedClient) bookTopic() string {
	return "orderbook." + strconv.Itoa(f.depth) + "." + f.symbol
}

func (f *FeedClient) tradeTopic() string {
	return "publicTrade." + f.symbol
}

// Run connects and processes messages until the context is cancelled,
// reconnecting on any stream error.
func (f *FeedClient) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.connectAndRead(ctx); err != nil {
			f.log.Error("feed stream error", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (f *FeedClient) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	f.conn = conn
	f.synced = false

	if err := f.subscribe(); err != nil {
		return err
	}

	pingDone := make(chan struct{})
	defer close(pingDone)
	go f.pingLoop(pingDone)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.route(raw)
	}
}

// writeJSON serializes control writes; the read goroutine resubscribes while
// the ping loop sends heartbeats on the same connection.
func (f *FeedClient) writeJSON(v interface{}) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.conn.WriteJSON(v)
}

func (f *FeedClient) subscribe() error {
	return f.writeJSON(map[string]interface{}{
		"op":   "subscribe",
		"args": []string{f.bookTopic(), f.tradeTopic()},
	})
}

// resubscribe forces the server to resend a snapshot after a sequence gap.
func (f *FeedClient) resubscribe() {
	f.synced = false
	if f.conn == nil {
		return
	}
	if err := f.writeJSON(map[string]interface{}{
		"op":   "unsubscribe",
		"args": []string{f.bookTopic()},
	}); err != nil {
		f.log.Error("unsubscribe failed", zap.Error(err))
		return
	}
	if err := f.writeJSON(map[string]interface{}{
		"op":   "subscribe",
		"args": []string{f.bookTopic()},
	}); err != nil {
		f.log.Error("resubscribe failed", zap.Error(err))
	}
}

func (f *FeedClient) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := f.writeJSON(map[string]string{"op": "ping"}); err != nil {
				return
			}
		}
	}
}

// wsEnvelope is the common shape of Bybit V5 public stream messages.
type wsEnvelope struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"` // "snapshot" or "delta"
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type wsOrderbookData struct {
	Symbol string      `json:"s"`
	Bids   [][2]string `json:"b"`
	Asks   [][2]string `json:"a"`
	U      uint64      `json:"u"`
	Seq    uint64      `json:"seq"`
}

type wsTrade struct {
	T     int64  `json:"T"`
	S     string `json:"s"`
	Side  string `json:"S"`
	Size  string `json:"v"`
	Price string `json:"p"`
}

func (f *FeedClient) route(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		f.log.Warn("malformed feed message", zap.Error(err))
		return
	}
	if env.Topic == "" {
		return // op acks, pong
	}

	switch env.Topic {
	case f.bookTopic():
		f.handleBook(env)
	case f.tradeTopic():
		f.handleTrades(env)
	}
}

func (f *FeedClient) handleBook(env wsEnvelope) {
	var data wsOrderbookData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		f.log.Warn("malformed orderbook data", zap.Error(err))
		return
	}
	ts := time.UnixMilli(env.TS)

	if env.Type == "snapshot" {
		f.nextSeq++
		f.lastU = data.U
		f.synced = true
		f.handler.ApplySnapshot(domain.SnapshotMsg{
			Symbol:    data.Symbol,
			Bids:      parseLevels(data.Bids),
			Asks:      parseLevels(data.Asks),
			Sequence:  f.nextSeq,
			Timestamp: ts,
		})
		return
	}

	if !f.synced {
		return // deltas before the post-resync snapshot are dropped
	}
	if data.U != f.lastU+1 {
		f.log.Warn("exchange update id gap",
			zap.Uint64("have", f.lastU), zap.Uint64("got", data.U))
		f.resubscribe()
		return
	}
	f.lastU = data.U

	for _, msg := range f.decompose(data, ts) {
		if err := f.handler.ApplyDelta(msg); err != nil {
			f.resubscribe()
			return
		}
	}
}

// decompose splits a batched exchange delta into per-level updates on the
// client's own contiguous sequence stream.
func (f *FeedClient) decompose(data wsOrderbookData, ts time.Time) []domain.DeltaMsg {
	out := make([]domain.DeltaMsg, 0, len(data.Bids)+len(data.Asks))
	add := func(side domain.BookSide, raw [2]string) {
		price, err1 := strconv.ParseFloat(raw[0], 64)
		qty, err2 := strconv.ParseFloat(raw[1], 64)
		if err1 != nil || err2 != nil {
			f.log.Warn("unparseable level", zap.String("price", raw[0]), zap.String("qty", raw[1]))
			return
		}
		f.nextSeq++
		out = append(out, domain.DeltaMsg{
			Symbol:    data.Symbol,
			Sequence:  f.nextSeq,
			Side:      side,
			Price:     price,
			Quantity:  qty,
			Timestamp: ts,
		})
	}
	for _, b := range data.Bids {
		add(domain.SideBid, b)
	}
	for _, a := range data.Asks {
		add(domain.SideAsk, a)
	}
	return out
}

func (f *FeedClient) handleTrades(env wsEnvelope) {
	var trades []wsTrade
	if err := json.Unmarshal(env.Data, &trades); err != nil {
		f.log.Warn("malformed trade data", zap.Error(err))
		return
	}
	for _, t := range trades {
		price, err1 := strconv.ParseFloat(t.Price, 64)
		size, err2 := strconv.ParseFloat(t.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		f.handler.OnTrade(domain.Trade{
			Symbol:    t.S,
			Side:      t.Side,
			Price:     price,
			Size:      size,
			Timestamp: time.UnixMilli(t.T),
		})
	}
}

func parseLevels(raw [][2]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, r := range raw {
		price, err1 := strconv.ParseFloat(r[0], 64)
		qty, err2 := strconv.ParseFloat(r[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels
}
