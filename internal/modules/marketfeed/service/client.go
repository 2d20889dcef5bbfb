package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	brokersvc "trade_core/internal/modules/broker/service"
	"trade_core/internal/modules/config"
	healthsvc "trade_core/internal/modules/health/service"
	"trade_core/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Client streams closed candles over WebSocket and publishes each one
// to the broker. One connection per timeframe, the whole watchlist
// subscribed in a single batch on it.
type Client struct {
	cfg    *config.Config
	brk    *brokersvc.Broker
	health *healthsvc.State

	dialer *websocket.Dialer

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(cfg *config.Config, brk *brokersvc.Broker, health *healthsvc.State) *Client {
	return &Client{
		cfg:    cfg,
		brk:    brk,
		health: health,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Start launches one streamer goroutine per configured interval.
func (c *Client) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for _, interval := range c.cfg.Feed.Intervals {
		c.wg.Add(1)
		go func(interval string) {
			defer c.wg.Done()
			c.runInterval(ctx, interval)
		}(interval)
	}
}

func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

// runInterval keeps one subscription alive, reconnecting with
// exponential backoff after any error.
func (c *Client) runInterval(ctx context.Context, interval string) {
	channel := "candle" + interval
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.streamOnce(ctx, channel, interval)
		if ctx.Err() != nil {
			return
		}
		logger.Error("feed: %s stream ended: %v", channel, err)
		c.health.SetWSConnected(false)

		delay := helper.Backoff(time.Second, attempt, c.cfg.Feed.MaxBackoff)
		attempt++
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) streamOnce(ctx context.Context, channel, interval string) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.Feed.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := make([]map[string]string, 0, len(c.cfg.Feed.Watchlist))
	for _, sym := range c.cfg.Feed.Watchlist {
		args = append(args, map[string]string{
			"channel": channel,
			"instId":  sym,
		})
	}
	if err := conn.WriteJSON(map[string]any{"op": "subscribe", "args": args}); err != nil {
		return err
	}

	logger.Info("feed: %s connected, %d symbols", channel, len(args))
	c.health.SetWSConnected(true)

	// keepalive ping, the venue drops silent connections
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(c.cfg.Feed.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopPing:
				return
			case <-t.C:
				_ = conn.WriteJSON(map[string]string{"op": "ping"})
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(ctx, channel, interval, raw)
	}
}

func (c *Client) handleFrame(ctx context.Context, channel, interval string, raw []byte) {
	var frame struct {
		Arg struct {
			Channel string `json:"channel"`
			InstID  string `json:"instId"`
		} `json:"arg"`
		Data [][]string `json:"data"`
	}
	if err := sonic.Unmarshal(raw, &frame); err != nil {
		return
	}
	if frame.Arg.Channel != channel || len(frame.Data) == 0 {
		return
	}

	for _, row := range frame.Data {
		tick, ok := parseCandleRow(frame.Arg.InstID, interval, row)
		if !ok {
			continue
		}

		c.health.TouchTick(tick.CloseTime)
		if _, err := c.brk.Publish(ctx, models.TopicMarketTickClosed, tick, "market-feed"); err != nil {
			logger.Error("feed: publish %s %s: %v", tick.Symbol, tick.Interval, err)
		}
	}
}

// parseCandleRow decodes one data row:
// [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm].
// Only confirmed (closed) bars pass; confirm is always the last
// element, so the index is not hardcoded.
func parseCandleRow(symbol, interval string, row []string) (models.CandleTick, bool) {
	if len(row) < 5 {
		return models.CandleTick{}, false
	}
	if row[len(row)-1] != "1" {
		return models.CandleTick{}, false
	}

	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return models.CandleTick{}, false
	}
	start := time.UnixMilli(tsMs)
	closeTime := start
	if d := timeframeToDuration(interval); d > 0 {
		closeTime = start.Add(d)
	}

	open, err1 := strconv.ParseFloat(row[1], 64)
	high, err2 := strconv.ParseFloat(row[2], 64)
	low, err3 := strconv.ParseFloat(row[3], 64)
	closep, err4 := strconv.ParseFloat(row[4], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || closep <= 0 {
		return models.CandleTick{}, false
	}

	var vol float64
	if len(row) >= 6 {
		vol, _ = strconv.ParseFloat(row[5], 64)
	}
	var volQuote float64
	if len(row) >= 8 {
		volQuote, _ = strconv.ParseFloat(row[7], 64)
	}

	return models.CandleTick{
		Symbol:      symbol,
		Interval:    interval,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closep,
		Volume:      vol,
		VolumeQuote: volQuote,
		CloseTime:   closeTime,
		IsFinal:     true,
	}, true
}

func timeframeToDuration(tf string) time.Duration {
	switch helper.NormTF(tf) {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}
