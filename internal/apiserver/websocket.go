package apiserver

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
)

const (
	channelOrderbookPrefix = "orderbook:"
	channelSlotPrices      = "slot-prices"

	websocketReadLimit    = 64 * 1024
	websocketReadTimeout  = 90 * time.Second
	websocketWriteTimeout = 10 * time.Second
)

type websocketSubscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type websocketEnvelope struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	TS      int64  `json:"ts"`
}

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocketUpgrader
	upgrader.CheckOrigin = func(req *http.Request) bool {
		return s.isOriginAllowed(strings.TrimSpace(req.Header.Get("Origin")))
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newSubscriptionSet()
	readErrCh := make(chan error, 1)
	go s.websocketReadLoop(ctx, conn, subs, readErrCh)

	ticker := time.NewTicker(s.cfg.WSPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErrCh:
			if err != nil {
				s.logger.Debug("websocket read loop ended", "err", err)
			}
			return
		case <-ticker.C:
			for _, channel := range subs.List() {
				payload, err := s.websocketPayload(ctx, channel)
				if err != nil {
					_, kind := statusFor(err)
					if werr := s.writeWebsocketJSON(conn, websocketEnvelope{Type: "error", Channel: channel, Error: kind}); werr != nil {
						return
					}
					continue
				}
				if err := s.writeWebsocketJSON(conn, websocketEnvelope{Type: "event", Channel: channel, Data: payload}); err != nil {
					return
				}
			}
		}
	}
}

func (s *Service) websocketReadLoop(ctx context.Context, conn *websocket.Conn, subs *subscriptionSet, readErrCh chan<- error) {
	conn.SetReadLimit(websocketReadLimit)
	if err := conn.SetReadDeadline(time.Now().Add(websocketReadTimeout)); err == nil {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(websocketReadTimeout))
		})
	}
	for {
		select {
		case <-ctx.Done():
			readErrCh <- nil
			return
		default:
		}
		var message websocketSubscribeRequest
		if err := conn.ReadJSON(&message); err != nil {
			readErrCh <- err
			return
		}
		message.Type = strings.ToLower(strings.TrimSpace(message.Type))
		message.Channel = strings.TrimSpace(message.Channel)
		if message.Channel == "" {
			continue
		}
		switch message.Type {
		case "subscribe":
			subs.Add(message.Channel)
		case "unsubscribe":
			subs.Remove(message.Channel)
		}
	}
}

func (s *Service) websocketPayload(ctx context.Context, channel string) (any, error) {
	switch {
	case channel == channelSlotPrices:
		now := s.clock.Now()
		prices, err := s.scheduler.SlotMarketPrices(now, now.Add(defaultPriceWindow))
		if err != nil {
			return nil, err
		}
		return newSlotPriceDTOs(prices), nil
	case strings.HasPrefix(channel, channelOrderbookPrefix):
		raw := strings.TrimPrefix(channel, channelOrderbookPrefix)
		market, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, invalid(raw, "invalid market")
		}
		book, err := s.chain.OrderBook(ctx, market)
		if err != nil {
			return nil, err
		}
		return newBookDTO(market.String(), book, defaultBookLevels), nil
	}
	return nil, invalid(channel, "unknown channel")
}

func (s *Service) writeWebsocketJSON(conn *websocket.Conn, payload websocketEnvelope) error {
	payload.TS = s.clock.Now().UnixMilli()
	if err := conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}

type subscriptionSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{items: map[string]struct{}{}}
}

func (s *subscriptionSet) Add(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[channel] = struct{}{}
}

func (s *subscriptionSet) Remove(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, channel)
}

func (s *subscriptionSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for channel := range s.items {
		out = append(out, channel)
	}
	return out
}
