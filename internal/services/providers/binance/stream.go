package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"CoinTrend/pkg/logger"

	"github.com/gorilla/websocket"
)

const readTimeout = 60 * time.Second

// Stream is a combined kline websocket stream.
type Stream struct {
	url          string
	streams      []string
	pingInterval time.Duration
	log          *logger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewStream(baseURL string, streams []string, pingInterval time.Duration, log *logger.Logger) *Stream {
	return &Stream{
		url:          baseURL,
		streams:      streams,
		pingInterval: pingInterval,
		log:          log,
	}
}

// Connect dials the combined stream endpoint.
func (s *Stream) Connect(ctx context.Context) error {
	if len(s.streams) == 0 {
		return fmt.Errorf("binance stream requires at least one pair")
	}
	u := fmt.Sprintf("%s?streams=%s", s.url, strings.Join(s.streams, "/"))
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.log.Info("binance: connected", logger.Strings("streams", s.streams))
	return nil
}

// Read streams kline events until the connection fails or ctx is done.
// The error channel receives at most one error and is closed with the event channel.
func (s *Stream) Read(ctx context.Context) (<-chan klineEvent, <-chan error) {
	events := make(chan klineEvent, 256)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		errs <- fmt.Errorf("binance not connected")
		close(events)
		close(errs)
		return events, errs
	}

	readCtx, cancel := context.WithCancel(ctx)

	go func() {
		if s.pingInterval <= 0 {
			return
		}
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				s.mu.Unlock()
				if err != nil {
					s.log.Warn("binance: ping failed", logger.Error(err))
					return
				}
			}
		}
	}()

	// unblock ReadMessage on cancellation
	go func() {
		<-readCtx.Done()
		_ = conn.Close()
	}()

	go func() {
		defer cancel()
		defer close(events)
		defer close(errs)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("binance read: %w", err)
				}
				return
			}
			var env envelope
			if err := json.Unmarshal(b, &env); err != nil {
				s.log.Debug("binance: skipping frame", logger.Error(err))
				continue
			}
			if env.Data.Event != "kline" {
				continue
			}
			select {
			case events <- env.Data:
			case <-readCtx.Done():
				return
			}
		}
	}()

	return events, errs
}

// Close closes the websocket connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
