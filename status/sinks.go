package status

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/visualflow/storage"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// 📁 StorageSink
// =============================================================================

// ObjectWriter is the subset of storage.ObjectStore the sink needs.
type ObjectWriter interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// StorageSink writes each event as an indented JSON file under
// users/{uid}/{sid}/agent{n}/.
type StorageSink struct {
	store ObjectWriter
}

// NewStorageSink creates a sink over an object store.
func NewStorageSink(store ObjectWriter) *StorageSink {
	return &StorageSink{store: store}
}

// Name implements Sink.
func (s *StorageSink) Name() string { return "storage" }

// Key returns the object key an event is written to.
func (s *StorageSink) Key(e Event) string {
	return storage.AgentKey(e.UserID, e.SessionID, e.AgentNumber, e.FileName())
}

// Send implements Sink.
func (s *StorageSink) Send(ctx context.Context, e Event) error {
	body, err := json.MarshalIndent(e.Payload(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return s.store.PutObject(ctx, s.Key(e), body, "application/json")
}

// =============================================================================
// 🔌 WebsocketSink
// =============================================================================

// WebsocketSink streams events as JSON text frames to the orchestrator.
// It dials on first use and redials on the event after a failed write.
type WebsocketSink struct {
	url          string
	writeTimeout time.Duration
	logger       *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWebsocketSink creates a sink for url. A non-positive writeTimeout
// defaults to 10s.
func NewWebsocketSink(url string, writeTimeout time.Duration, logger *zap.Logger) *WebsocketSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebsocketSink{
		url:          url,
		writeTimeout: writeTimeout,
		logger:       logger.With(zap.String("component", "status_ws")),
	}
}

// Name implements Sink.
func (s *WebsocketSink) Name() string { return "websocket" }

// Send implements Sink.
func (s *WebsocketSink) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e.Payload())
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("websocket sink is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	if s.conn == nil {
		conn, _, err := websocket.Dial(ctx, s.url, nil)
		if err != nil {
			return fmt.Errorf("websocket connect: %w", err)
		}
		// handle pings and the close handshake; the orchestrator never sends data
		s.conn = conn
		s.conn.CloseRead(context.Background())
		s.logger.Debug("connected to orchestrator", zap.String("url", s.url))
	}

	if err := s.conn.Write(ctx, websocket.MessageText, body); err != nil {
		_ = s.conn.CloseNow()
		s.conn = nil
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close sends a normal closure and stops further sends.
func (s *WebsocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close(websocket.StatusNormalClosure, "done")
	s.conn = nil
	return err
}
