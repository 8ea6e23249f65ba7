package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"notebridge/internal/models"
)

// DefaultBridgeTimeout bounds how long a suspended tool call waits for the
// client to answer a fetch frame.
const DefaultBridgeTimeout = 30 * time.Second

const (
	staleSweepInterval = 30 * time.Second
	staleAfter         = 60 * time.Second
)

var ErrClientNotConnected = errors.New("client is not connected")

// RequestTimeoutError is returned when the client never answered a fetch
// frame within the timeout.
type RequestTimeoutError struct {
	Title   string
	Timeout time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("client did not respond within %s (request: %s)", e.Timeout, e.Title)
}

type bridgeResult struct {
	content *string
	results []models.SearchResult
	err     error
}

type pendingRequest struct {
	clientID string
	ch       chan bridgeResult // buffered 1; HandleResponse never blocks
}

// ClientBridge correlates server-initiated fetch frames with their client
// replies. A server-side tool call publishes a frame carrying a fresh
// request id, parks on a channel, and wakes when the websocket read loop
// hands the echoed id to HandleResponse.
type ClientBridge struct {
	mu             sync.Mutex
	connections    map[string]*models.ClientConnection
	pending        map[string]*pendingRequest
	clientRequests map[string]map[string]struct{} // clientID -> live request ids
	lastPing       map[string]time.Time

	stopSweeper chan struct{}
	sweeperOnce sync.Once
}

func NewClientBridge() *ClientBridge {
	return &ClientBridge{
		connections:    make(map[string]*models.ClientConnection),
		pending:        make(map[string]*pendingRequest),
		clientRequests: make(map[string]map[string]struct{}),
		lastPing:       make(map[string]time.Time),
		stopSweeper:    make(chan struct{}),
	}
}

// Register attaches a connection, displacing any previous connection for
// the same client id. The displaced connection's pending requests fail.
func (b *ClientBridge) Register(conn *models.ClientConnection) {
	b.mu.Lock()
	old := b.connections[conn.ClientID]
	b.connections[conn.ClientID] = conn
	b.lastPing[conn.ClientID] = time.Now()
	b.failPendingLocked(conn.ClientID, errors.New("client reconnected"))
	b.mu.Unlock()

	// Force the displaced connection's read loop to exit; its handler runs
	// the normal cleanup path.
	if old != nil {
		old.MarkClosed()
		if old.Conn != nil {
			_ = old.Conn.Close()
		}
	}
	log.Printf("🔌 [WS] Client connected: %s", conn.ClientID)
}

// Unregister detaches a connection if it is still the registered one and
// fails its pending requests.
func (b *ClientBridge) Unregister(conn *models.ClientConnection) {
	b.mu.Lock()
	if b.connections[conn.ClientID] == conn {
		delete(b.connections, conn.ClientID)
		delete(b.lastPing, conn.ClientID)
		b.failPendingLocked(conn.ClientID, errors.New("client disconnected"))
	}
	b.mu.Unlock()
	log.Printf("🔌 [WS] Client disconnected: %s", conn.ClientID)
}

// failPendingLocked resolves every live request of a client with err.
// Caller holds b.mu.
func (b *ClientBridge) failPendingLocked(clientID string, err error) {
	for id := range b.clientRequests[clientID] {
		if req, ok := b.pending[id]; ok {
			req.ch <- bridgeResult{err: err}
			delete(b.pending, id)
		}
	}
	delete(b.clientRequests, clientID)
}

// Touch records client liveness; called on every inbound frame.
func (b *ClientBridge) Touch(clientID string) {
	b.mu.Lock()
	if _, ok := b.connections[clientID]; ok {
		b.lastPing[clientID] = time.Now()
	}
	b.mu.Unlock()
}

// IsConnected reports whether a client has a live connection.
func (b *ClientBridge) IsConnected(clientID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.connections[clientID]
	return ok
}

// Count returns the number of live connections.
func (b *ClientBridge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.connections)
}

// PendingCount returns the number of in-flight correlator requests.
func (b *ClientBridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// RequestFileContent asks the client for the full content of a note and
// blocks until the reply, the timeout, or ctx cancellation.
func (b *ClientBridge) RequestFileContent(ctx context.Context, clientID, title string, timeout time.Duration) (string, error) {
	frame := models.ServerFrame{Type: models.FrameFetchFileContent, Title: title}
	result, err := b.roundTrip(ctx, clientID, frame, title, timeout)
	if err != nil {
		return "", err
	}
	if result.content == nil {
		return "", fmt.Errorf("client returned no content for %q", title)
	}
	return *result.content, nil
}

// RequestSearchResults asks the client to search its local notes.
func (b *ClientBridge) RequestSearchResults(ctx context.Context, clientID, query, searchType string, timeout time.Duration) ([]models.SearchResult, error) {
	frame := models.ServerFrame{Type: models.FrameFetchSearchResults, Query: query, SearchType: searchType}
	result, err := b.roundTrip(ctx, clientID, frame, query, timeout)
	if err != nil {
		return nil, err
	}
	return result.results, nil
}

func (b *ClientBridge) roundTrip(ctx context.Context, clientID string, frame models.ServerFrame, label string, timeout time.Duration) (bridgeResult, error) {
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}

	b.mu.Lock()
	conn, ok := b.connections[clientID]
	if !ok {
		b.mu.Unlock()
		return bridgeResult{}, ErrClientNotConnected
	}
	requestID := uuid.NewString()
	req := &pendingRequest{clientID: clientID, ch: make(chan bridgeResult, 1)}
	b.pending[requestID] = req
	if b.clientRequests[clientID] == nil {
		b.clientRequests[clientID] = make(map[string]struct{})
	}
	b.clientRequests[clientID][requestID] = struct{}{}
	b.mu.Unlock()

	frame.RequestID = requestID
	if !conn.SafeSend(frame) {
		b.drop(requestID)
		return bridgeResult{}, ErrClientNotConnected
	}

	select {
	case result := <-req.ch:
		if result.err != nil {
			return bridgeResult{}, result.err
		}
		return result, nil
	case <-ctx.Done():
		b.drop(requestID)
		return bridgeResult{}, ctx.Err()
	case <-time.After(timeout):
		b.drop(requestID)
		return bridgeResult{}, &RequestTimeoutError{Title: label, Timeout: timeout}
	}
}

// drop removes a request that will never be answered.
func (b *ClientBridge) drop(requestID string) {
	b.mu.Lock()
	if req, ok := b.pending[requestID]; ok {
		delete(b.pending, requestID)
		delete(b.clientRequests[req.clientID], requestID)
	}
	b.mu.Unlock()
}

// HandleResponse resolves the pending request named by the frame's echoed
// request id. Unknown ids (late replies after a timeout) are ignored.
func (b *ClientBridge) HandleResponse(clientID string, frame models.ClientFrame) {
	if frame.RequestID == "" {
		return
	}

	b.mu.Lock()
	req, ok := b.pending[frame.RequestID]
	if !ok || req.clientID != clientID {
		b.mu.Unlock()
		if ok {
			log.Printf("⚠️ [WS] Client %s answered a request it does not own", clientID)
		}
		return
	}
	delete(b.pending, frame.RequestID)
	delete(b.clientRequests[clientID], frame.RequestID)
	b.mu.Unlock()

	if frame.Error != "" {
		req.ch <- bridgeResult{err: fmt.Errorf("client error: %s", frame.Error)}
		return
	}
	req.ch <- bridgeResult{content: frame.Content, results: frame.Results}
}

// StartStaleSweeper closes connections that have been silent past the
// heartbeat deadline. Call once at startup.
func (b *ClientBridge) StartStaleSweeper() {
	go func() {
		ticker := time.NewTicker(staleSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.sweepStale()
			case <-b.stopSweeper:
				return
			}
		}
	}()
}

func (b *ClientBridge) sweepStale() {
	cutoff := time.Now().Add(-staleAfter)

	b.mu.Lock()
	var stale []*models.ClientConnection
	for clientID, conn := range b.connections {
		if b.lastPing[clientID].Before(cutoff) {
			stale = append(stale, conn)
		}
	}
	b.mu.Unlock()

	for _, conn := range stale {
		log.Printf("💤 [WS] Closing stale connection: %s", conn.ClientID)
		conn.MarkClosed()
		if conn.Conn != nil {
			_ = conn.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Heartbeat timeout"))
			_ = conn.Conn.Close()
		}
		b.Unregister(conn)
	}
}

// Stop halts the sweeper and fails everything in flight.
func (b *ClientBridge) Stop() {
	b.sweeperOnce.Do(func() { close(b.stopSweeper) })

	b.mu.Lock()
	conns := make([]*models.ClientConnection, 0, len(b.connections))
	for _, conn := range b.connections {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		conn.MarkClosed()
		b.Unregister(conn)
	}
}
