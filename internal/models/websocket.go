package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// WebSocket frame types. Server→client frames carry a request_id the client
// must echo back; that id is how the correlator matches a reply to the
// suspended tool call.
const (
	FrameFetchFileContent      = "fetch_file_content"
	FrameFetchSearchResults    = "fetch_search_results"
	FramePing                  = "ping"
	FramePong                  = "pong"
	FrameFileContentResponse   = "file_content_response"
	FrameSearchResultsResponse = "search_results_response"
)

// ServerFrame is a message sent to the client.
type ServerFrame struct {
	Type       string `json:"type"`
	RequestID  string `json:"request_id,omitempty"`
	Title      string `json:"title,omitempty"`       // fetch_file_content
	Query      string `json:"query,omitempty"`       // fetch_search_results
	SearchType string `json:"search_type,omitempty"` // fetch_search_results
}

// ClientFrame is a message received from the client.
type ClientFrame struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	Content   *string        `json:"content,omitempty"` // file_content_response
	Results   []SearchResult `json:"results,omitempty"` // search_results_response
	Error     string         `json:"error,omitempty"`
}

// SearchResult is one hit from a client-side note search.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ClientConnection is one live WebSocket, keyed by client_id (in practice
// the authenticated user_id). Frames are written only by the write loop
// draining WriteChan.
type ClientConnection struct {
	ClientID  string
	UserID    string
	Conn      *websocket.Conn
	CreatedAt time.Time
	WriteChan chan ServerFrame
	StopChan  chan bool
	Mutex     sync.Mutex
	closed    bool
}

// SafeSend queues a frame, returning false if the connection is closed.
func (cc *ClientConnection) SafeSend(frame ServerFrame) bool {
	cc.Mutex.Lock()
	if cc.closed {
		cc.Mutex.Unlock()
		return false
	}
	cc.Mutex.Unlock()

	// Recover from send on a channel closed between the check and the send.
	defer func() {
		if r := recover(); r != nil {
			cc.Mutex.Lock()
			cc.closed = true
			cc.Mutex.Unlock()
		}
	}()

	cc.WriteChan <- frame
	return true
}

// MarkClosed marks the connection as closed.
func (cc *ClientConnection) MarkClosed() {
	cc.Mutex.Lock()
	cc.closed = true
	cc.Mutex.Unlock()
}

// IsClosed reports whether the connection has been marked closed.
func (cc *ClientConnection) IsClosed() bool {
	cc.Mutex.Lock()
	defer cc.Mutex.Unlock()
	return cc.closed
}
