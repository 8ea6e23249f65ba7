package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"notebridge/internal/models"
)

// fakeConnection builds a ClientConnection without a real websocket; the
// bridge only queues frames onto WriteChan.
func fakeConnection(clientID string) *models.ClientConnection {
	return &models.ClientConnection{
		ClientID:  clientID,
		UserID:    clientID,
		CreatedAt: time.Now(),
		WriteChan: make(chan models.ServerFrame, 16),
		StopChan:  make(chan bool),
	}
}

func TestBridgeFileContentRoundTrip(t *testing.T) {
	bridge := NewClientBridge()
	conn := fakeConnection("user_abc123def")
	bridge.Register(conn)
	defer bridge.Unregister(conn)

	// Answer the frame the way a client's read loop would.
	go func() {
		frame := <-conn.WriteChan
		if frame.Type != models.FrameFetchFileContent || frame.Title != "groceries" {
			t.Errorf("unexpected frame: %+v", frame)
		}
		content := "milk\neggs"
		bridge.HandleResponse(conn.ClientID, models.ClientFrame{
			Type:      models.FrameFileContentResponse,
			RequestID: frame.RequestID,
			Content:   &content,
		})
	}()

	got, err := bridge.RequestFileContent(context.Background(), conn.ClientID, "groceries", time.Second)
	if err != nil {
		t.Fatalf("RequestFileContent: %v", err)
	}
	if got != "milk\neggs" {
		t.Errorf("content = %q", got)
	}
	if n := bridge.PendingCount(); n != 0 {
		t.Errorf("pending after round trip = %d, want 0", n)
	}
}

func TestBridgeSearchRoundTrip(t *testing.T) {
	bridge := NewClientBridge()
	conn := fakeConnection("user_abc123def")
	bridge.Register(conn)
	defer bridge.Unregister(conn)

	go func() {
		frame := <-conn.WriteChan
		bridge.HandleResponse(conn.ClientID, models.ClientFrame{
			Type:      models.FrameSearchResultsResponse,
			RequestID: frame.RequestID,
			Results:   []models.SearchResult{{Title: "groceries", Snippet: "milk", Line: 1}},
		})
	}()

	results, err := bridge.RequestSearchResults(context.Background(), conn.ClientID, "milk", "content", time.Second)
	if err != nil {
		t.Fatalf("RequestSearchResults: %v", err)
	}
	if len(results) != 1 || results[0].Title != "groceries" {
		t.Errorf("results = %+v", results)
	}
}

func TestBridgeNotConnected(t *testing.T) {
	bridge := NewClientBridge()
	_, err := bridge.RequestFileContent(context.Background(), "ghost", "x", time.Second)
	if !errors.Is(err, ErrClientNotConnected) {
		t.Fatalf("err = %v, want ErrClientNotConnected", err)
	}
}

func TestBridgeTimeout(t *testing.T) {
	bridge := NewClientBridge()
	conn := fakeConnection("user_abc123def")
	bridge.Register(conn)
	defer bridge.Unregister(conn)

	_, err := bridge.RequestFileContent(context.Background(), conn.ClientID, "slow note", 50*time.Millisecond)
	var timeoutErr *RequestTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want RequestTimeoutError", err)
	}
	if bridge.PendingCount() != 0 {
		t.Error("timed-out request should be dropped")
	}

	// A late reply for the dropped id must be a no-op.
	frame := <-conn.WriteChan
	content := "too late"
	bridge.HandleResponse(conn.ClientID, models.ClientFrame{RequestID: frame.RequestID, Content: &content})

	// The connection still works for a fresh request.
	go func() {
		f := <-conn.WriteChan
		ok := "fresh"
		bridge.HandleResponse(conn.ClientID, models.ClientFrame{RequestID: f.RequestID, Content: &ok})
	}()
	got, err := bridge.RequestFileContent(context.Background(), conn.ClientID, "fresh note", time.Second)
	if err != nil || got != "fresh" {
		t.Fatalf("second request = %q, %v", got, err)
	}
}

func TestBridgeContextCancellation(t *testing.T) {
	bridge := NewClientBridge()
	conn := fakeConnection("user_abc123def")
	bridge.Register(conn)
	defer bridge.Unregister(conn)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-conn.WriteChan
		cancel()
	}()

	_, err := bridge.RequestFileContent(ctx, conn.ClientID, "x", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBridgeDisconnectFailsPending(t *testing.T) {
	bridge := NewClientBridge()
	conn := fakeConnection("user_abc123def")
	bridge.Register(conn)

	errCh := make(chan error, 1)
	go func() {
		_, err := bridge.RequestFileContent(context.Background(), conn.ClientID, "x", 5*time.Second)
		errCh <- err
	}()

	<-conn.WriteChan // request is in flight
	bridge.Unregister(conn)

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error after disconnect")
		}
	case <-time.After(time.Second):
		t.Fatal("pending request was not failed on disconnect")
	}
	if bridge.IsConnected(conn.ClientID) {
		t.Error("client should be gone after Unregister")
	}
}

func TestBridgeClientError(t *testing.T) {
	bridge := NewClientBridge()
	conn := fakeConnection("user_abc123def")
	bridge.Register(conn)
	defer bridge.Unregister(conn)

	go func() {
		frame := <-conn.WriteChan
		bridge.HandleResponse(conn.ClientID, models.ClientFrame{
			RequestID: frame.RequestID,
			Error:     "note not found",
		})
	}()

	_, err := bridge.RequestFileContent(context.Background(), conn.ClientID, "missing", time.Second)
	if err == nil || err.Error() != "client error: note not found" {
		t.Fatalf("err = %v, want client error", err)
	}
}

func TestBridgeWrongClientCannotAnswer(t *testing.T) {
	bridge := NewClientBridge()
	owner := fakeConnection("user_owner1234")
	thief := fakeConnection("user_thief1234")
	bridge.Register(owner)
	bridge.Register(thief)
	defer bridge.Unregister(owner)
	defer bridge.Unregister(thief)

	go func() {
		frame := <-owner.WriteChan
		stolen := "stolen"
		// Wrong client id: must be ignored.
		bridge.HandleResponse(thief.ClientID, models.ClientFrame{RequestID: frame.RequestID, Content: &stolen})
		answer := "real"
		bridge.HandleResponse(owner.ClientID, models.ClientFrame{RequestID: frame.RequestID, Content: &answer})
	}()

	got, err := bridge.RequestFileContent(context.Background(), owner.ClientID, "x", time.Second)
	if err != nil {
		t.Fatalf("RequestFileContent: %v", err)
	}
	if got != "real" {
		t.Errorf("content = %q, want answer from the owning client", got)
	}
}

func TestBridgeReconnectDisplacesOld(t *testing.T) {
	bridge := NewClientBridge()
	first := fakeConnection("user_abc123def")
	bridge.Register(first)

	second := fakeConnection("user_abc123def")
	bridge.Register(second)
	defer bridge.Unregister(second)

	if !first.IsClosed() {
		t.Error("displaced connection should be marked closed")
	}
	if bridge.Count() != 1 {
		t.Errorf("Count = %d, want 1", bridge.Count())
	}

	// Unregister of the stale connection must not remove the new one.
	bridge.Unregister(first)
	if !bridge.IsConnected("user_abc123def") {
		t.Error("new connection should survive unregister of the displaced one")
	}
}
