package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"datarecorder/internal/model"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFeedServer is a minimal feed endpoint. It records the frames it receives
// and, after the first text frame, writes the queued frames back.
type TestFeedServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received [][]byte
	queue    [][]byte
	reject   bool
}

func NewTestFeedServer() *TestFeedServer {
	ts := &TestFeedServer{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	ts.server = httptest.NewServer(http.HandlerFunc(ts.handle))
	return ts
}

func (ts *TestFeedServer) handle(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	reject := ts.reject
	ts.mu.Unlock()
	if reject {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	conn, err := ts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ts.mu.Lock()
	ts.conns = append(ts.conns, conn)
	ts.mu.Unlock()

	defer conn.Close()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ts.mu.Lock()
		ts.received = append(ts.received, data)
		queued := ts.queue
		ts.queue = nil
		ts.mu.Unlock()

		for _, msg := range queued {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (ts *TestFeedServer) URL() string {
	return "ws" + strings.TrimPrefix(ts.server.URL, "http")
}

func (ts *TestFeedServer) Queue(msgs ...string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, m := range msgs {
		ts.queue = append(ts.queue, []byte(m))
	}
}

func (ts *TestFeedServer) Received() [][]byte {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([][]byte, len(ts.received))
	copy(out, ts.received)
	return out
}

// DropAll closes every server-side connection without a close frame.
func (ts *TestFeedServer) DropAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, c := range ts.conns {
		c.Close()
	}
}

func (ts *TestFeedServer) Close() {
	ts.DropAll()
	ts.server.Close()
}

// createTickHandler turns every frame into one tick whose code is the frame text.
func createTickHandler() Handler {
	return func(ctx context.Context, data []byte, out chan<- model.TickEvent) error {
		ev := model.TickEvent{
			Code:      string(data),
			Date:      "20160401",
			Time:      "09:30:00",
			LastPrice: decimal.NewNullDecimal(decimal.NewFromInt(100)),
		}
		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func Test_NewWebsocketClient_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{
			name:     "Empty endpoint",
			config:   Config{Handler: createTickHandler()},
			errorMsg: "endpoint URL is required",
		},
		{
			name:     "Nil handler",
			config:   Config{Endpoint: "ws://localhost:1/ticks"},
			errorMsg: "message handler is required",
		},
		{
			name:     "Unreachable endpoint",
			config:   Config{Endpoint: "ws://127.0.0.1:1/ticks", Handler: createTickHandler()},
			errorMsg: "initial dial failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			client, err := NewWebsocketClient(ctx, tt.config)
			require.Error(t, err)
			assert.Nil(t, client)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func Test_NewWebsocketClient_Rejected(t *testing.T) {
	server := NewTestFeedServer()
	server.reject = true
	defer server.Close()

	client, err := NewWebsocketClient(context.Background(), Config{Endpoint: server.URL(), Handler: createTickHandler()})
	require.Error(t, err)
	assert.Nil(t, client)
}

func Test_NewWebsocketClient_Defaults(t *testing.T) {
	server := NewTestFeedServer()
	defer server.Close()

	client, err := NewWebsocketClient(context.Background(), Config{Endpoint: server.URL(), Handler: createTickHandler()})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, defaultPingPeriod, client.cfg.PingPeriod)
	assert.Equal(t, defaultSendTimeout, client.cfg.SendTimeout)
	assert.Equal(t, defaultTickBuffer, cap(client.TickChan))
	assert.Empty(t, client.cfg.SubscriptionMessages)

	select {
	case <-client.DisconnectChan():
		t.Error("should not be disconnected initially")
	default:
	}
}

// Test_Client_SubscribeAndReceive tests that subscriptions are sent and frames
// are decoded in arrival order.
func Test_Client_SubscribeAndReceive(t *testing.T) {
	server := NewTestFeedServer()
	defer server.Close()
	server.Queue("IF1604", "IH1604", "IF1604")

	client, err := NewWebsocketClient(context.Background(), Config{
		Endpoint:             server.URL(),
		Handler:              createTickHandler(),
		SubscriptionMessages: [][]byte{[]byte(`{"op":"subscribe","args":["IF1604","IH1604"]}`)},
	})
	require.NoError(t, err)
	defer client.Close()

	var codes []string
	timeout := time.After(2 * time.Second)
	for len(codes) < 3 {
		select {
		case ev := <-client.TickChan:
			codes = append(codes, ev.Code)
		case <-timeout:
			t.Fatalf("received %d of 3 ticks", len(codes))
		}
	}
	assert.Equal(t, []string{"IF1604", "IH1604", "IF1604"}, codes)

	received := server.Received()
	require.NotEmpty(t, received)
	assert.JSONEq(t, `{"op":"subscribe","args":["IF1604","IH1604"]}`, string(received[0]))
}

// Test_Client_HandlerFailures tests that failing and panicking handlers do not
// stop the read loop.
func Test_Client_HandlerFailures(t *testing.T) {
	server := NewTestFeedServer()
	defer server.Close()
	server.Queue("error", "panic", "IF1604")

	handler := func(ctx context.Context, data []byte, out chan<- model.TickEvent) error {
		switch string(data) {
		case "error":
			return errors.New("bad frame")
		case "panic":
			panic("bad frame")
		}
		return createTickHandler()(ctx, data, out)
	}

	client, err := NewWebsocketClient(context.Background(), Config{
		Endpoint:             server.URL(),
		Handler:              handler,
		SubscriptionMessages: [][]byte{[]byte("subscribe")},
	})
	require.NoError(t, err)
	defer client.Close()

	select {
	case ev := <-client.TickChan:
		assert.Equal(t, "IF1604", ev.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("tick after failing frames was not delivered")
	}
}

// Test_Client_ServerDisconnect tests the disconnect signalling.
func Test_Client_ServerDisconnect(t *testing.T) {
	server := NewTestFeedServer()
	defer server.Close()

	client, err := NewWebsocketClient(context.Background(), Config{
		Endpoint:             server.URL(),
		Handler:              createTickHandler(),
		SubscriptionMessages: [][]byte{[]byte("subscribe")},
	})
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return len(server.Received()) == 1 }, time.Second, 10*time.Millisecond)
	server.DropAll()

	select {
	case <-client.DisconnectChan():
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect was not signalled")
	}

	select {
	case err := <-client.ErrChan():
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}

	_, open := <-client.TickChan
	assert.False(t, open, "TickChan is closed after disconnect")
}

// Test_Client_ContextCancel tests shutdown through the parent context.
func Test_Client_ContextCancel(t *testing.T) {
	server := NewTestFeedServer()
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client, err := NewWebsocketClient(ctx, Config{Endpoint: server.URL(), Handler: createTickHandler()})
	require.NoError(t, err)

	cancel()

	select {
	case <-client.DisconnectChan():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop after cancellation")
	}

	assert.NotPanics(t, client.Close, "Close is idempotent")
}

// Test_Client_CloseWithFullBuffer tests that Close interrupts a read loop
// blocked on a full TickChan and that TickChan is then closed.
func Test_Client_CloseWithFullBuffer(t *testing.T) {
	server := NewTestFeedServer()
	defer server.Close()
	server.Queue("IF1604", "IF1604", "IF1604", "IF1604", "IF1604", "IF1604", "IF1604", "IF1604", "IF1604", "IF1604")

	client, err := NewWebsocketClient(context.Background(), Config{
		Endpoint:             server.URL(),
		Handler:              createTickHandler(),
		TickBuffer:           1,
		SubscriptionMessages: [][]byte{[]byte("subscribe")},
	})
	require.NoError(t, err)

	// Nothing reads, so the second tick blocks the read loop
	require.Eventually(t, func() bool { return len(client.TickChan) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	client.Close()
	assert.Less(t, time.Since(start), 2*time.Second, "Close should not wait out its timeout")

	select {
	case <-client.DisconnectChan():
	case <-time.After(time.Second):
		t.Fatal("read loop did not exit")
	}

	drained := 0
	for range client.TickChan {
		drained++
	}
	assert.LessOrEqual(t, drained, 1, "Only the buffered tick remains")
}
