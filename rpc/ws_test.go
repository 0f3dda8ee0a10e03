package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"stakerchain/core/events"
	"stakerchain/native/staker"
)

func dialEvents(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn, ctx
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) wsEvent {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	var frame wsEvent
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) wsEvent {
	t.Helper()
	for {
		if frame := readFrame(t, ctx, conn); frame.Type == typ {
			return frame
		}
	}
}

func TestEventStreamReplaysAndFollows(t *testing.T) {
	f := newFixture(t, RateLimit{})
	require.NoError(t, f.engine.Stake(f.alice, oneEther))

	srv := httptest.NewServer(f.handler)
	defer srv.Close()
	conn, ctx := dialEvents(t, srv, "?backlog=10")

	first := readUntil(t, ctx, conn, staker.EventTypeStaked)
	require.Equal(t, oneEther.String(), first.Attributes["amount"])

	f.advance(180 * time.Second)
	_, err := f.engine.Execute()
	require.NoError(t, err)

	next := readUntil(t, ctx, conn, staker.EventTypeExecuted)
	require.Greater(t, next.Sequence, first.Sequence)
}

func TestEventStreamRejectsBadBacklog(t *testing.T) {
	f := newFixture(t, RateLimit{})
	req := httptest.NewRequest(http.MethodGet, "/ws/events?backlog=-1", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventStreamUnavailableWithoutLog(t *testing.T) {
	handler := NewServer(Config{}).Handler()
	req := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventStreamClosesLaggingSubscriber(t *testing.T) {
	log := events.NewLog(0)
	s := NewServer(Config{Events: log})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn, ctx := dialEvents(t, srv, "?backlog=0")

	// The handler subscribes after the handshake; probe until a frame arrives.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				log.Emit(events.Transfer{Amount: big.NewInt(1), Reason: "probe"})
			}
		}
	}()
	readFrame(t, ctx, conn)
	close(stop)

	// Not reading lets the socket back up until the subscriber buffer overflows.
	for i := 0; i < 100_000; i++ {
		log.Emit(events.Transfer{Amount: big.NewInt(int64(i)), Reason: "stake"})
	}
	var closeErr error
	for closeErr == nil {
		_, _, closeErr = conn.Read(ctx)
	}
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(closeErr))
}
