package activity

import (
	"bufio"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/jarvik/webclient/internal/service/activity"
)

func TestWebSocketStreamsEvents(t *testing.T) {
	hub := activity.NewHub()
	r := chi.NewRouter()
	New(hub, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/activity/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	id := hub.Start("ask")
	hub.Finish(id, "ask", "boom")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pending, final activity.Event
	require.NoError(t, conn.ReadJSON(&pending))
	require.NoError(t, conn.ReadJSON(&final))

	assert.Equal(t, activity.KindPending, pending.Kind)
	assert.Equal(t, id, pending.ID)
	assert.Equal(t, activity.KindError, final.Kind)
	assert.Equal(t, "boom", final.Message)
}

func TestWebSocketUnsubscribesOnClose(t *testing.T) {
	hub := activity.NewHub()
	r := chi.NewRouter()
	New(hub, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/activity/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamSendsEvents(t *testing.T) {
	hub := activity.NewHub()
	r := chi.NewRouter()
	New(hub, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/activity/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(activity.Event{ID: "op-1", Kind: activity.KindDone, Operation: "ask"})

	var frame []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			if len(frame) > 0 {
				break
			}
			continue
		}
		frame = append(frame, strings.TrimSuffix(line, "\n"))
	}
	require.Len(t, frame, 2)
	assert.Equal(t, "event: done", frame[0])
	assert.Contains(t, frame[1], `"id":"op-1"`)
}
