package progress

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStringFormats(t *testing.T) {
	evt := NewResolvingEvent("left-pad", "^1.0.0")
	assert.Contains(t, evt.String(), "left-pad")
	assert.Contains(t, evt.String(), "^1.0.0")

	errEvt := NewErrorEvent("a", assert.AnError)
	assert.Contains(t, errEvt.String(), "a")
	assert.Contains(t, errEvt.String(), "error")
}

func TestBroadcasterPublishesToConnectedClient(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(b.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// give the server a moment to register the client before publishing
	time.Sleep(50 * time.Millisecond)
	b.Publish(NewDoneEvent("install complete"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "done")
	assert.Contains(t, string(data), "install complete")
}

func TestBroadcasterReporterAdaptsPublish(t *testing.T) {
	b := NewBroadcaster()
	var reporter func(Event) = b.Reporter()
	assert.NotPanics(t, func() {
		reporter(NewInstallingEvent("a"))
	})
}
