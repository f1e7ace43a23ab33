package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/enclavejs/gateway/proxy"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer ws.Close()
		for {
			typ, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(typ, data); err != nil {
				return
			}
		}
	}))
}

func TestConn_SendReceiveRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, url)
	require.NoError(t, err)
	defer conn.Close()

	msg := proxy.Message{Type: proxy.MsgRunTool, ID: "1", Payload: map[string]any{"id": "util:echo"}}
	require.NoError(t, conn.Send(ctx, msg))

	got, err := conn.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, msg.Type, got.Type)
	require.Equal(t, msg.ID, got.ID)
}

func TestConn_ReceiveAfterCloseReturnsConnectionClosed(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Dial(ctx, url)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	_, err = conn.Receive(ctx)
	require.ErrorIs(t, err, proxy.ErrConnectionClosed)
}
