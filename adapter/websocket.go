package adapter

import (
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/joeycumines/stackloop"
)

// EchoRoundTrip awaits a single request/response round trip over a
// WebSocket connection to url: it dials, writes message as a text frame,
// reads back one frame, and deep-copies the received bytes before
// returning.
func EchoRoundTrip(co *stackloop.Coroutine, url string, message []byte) ([]byte, error) {
	arena := co.Reactor().Arena()

	return Run[[]byte](co, func(complete func(status int, value []byte, err error)) {
		go func() {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				complete(1, nil, fmt.Errorf("adapter: dialing %q: %w", url, err))
				return
			}
			defer conn.Close()

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				complete(1, nil, fmt.Errorf("adapter: writing message: %w", err))
				return
			}

			_, reply, err := conn.ReadMessage()
			if err != nil {
				complete(1, nil, fmt.Errorf("adapter: reading reply: %w", err))
				return
			}

			complete(0, arena.CopyBytes(reply), nil)
		}()
	})
}
