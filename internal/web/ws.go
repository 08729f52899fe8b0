package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	// The UI is served from this device on whatever address the phone used.
	CheckOrigin: func(*http.Request) bool { return true },
}

// statusSocket pushes every broadcast snapshot to the client as JSON.
// Client messages are read and discarded only to notice the close.
func statusSocket(b *StatusBroadcaster) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debugf("websocket upgrade failed remote=%s: %v", r.RemoteAddr, err)
			return
		}
		defer conn.Close()

		id, ch := b.Subscribe(2)
		defer b.Unsubscribe(id)
		log.Debugf("websocket client connected remote=%s", r.RemoteAddr)

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			// The server read timeout still applies to the hijacked conn.
			_ = conn.SetReadDeadline(time.Time{})
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case snap, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(snap); err != nil {
					log.Debugf("websocket write failed remote=%s: %v", r.RemoteAddr, err)
					return
				}
			}
		}
	})
}
