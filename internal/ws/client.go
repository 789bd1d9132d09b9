package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Upgrader разрешает подключения с любых источников, как и REST API (CORS).
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client это одно WebSocket-подключение, читающее события своей подписки.
type Client struct {
	Conn *websocket.Conn
	Sub  *Subscription
}

// Serve отправляет первое событие, запускает writePump и блокируется в readPump до разрыва.
func (c *Client) Serve(initial ...Event) {
	go c.writePump(initial)
	c.readPump()
}

// readPump входящие сообщения не обрабатывает, а только отслеживает разрыв соединения.
func (c *Client) readPump() {
	defer func() {
		c.Sub.Close()
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Зритель %s отключился: %v", c.Sub.Subject(), err)
			}
			return
		}
	}
}

// writePump отправляет события подписки клиенту в формате JSON.
func (c *Client) writePump(initial []Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for _, ev := range initial {
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteJSON(ev); err != nil {
			return
		}
	}
	for {
		select {
		case ev, ok := <-c.Sub.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Подписка закрыта.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
