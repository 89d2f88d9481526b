package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const readLimit = 4096

type client struct {
	conn       *websocket.Conn
	remoteAddr string
	filter     map[string]struct{}
	config     Config

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, remoteAddr string, filter map[string]struct{}, cfg Config) *client {
	return &client{
		conn:       conn,
		remoteAddr: remoteAddr,
		filter:     filter,
		config:     cfg,
		send:       make(chan []byte, cfg.SendBuffer),
		done:       make(chan struct{}),
	}
}

func (c *client) wants(stationID string) bool {
	if c.filter == nil {
		return true
	}
	_, ok := c.filter[stationID]
	return ok
}

// enqueue reports false when the buffer is full or the client is gone.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump discards client frames and returns when the connection drops.
func (c *client) readPump() {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	pongWait := 2 * c.config.PingInterval
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}
