package flightweb

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/gorilla/websocket"
)

// client is one websocket connection joined to a Room.
type client struct {
	socket *websocket.Conn
	send   chan []byte
	room   *Room
}

func (c *client) read() {
	defer c.socket.Close()
	for {
		_, msg, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		if !c.room.Broadcast(msg) {
			return
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// ErrNotConnected is returned by Send when the room cannot be redialed.
var ErrNotConnected = errors.New("flightweb: not connected")

// Client sends telemetry to a Room.
type Client struct {
	url string
	c   *websocket.Conn
}

// URL returns the room address for host, e.g. "localhost:8000".
func URL(host string) string {
	u := url.URL{Scheme: "ws", Host: host, Path: Path}
	return u.String()
}

// Dial connects to the room at url.
func Dial(url string) (cl *Client, err error) {
	cl = &Client{url: url}
	if err = cl.connect(); err != nil {
		return nil, err
	}
	return cl, nil
}

// connect replaces the connection only when the dial succeeds.
func (cl *Client) connect() error {
	c, _, err := websocket.DefaultDialer.Dial(cl.url, nil)
	if err != nil {
		return err
	}
	if cl.c != nil {
		cl.c.Close()
	}
	cl.c = c
	return nil
}

// Send writes one message. On a write error the message is dropped and the
// connection is closed; the next Send redials.
func (cl *Client) Send(tel Telemetry) error {
	msg, err := json.Marshal(tel)
	if err != nil {
		return fmt.Errorf("flightweb: marshal: %w", err)
	}
	if cl.c == nil {
		if err := cl.connect(); err != nil {
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}
	if err := cl.c.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Println("flightweb: write:", err)
		cl.c.Close()
		cl.c = nil
		return fmt.Errorf("flightweb: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (cl *Client) Close() error {
	if cl.c == nil {
		return nil
	}
	defer func() { cl.c = nil }()
	if err := cl.c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		cl.c.Close()
		return err
	}
	return cl.c.Close()
}
