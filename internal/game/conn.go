package game

import (
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"lumina/internal/protocol"
)

// ServerError is a failure surfaced by the server or the transport, tagged
// with the wire error code so callers can branch on category rather than
// message text.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string { return e.Code + ": " + e.Message }

func serverErr(code, format string, args ...interface{}) *ServerError {
	return &ServerError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// conn is the campaign socket. The read side is pumped onto a channel of wire
// envelopes by a background goroutine; writes are serialized by a mutex. Once
// the socket drops, the channel closes and every later send fails.
type conn struct {
	wmu    sync.Mutex
	ws     *websocket.Conn
	in     chan protocol.MsgEnvelope
	closed atomic.Bool
}

// dialServer connects and authenticates. The token travels both as a bearer
// header and a query param; the server accepts either during the upgrade.
func dialServer(wsURL, token string) (*conn, error) {
	tok := strings.TrimSpace(token)
	hdr := http.Header{}
	if tok != "" {
		hdr.Set("Authorization", "Bearer "+tok)
		if u, err := neturl.Parse(wsURL); err == nil {
			q := u.Query()
			q.Set("token", tok)
			u.RawQuery = q.Encode()
			wsURL = u.String()
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		Proxy: func(*http.Request) (*neturl.URL, error) {
			return nil, nil // disable proxies
		},
	}

	ws, resp, err := dialer.Dial(wsURL, hdr)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, serverErr(protocol.ErrUnauthenticated, "server rejected the session token")
		}
		return nil, serverErr(protocol.ErrBackend, "dial %s: %v", wsURL, err)
	}

	c := &conn{ws: ws, in: make(chan protocol.MsgEnvelope, 128)}
	go c.readLoop()
	return c, nil
}

func (c *conn) readLoop() {
	defer func() {
		c.closed.Store(true)
		close(c.in)
	}()
	for {
		var env protocol.MsgEnvelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}
		c.in <- env
	}
}

func (c *conn) send(typ string, v interface{}) error {
	if c.closed.Load() {
		return serverErr(protocol.ErrBackend, "connection closed")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return serverErr(protocol.ErrBackend, "encode %s: %v", typ, err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteJSON(protocol.MsgEnvelope{Type: typ, Data: data}); err != nil {
		c.closed.Store(true)
		return serverErr(protocol.ErrBackend, "send %s: %v", typ, err)
	}
	return nil
}

func (c *conn) close() {
	if c.closed.Swap(true) {
		return
	}
	_ = c.ws.Close()
}

// await reads until a message of one of the wanted types arrives, turning a
// wire Error into a ServerError. Used by the one-shot campaign flows.
func (c *conn) await(timeout time.Duration, types ...string) (protocol.MsgEnvelope, error) {
	deadline := time.After(timeout)
	for {
		select {
		case env, ok := <-c.in:
			if !ok {
				return protocol.MsgEnvelope{}, serverErr(protocol.ErrBackend, "connection closed before reply")
			}
			if env.Type == "Error" {
				var e protocol.ErrorMsg
				_ = json.Unmarshal(env.Data, &e)
				return protocol.MsgEnvelope{}, &ServerError{Code: e.Code, Message: e.Message}
			}
			for _, t := range types {
				if env.Type == t {
					return env, nil
				}
			}
		case <-deadline:
			return protocol.MsgEnvelope{}, serverErr(protocol.ErrBackend, "timed out waiting for %s", strings.Join(types, "/"))
		}
	}
}
