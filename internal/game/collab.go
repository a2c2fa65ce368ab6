package game

import (
	"sync"
	"time"

	"lumina/internal/protocol"
)

const (
	cursorSendInterval = 50 * time.Millisecond
	pingDisplayTime    = 3 * time.Second
)

// RemoteCursor is a peer's pointer with attribution.
type RemoteCursor struct {
	X, Y  float64
	Name  string
	Color string
}

// RemoteDrag marks a token as held by a peer. It disappears on drag end and
// is superseded by the token change the release produces.
type RemoteDrag struct {
	Color string
	Name  string
}

// LocalDrag mirrors RemoteDrag for the token this client is holding.
type LocalDrag struct {
	TokenID string
	Color   string
	Name    string
}

// Collab runs the two collaboration streams for one session: a best-effort
// presence stream (cursors, drags, pings) that is relayed but never stored,
// and a durable drawing log that late joiners can reconstruct.
type Collab struct {
	mu          sync.Mutex
	cursors     map[string]RemoteCursor // keyed by user id
	pings       []protocol.Ping
	remoteDrags map[string]RemoteDrag // keyed by token id
	dragOwners  map[string]string     // user id -> token id, for release
	drawings    []protocol.Drawing
	stroke      []protocol.PointF

	name  string
	color string

	send       func(typ string, v interface{}) error
	lastCursor time.Time
	lastErr    error
}

func NewCollab(send func(string, interface{}) error, name, color string) *Collab {
	return &Collab{
		cursors:     make(map[string]RemoteCursor),
		remoteDrags: make(map[string]RemoteDrag),
		dragOwners:  make(map[string]string),
		send:        send,
		name:        name,
		color:       color,
	}
}

func (c *Collab) ResetDrawings(ds []protocol.Drawing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawings = append([]protocol.Drawing(nil), ds...)
}

// ---------------- outgoing ----------------

// UpdateCursor broadcasts the local pointer in world coordinates, throttled
// so mouse-move traffic stays bounded.
func (c *Collab) UpdateCursor(x, y float64) {
	c.mu.Lock()
	if time.Since(c.lastCursor) < cursorSendInterval {
		c.mu.Unlock()
		return
	}
	c.lastCursor = time.Now()
	name, color := c.name, c.color
	c.mu.Unlock()

	_ = c.send("CursorMove", protocol.CursorMove{X: x, Y: y, Name: name, Color: color})
}

func (c *Collab) CreatePing(x, y float64) error {
	err := c.send("CreatePing", protocol.CreatePing{X: x, Y: y, CharacterName: c.name})
	c.setErr(err)
	return err
}

func (c *Collab) BroadcastDrag(tokenID string) {
	_ = c.send("TokenDrag", protocol.TokenDrag{TokenID: tokenID, Name: c.name, Color: c.color})
}

func (c *Collab) BroadcastDragEnd(tokenID string) {
	_ = c.send("TokenDragEnd", protocol.TokenDragEnd{TokenID: tokenID})
}

// StartStroke begins a freehand drawing at a world point.
func (c *Collab) StartStroke(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stroke = c.stroke[:0]
	c.stroke = append(c.stroke, protocol.PointF{X: x, Y: y})
}

func (c *Collab) AppendStroke(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stroke) == 0 {
		return
	}
	c.stroke = append(c.stroke, protocol.PointF{X: x, Y: y})
}

// EndStroke finalizes the in-progress stroke. Strokes shorter than two points
// are discarded; everything else is persisted and echoed to all peers.
func (c *Collab) EndStroke(color string, brushSize float64) error {
	c.mu.Lock()
	path := append([]protocol.PointF(nil), c.stroke...)
	c.stroke = c.stroke[:0]
	c.mu.Unlock()

	if len(path) < 2 {
		return nil
	}
	err := c.send("CreateDrawing", protocol.CreateDrawing{Path: path, Color: color, BrushSize: brushSize})
	c.setErr(err)
	return err
}

func (c *Collab) ClearDrawings() error {
	err := c.send("ClearDrawings", protocol.ClearDrawings{})
	c.setErr(err)
	return err
}

// ---------------- incoming ----------------

func (c *Collab) ApplyCursor(m protocol.CursorMoved) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[m.UserID] = RemoteCursor{X: m.X, Y: m.Y, Name: m.Name, Color: m.Color}
}

func (c *Collab) ApplyPing(p protocol.Ping) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings = append(c.pings, p)
}

func (c *Collab) ApplyDrag(m protocol.TokenDragged) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// One held token per actor: starting a new drag releases the previous.
	if prev, ok := c.dragOwners[m.UserID]; ok && prev != m.TokenID {
		delete(c.remoteDrags, prev)
	}
	c.dragOwners[m.UserID] = m.TokenID
	c.remoteDrags[m.TokenID] = RemoteDrag{Color: m.Color, Name: m.Name}
}

func (c *Collab) ApplyDragEnd(m protocol.TokenDragEnded) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.remoteDrags, m.TokenID)
	delete(c.dragOwners, m.UserID)
}

func (c *Collab) DropPeer(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors, userID)
	if tok, ok := c.dragOwners[userID]; ok {
		delete(c.remoteDrags, tok)
		delete(c.dragOwners, userID)
	}
}

func (c *Collab) ApplyDrawingChange(ch protocol.DrawingChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch.Clear {
		c.drawings = c.drawings[:0]
		return
	}
	switch ch.Event {
	case protocol.EventInsert:
		if ch.New != nil {
			c.drawings = append(c.drawings, *ch.New)
		}
	case protocol.EventDelete:
		if ch.Old == nil {
			return
		}
		for i, d := range c.drawings {
			if d.ID == ch.Old.ID {
				c.drawings = append(c.drawings[:i], c.drawings[i+1:]...)
				break
			}
		}
	}
}

// ---------------- snapshot for the renderer ----------------

// PrunePings drops pings past their display time. Called once per frame;
// the renderer itself never prunes.
func (c *Collab) PrunePings(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-pingDisplayTime).UnixMilli()
	kept := c.pings[:0]
	for _, p := range c.pings {
		if p.CreatedAt >= cutoff {
			kept = append(kept, p)
		}
	}
	c.pings = kept
}

func (c *Collab) Cursors() map[string]RemoteCursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]RemoteCursor, len(c.cursors))
	for k, v := range c.cursors {
		out[k] = v
	}
	return out
}

func (c *Collab) Pings() []protocol.Ping {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Ping(nil), c.pings...)
}

func (c *Collab) RemoteDrags() map[string]RemoteDrag {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]RemoteDrag, len(c.remoteDrags))
	for k, v := range c.remoteDrags {
		out[k] = v
	}
	return out
}

func (c *Collab) Drawings() []protocol.Drawing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Drawing(nil), c.drawings...)
}

func (c *Collab) CurrentStroke() []protocol.PointF {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.PointF(nil), c.stroke...)
}

func (c *Collab) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Collab) setErr(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
