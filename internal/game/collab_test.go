package game

import (
	"testing"
	"time"

	"lumina/internal/protocol"
)

func newTestCollab() (*Collab, *[]sentMsg) {
	var sent []sentMsg
	c := NewCollab(func(typ string, v interface{}) error {
		sent = append(sent, sentMsg{typ, v})
		return nil
	}, "Elora", "#4488ff")
	return c, &sent
}

func TestCursorThrottle(t *testing.T) {
	c, sent := newTestCollab()
	c.UpdateCursor(1, 1)
	c.UpdateCursor(2, 2)
	c.UpdateCursor(3, 3)
	if len(*sent) != 1 {
		t.Fatalf("want 1 cursor send inside throttle window, got %d", len(*sent))
	}
	m := (*sent)[0].v.(protocol.CursorMove)
	if m.Name != "Elora" || m.Color != "#4488ff" {
		t.Errorf("cursor attribution missing: %+v", m)
	}
}

func TestStrokeLifecycle(t *testing.T) {
	c, sent := newTestCollab()

	// A click without movement never becomes a drawing.
	c.StartStroke(1, 1)
	if err := c.EndStroke("#ff0000", 4); err != nil {
		t.Fatal(err)
	}
	if len(*sent) != 0 {
		t.Fatalf("degenerate stroke was sent: %+v", *sent)
	}

	c.StartStroke(0, 0)
	c.AppendStroke(10, 0)
	c.AppendStroke(10, 10)
	if got := len(c.CurrentStroke()); got != 3 {
		t.Fatalf("stroke length = %d", got)
	}
	if err := c.EndStroke("#00ff00", 6); err != nil {
		t.Fatal(err)
	}
	if len(*sent) != 1 || (*sent)[0].typ != "CreateDrawing" {
		t.Fatalf("unexpected sends: %+v", *sent)
	}
	d := (*sent)[0].v.(protocol.CreateDrawing)
	if len(d.Path) != 3 || d.Color != "#00ff00" || d.BrushSize != 6 {
		t.Errorf("drawing payload: %+v", d)
	}
	if got := len(c.CurrentStroke()); got != 0 {
		t.Errorf("stroke not cleared after finalize: %d points", got)
	}
}

func TestDrawingChangeFold(t *testing.T) {
	c, _ := newTestCollab()
	c.ApplyDrawingChange(protocol.DrawingChange{Event: protocol.EventInsert, New: &protocol.Drawing{ID: "d1"}})
	c.ApplyDrawingChange(protocol.DrawingChange{Event: protocol.EventInsert, New: &protocol.Drawing{ID: "d2"}})
	if got := len(c.Drawings()); got != 2 {
		t.Fatalf("drawings = %d", got)
	}
	c.ApplyDrawingChange(protocol.DrawingChange{Event: protocol.EventDelete, Old: &protocol.Drawing{ID: "d1"}})
	ds := c.Drawings()
	if len(ds) != 1 || ds[0].ID != "d2" {
		t.Errorf("delete fold: %+v", ds)
	}
	c.ApplyDrawingChange(protocol.DrawingChange{Clear: true})
	if got := len(c.Drawings()); got != 0 {
		t.Errorf("clear left %d drawings", got)
	}
}

func TestRemoteDragSupersession(t *testing.T) {
	c, _ := newTestCollab()
	c.ApplyDrag(protocol.TokenDragged{UserID: "u1", TokenID: "t1", Name: "Ana", Color: "#fff"})
	c.ApplyDrag(protocol.TokenDragged{UserID: "u1", TokenID: "t2", Name: "Ana", Color: "#fff"})

	drags := c.RemoteDrags()
	if _, ok := drags["t1"]; ok {
		t.Error("old drag survived the actor grabbing a new token")
	}
	if _, ok := drags["t2"]; !ok {
		t.Error("new drag missing")
	}

	c.ApplyDragEnd(protocol.TokenDragEnded{UserID: "u1", TokenID: "t2"})
	if got := len(c.RemoteDrags()); got != 0 {
		t.Errorf("drag end left %d entries", got)
	}
}

func TestPingPruning(t *testing.T) {
	c, _ := newTestCollab()
	now := time.Now()
	c.ApplyPing(protocol.Ping{X: 1, CreatedAt: now.Add(-5 * time.Second).UnixMilli()})
	c.ApplyPing(protocol.Ping{X: 2, CreatedAt: now.Add(-time.Second).UnixMilli()})

	c.PrunePings(now)
	ps := c.Pings()
	if len(ps) != 1 || ps[0].X != 2 {
		t.Errorf("prune kept wrong pings: %+v", ps)
	}
}

func TestDropPeerClearsPresence(t *testing.T) {
	c, _ := newTestCollab()
	c.ApplyCursor(protocol.CursorMoved{UserID: "u1", X: 4})
	c.ApplyDrag(protocol.TokenDragged{UserID: "u1", TokenID: "t1"})

	c.DropPeer("u1")
	if len(c.Cursors()) != 0 || len(c.RemoteDrags()) != 0 {
		t.Error("peer presence survived disconnect")
	}
}
