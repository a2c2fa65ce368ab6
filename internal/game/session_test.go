package game

import (
	"encoding/json"
	"errors"
	"testing"

	"lumina/internal/protocol"
)

// newOfflineSession builds a session with no socket behind it, the state a
// caller holds after the connection drops.
func newOfflineSession() *Session {
	s := &Session{
		CampaignID: "c1",
		Camera:     NewCamera(50),
		Name:       "bob",
		Color:      "#ff0000",
	}
	s.Tokens = NewTokenStore(s.send, s.nextSeq)
	s.Collab = NewCollab(s.send, s.Name, s.Color)
	s.Initiative = NewInitiative(s.CampaignID, s.send, s.nextSeq)
	s.Chat = NewChat(s.send)
	return s
}

func envelope(t *testing.T, typ string, v interface{}) protocol.MsgEnvelope {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	return protocol.MsgEnvelope{Type: typ, Data: b}
}

func TestPumpAndCloseSafeWithoutConnection(t *testing.T) {
	s := newOfflineSession()

	s.Pump() // must not panic
	s.Close()
	s.Pump()

	err := s.send("MoveToken", protocol.MoveToken{ID: "t1"})
	var se *ServerError
	if !errors.As(err, &se) || se.Code != protocol.ErrBackend {
		t.Fatalf("offline send: %v", err)
	}
}

func TestSnapshotAppliesGridToCamera(t *testing.T) {
	s := newOfflineSession()

	s.handle(envelope(t, "CampaignState", protocol.CampaignState{
		Campaign: protocol.Campaign{ID: "c1", Name: "Keep", GridSize: 70},
		UserID:   "u1",
		Role:     "player",
		Tokens:   []protocol.Token{{ID: "t1", X: 140}},
	}))

	if !s.Joined() {
		t.Fatal("snapshot did not mark the session joined")
	}
	if s.Camera.GridHeight != 70 {
		t.Fatalf("camera grid = %v, want 70", s.Camera.GridHeight)
	}
	if got := len(s.Tokens.Tokens()); got != 1 {
		t.Fatalf("tokens not reset: %d", got)
	}
}

func TestSnapshotKeepsCameraGridWhenUnset(t *testing.T) {
	s := newOfflineSession()

	s.handle(envelope(t, "CampaignState", protocol.CampaignState{
		Campaign: protocol.Campaign{ID: "c1", Name: "Keep"},
		UserID:   "u1",
		Role:     "player",
	}))

	if s.Camera.GridHeight != 50 {
		t.Fatalf("camera grid = %v, want the 50 default", s.Camera.GridHeight)
	}
}

func TestSheetSavedRecordsOwnCharacter(t *testing.T) {
	s := newOfflineSession()

	s.handle(envelope(t, "SheetSaved", protocol.SheetSaved{
		Sheet: protocol.Sheet{ID: "sh1", UserID: "u1", Name: "Mira"},
	}))
	if s.Sheet == nil || s.Sheet.ID != "sh1" {
		t.Fatalf("sheet not recorded: %+v", s.Sheet)
	}

	s.handle(envelope(t, "NPCSaved", protocol.NPCSaved{
		NPC: protocol.NPC{ID: "n1", Name: "Ogre"},
	}))
	if s.LastNPC == nil || s.LastNPC.ID != "n1" {
		t.Fatalf("npc not recorded: %+v", s.LastNPC)
	}
}
