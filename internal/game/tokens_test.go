package game

import (
	"testing"

	"lumina/internal/protocol"
)

type sentMsg struct {
	typ string
	v   interface{}
}

func newTestTokenStore() (*TokenStore, *[]sentMsg) {
	var sent []sentMsg
	var seq int64
	s := NewTokenStore(func(typ string, v interface{}) error {
		sent = append(sent, sentMsg{typ, v})
		return nil
	}, func() int64 { seq++; return seq })
	return s, &sent
}

func TestApplyChangeUpsertAndDelete(t *testing.T) {
	s, _ := newTestTokenStore()

	s.ApplyChange(protocol.TokenChange{Event: protocol.EventInsert, New: &protocol.Token{ID: "a", X: 1}, Seq: 1})
	s.ApplyChange(protocol.TokenChange{Event: protocol.EventInsert, New: &protocol.Token{ID: "b", X: 2}, Seq: 2})
	if got := len(s.Tokens()); got != 2 {
		t.Fatalf("want 2 tokens, got %d", got)
	}

	s.ApplyChange(protocol.TokenChange{Event: protocol.EventUpdate, New: &protocol.Token{ID: "a", X: 50}, Seq: 3})
	if tok, _ := s.Get("a"); tok.X != 50 {
		t.Errorf("update not applied: %+v", tok)
	}

	s.ApplyChange(protocol.TokenChange{Event: protocol.EventDelete, Old: &protocol.Token{ID: "a"}, Seq: 4})
	if _, ok := s.Get("a"); ok {
		t.Error("token a still present after delete")
	}
	if tok, ok := s.Get("b"); !ok || tok.X != 2 {
		t.Errorf("token b disturbed by delete: %+v ok=%v", tok, ok)
	}
}

func TestApplyChangeUpdateWithoutNewRowIsDropped(t *testing.T) {
	s, _ := newTestTokenStore()
	s.ApplyChange(protocol.TokenChange{Event: protocol.EventInsert, New: &protocol.Token{ID: "a", X: 1}, Seq: 1})

	// Malformed update carrying only the old row must not panic or mutate.
	s.ApplyChange(protocol.TokenChange{Event: protocol.EventUpdate, Old: &protocol.Token{ID: "a", X: 9}, Seq: 2})
	if tok, ok := s.Get("a"); !ok || tok.X != 1 {
		t.Fatalf("token mutated by empty update: %+v ok=%v", tok, ok)
	}

	s.ApplyChange(protocol.TokenChange{Event: protocol.EventInsert, Old: &protocol.Token{ID: "c"}, Seq: 3})
	if _, ok := s.Get("c"); ok {
		t.Fatal("insert without row produced a token")
	}
}

func TestMoveAppliesLocallyBeforeSend(t *testing.T) {
	s, sent := newTestTokenStore()
	s.Reset([]protocol.Token{{ID: "a", X: 0, Y: 0}}, 0)

	if err := s.Move("a", 150, 200, true); err != nil {
		t.Fatal(err)
	}
	if tok, _ := s.Get("a"); tok.X != 150 || tok.Y != 200 {
		t.Errorf("local position not updated: %+v", tok)
	}
	if len(*sent) != 1 || (*sent)[0].typ != "MoveToken" {
		t.Fatalf("unexpected sends: %+v", *sent)
	}
}

func TestMoveCoalescesIntermediatePositions(t *testing.T) {
	s, sent := newTestTokenStore()
	s.Reset([]protocol.Token{{ID: "a"}}, 0)

	// Rapid drag: only the first intermediate send goes out inside the
	// coalescing window, the final one always does.
	_ = s.Move("a", 10, 10, false)
	_ = s.Move("a", 20, 20, false)
	_ = s.Move("a", 30, 30, false)
	_ = s.Move("a", 40, 40, true)

	if len(*sent) != 2 {
		t.Fatalf("want 2 sends (first + final), got %d", len(*sent))
	}
	final := (*sent)[1].v.(protocol.MoveToken)
	if final.X != 40 || final.Y != 40 {
		t.Errorf("final send carries wrong position: %+v", final)
	}
	// Local state tracks every application regardless of coalescing.
	if tok, _ := s.Get("a"); tok.X != 40 {
		t.Errorf("local state lagging: %+v", tok)
	}
}

func TestStaleEchoIgnored(t *testing.T) {
	s, sent := newTestTokenStore()
	s.Reset([]protocol.Token{{ID: "a"}}, 0)

	_ = s.Move("a", 10, 0, true) // seq 1
	_ = s.Move("a", 99, 0, true) // seq 2

	// Echo of the first move arrives after the second was applied locally.
	first := (*sent)[0].v.(protocol.MoveToken)
	s.ApplyChange(protocol.TokenChange{
		Event: protocol.EventUpdate,
		New:   &protocol.Token{ID: "a", X: first.X},
		Seq:   first.Seq,
	})

	if tok, _ := s.Get("a"); tok.X != 99 {
		t.Errorf("stale echo overwrote newer position: %+v", tok)
	}

	// The echo of the newer write is applied normally.
	second := (*sent)[1].v.(protocol.MoveToken)
	s.ApplyChange(protocol.TokenChange{
		Event: protocol.EventUpdate,
		New:   &protocol.Token{ID: "a", X: second.X},
		Seq:   second.Seq,
	})
	if tok, _ := s.Get("a"); tok.X != 99 {
		t.Errorf("fresh echo rejected: %+v", tok)
	}
}

func TestRemoteChangeWinsOverUnsequencedRow(t *testing.T) {
	s, _ := newTestTokenStore()
	// A peer's insert arrives for a token we have never touched.
	s.ApplyChange(protocol.TokenChange{Event: protocol.EventInsert, New: &protocol.Token{ID: "n", X: 5}, Seq: 7})
	if tok, ok := s.Get("n"); !ok || tok.X != 5 {
		t.Errorf("peer insert dropped: %+v ok=%v", tok, ok)
	}
}
