package game

import (
	"sync"

	"lumina/internal/protocol"
)

// Initiative tracks turn order for one session. State is a singleton row on
// the server (upserted whole after every mutation) and every connected client
// folds the echoed row back in, newest sequence wins.
type Initiative struct {
	mu    sync.Mutex
	state protocol.InitiativeState
	seq   int64 // last applied logical clock

	send    func(typ string, v interface{}) error
	nextSeq func() int64
	lastErr error
}

func NewInitiative(sessionID string, send func(string, interface{}) error, nextSeq func() int64) *Initiative {
	return &Initiative{
		state:   protocol.InitiativeState{SessionID: sessionID, Round: 1},
		send:    send,
		nextSeq: nextSeq,
	}
}

func (in *Initiative) State() protocol.InitiativeState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return cloneInitiative(in.state)
}

// Reset installs a snapshot (join/reconnect).
func (in *Initiative) Reset(st protocol.InitiativeState, seq int64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if st.Round < 1 {
		st.Round = 1
	}
	in.state = cloneInitiative(st)
	in.seq = seq
}

// AddParticipant merges by id, then by name (same creature re-rolling keeps
// one row and takes the new total), else appends.
func (in *Initiative) AddParticipant(p protocol.InitiativeParticipant) error {
	in.mu.Lock()
	merged := false
	for i := range in.state.Participants {
		if in.state.Participants[i].ID == p.ID {
			in.state.Participants[i] = p
			merged = true
			break
		}
	}
	if !merged {
		for i := range in.state.Participants {
			if in.state.Participants[i].Name == p.Name {
				in.state.Participants[i].Total = p.Total
				merged = true
				break
			}
		}
	}
	if !merged {
		in.state.Participants = append(in.state.Participants, p)
	}
	in.mu.Unlock()
	return in.save()
}

// RemoveParticipant filters the entry out and clamps the turn index back into
// range so the marker never points past the end of the list.
func (in *Initiative) RemoveParticipant(id string) error {
	in.mu.Lock()
	kept := in.state.Participants[:0]
	for _, p := range in.state.Participants {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	in.state.Participants = kept
	if in.state.Turn >= len(kept) {
		in.state.Turn = 0
	}
	in.mu.Unlock()
	return in.save()
}

// SetParticipants replaces the whole ordering (drag-to-reorder in the UI).
func (in *Initiative) SetParticipants(ps []protocol.InitiativeParticipant) error {
	in.mu.Lock()
	in.state.Participants = append([]protocol.InitiativeParticipant(nil), ps...)
	if in.state.Turn >= len(ps) {
		in.state.Turn = 0
	}
	in.mu.Unlock()
	return in.save()
}

// NextTurn advances the marker; the round counter ticks exactly when the
// marker wraps to the top of the order.
func (in *Initiative) NextTurn() error {
	in.mu.Lock()
	if len(in.state.Participants) == 0 {
		in.mu.Unlock()
		return nil
	}
	in.state.Turn = (in.state.Turn + 1) % len(in.state.Participants)
	if in.state.Turn == 0 {
		in.state.Round++
	}
	in.mu.Unlock()
	return in.save()
}

func (in *Initiative) Clear() error {
	in.mu.Lock()
	in.state.Participants = nil
	in.state.Round = 1
	in.state.Turn = 0
	in.mu.Unlock()
	return in.save()
}

// ApplyChange folds in an echoed row. Stale echoes (older than our last
// write) are dropped instead of rewinding local state.
func (in *Initiative) ApplyChange(ch protocol.InitiativeChange) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if ch.Seq != 0 && ch.Seq < in.seq {
		return
	}
	if ch.Seq != 0 {
		in.seq = ch.Seq
	}
	st := ch.State
	if st.Round < 1 {
		st.Round = 1
	}
	in.state = cloneInitiative(st)
}

func (in *Initiative) Err() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.lastErr
}

// save persists the full state, upsert by session id.
func (in *Initiative) save() error {
	seq := in.nextSeq()
	in.mu.Lock()
	in.seq = seq
	st := cloneInitiative(in.state)
	in.mu.Unlock()

	err := in.send("SaveInitiative", protocol.SaveInitiative{State: st, Seq: seq})
	if err != nil {
		in.mu.Lock()
		in.lastErr = err
		in.mu.Unlock()
	}
	return err
}

func cloneInitiative(st protocol.InitiativeState) protocol.InitiativeState {
	out := st
	out.Participants = append([]protocol.InitiativeParticipant(nil), st.Participants...)
	return out
}
