package game

import (
	"sync"
	"time"

	"lumina/internal/protocol"
)

// moveSendInterval coalesces drag traffic: intermediate positions are sent at
// most this often, the release position always.
const moveSendInterval = 50 * time.Millisecond

// TokenStore is the client-side authoritative token list for one campaign,
// keyed by id and kept in sync via the change feed. There is no merge logic:
// a newer event replaces the matching row wholesale.
type TokenStore struct {
	mu     sync.Mutex
	tokens []protocol.Token
	index  map[string]int

	// lastSeq guards against stale echoes of our own writes arriving after a
	// newer local mutation (last writer wins by logical clock, not arrival).
	lastSeq map[string]int64

	send     func(typ string, v interface{}) error
	nextSeq  func() int64
	lastSent map[string]time.Time

	lastErr error
}

func NewTokenStore(send func(string, interface{}) error, nextSeq func() int64) *TokenStore {
	return &TokenStore{
		index:    make(map[string]int),
		lastSeq:  make(map[string]int64),
		send:     send,
		nextSeq:  nextSeq,
		lastSent: make(map[string]time.Time),
	}
}

// Reset replaces the whole list from a snapshot (join or reconnect).
func (s *TokenStore) Reset(tokens []protocol.Token, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append([]protocol.Token(nil), tokens...)
	s.index = make(map[string]int, len(tokens))
	s.lastSeq = make(map[string]int64, len(tokens))
	for i, t := range s.tokens {
		s.index[t.ID] = i
		s.lastSeq[t.ID] = seq
	}
}

// Tokens returns a copy of the current list in stable order.
func (s *TokenStore) Tokens() []protocol.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Token(nil), s.tokens...)
}

func (s *TokenStore) Get(id string) (protocol.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return protocol.Token{}, false
	}
	return s.tokens[i], true
}

func (s *TokenStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Create asks the server to insert the token; the INSERT echo adds it to the
// local list.
func (s *TokenStore) Create(t protocol.Token) error {
	err := s.send("CreateToken", protocol.CreateToken{Token: t})
	s.setErr(err)
	return err
}

func (s *TokenStore) Update(t protocol.Token) error {
	seq := s.nextSeq()
	s.mu.Lock()
	if i, ok := s.index[t.ID]; ok {
		s.tokens[i] = t
		s.lastSeq[t.ID] = seq
	}
	s.mu.Unlock()
	err := s.send("UpdateToken", protocol.UpdateToken{Token: t, Seq: seq})
	s.setErr(err)
	return err
}

func (s *TokenStore) Delete(id string) error {
	err := s.send("DeleteToken", protocol.DeleteToken{ID: id})
	s.setErr(err)
	return err
}

// Move applies the new position locally first, then persists. Intermediate
// drag positions are coalesced; final ones always go out.
func (s *TokenStore) Move(id string, x, y float64, final bool) error {
	seq := s.nextSeq()
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	s.tokens[i].X, s.tokens[i].Y = x, y
	s.lastSeq[id] = seq
	throttled := !final && time.Since(s.lastSent[id]) < moveSendInterval
	if !throttled {
		s.lastSent[id] = time.Now()
	}
	s.mu.Unlock()

	if throttled {
		return nil
	}
	err := s.send("MoveToken", protocol.MoveToken{ID: id, X: x, Y: y, Seq: seq})
	s.setErr(err)
	return err
}

// ApplyChange folds an authoritative change event into the list. Events older
// than the last locally applied write for that id are dropped.
func (s *TokenStore) ApplyChange(ch protocol.TokenChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ""
	switch {
	case ch.New != nil:
		id = ch.New.ID
	case ch.Old != nil:
		id = ch.Old.ID
	default:
		return
	}
	if ch.Seq != 0 && ch.Seq < s.lastSeq[id] {
		return
	}
	if ch.Seq != 0 {
		s.lastSeq[id] = ch.Seq
	}

	switch ch.Event {
	case protocol.EventInsert, protocol.EventUpdate:
		if ch.New == nil {
			return
		}
		if i, ok := s.index[id]; ok {
			s.tokens[i] = *ch.New
		} else {
			s.index[id] = len(s.tokens)
			s.tokens = append(s.tokens, *ch.New)
		}
	case protocol.EventDelete:
		i, ok := s.index[id]
		if !ok {
			return
		}
		s.tokens = append(s.tokens[:i], s.tokens[i+1:]...)
		delete(s.index, id)
		delete(s.lastSeq, id)
		for j := i; j < len(s.tokens); j++ {
			s.index[s.tokens[j].ID] = j
		}
	}
}

func (s *TokenStore) setErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
