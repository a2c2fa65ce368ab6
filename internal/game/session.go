package game

import (
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"

	"lumina/internal/protocol"
)

// Session is the live connection to one campaign. Everything the map view
// needs hangs off this value: the camera, the four stores, and the socket.
// Sessions share no state with each other, so one process can run several
// campaigns side by side.
type Session struct {
	CampaignID string

	conn *conn
	seq  atomic.Int64

	Camera     Camera
	Tokens     *TokenStore
	Collab     *Collab
	Initiative *Initiative
	Chat       *Chat

	UserID   string
	Role     string
	Name     string
	Color    string
	Campaign protocol.Campaign

	Members []protocol.Member
	Invites []protocol.Invitation

	// Sheet is the caller's own linked character, if any. LastNPC is the most
	// recently saved NPC, used as the stamp for hidden-layer token placement.
	Sheet   *protocol.Sheet
	LastNPC *protocol.NPC

	joined  bool
	lastErr string
}

// NewSession dials the server and requests the campaign snapshot. The
// snapshot lands asynchronously through Pump.
func NewSession(campaignID, name, color string) (*Session, error) {
	c, err := dialServer(ServerURL, LoadToken())
	if err != nil {
		return nil, err
	}

	s := &Session{
		CampaignID: campaignID,
		conn:       c,
		Camera:     NewCamera(50),
		Name:       name,
		Color:      color,
	}
	s.Tokens = NewTokenStore(s.send, s.nextSeq)
	s.Collab = NewCollab(s.send, name, color)
	s.Initiative = NewInitiative(campaignID, s.send, s.nextSeq)
	s.Chat = NewChat(s.send)

	if err := s.send("JoinCampaign", protocol.JoinCampaign{CampaignID: campaignID}); err != nil {
		c.close()
		return nil, err
	}
	return s, nil
}

func (s *Session) send(typ string, v interface{}) error {
	if s.conn == nil {
		return serverErr(protocol.ErrBackend, "session: not connected")
	}
	return s.conn.send(typ, v)
}

func (s *Session) nextSeq() int64 {
	return s.seq.Add(1)
}

// Joined reports whether the initial snapshot has been applied.
func (s *Session) Joined() bool { return s.joined }

func (s *Session) IsGM() bool { return s.Role == "gm" }

// LastError is the most recent surfaced failure, for the status line.
func (s *Session) LastError() string { return s.lastErr }

// Close tears the session down. In-flight requests are not cancellable;
// their replies die with the socket. The connection handle stays set so that
// Pump and send on a closed session degrade to no-ops and errors.
func (s *Session) Close() {
	if s.conn != nil {
		s.conn.close()
	}
	s.Camera = NewCamera(s.Camera.GridHeight)
	s.joined = false
}

// Pump drains pending server messages without blocking. Call once per frame
// before building the render snapshot. Safe on a closed session.
func (s *Session) Pump() {
	if s.conn == nil {
		return
	}
	for {
		select {
		case m, ok := <-s.conn.in:
			if !ok {
				return
			}
			s.handle(m)
		default:
			s.Collab.PrunePings(time.Now())
			return
		}
	}
}

func (s *Session) handle(env protocol.MsgEnvelope) {
	switch env.Type {
	case "CampaignState":
		var st protocol.CampaignState
		if err := json.Unmarshal(env.Data, &st); err != nil {
			return
		}
		s.Campaign = st.Campaign
		s.UserID = st.UserID
		s.Role = st.Role
		if st.Campaign.GridSize > 0 {
			s.Camera.GridHeight = float64(st.Campaign.GridSize)
		}
		s.Tokens.Reset(st.Tokens, st.Seq)
		s.Collab.ResetDrawings(st.Drawings)
		s.Initiative.Reset(st.Initiative, st.Seq)
		s.joined = true
		_ = s.Chat.Load()
		_ = s.send("ListMembers", protocol.ListMembers{})
		_ = s.send("GetSheet", protocol.GetSheet{})

	case "TokenChange":
		var ch protocol.TokenChange
		if json.Unmarshal(env.Data, &ch) == nil {
			s.Tokens.ApplyChange(ch)
		}

	case "CursorMoved":
		var m protocol.CursorMoved
		if json.Unmarshal(env.Data, &m) == nil && m.UserID != s.UserID {
			s.Collab.ApplyCursor(m)
		}

	case "TokenDragged":
		var m protocol.TokenDragged
		if json.Unmarshal(env.Data, &m) == nil && m.UserID != s.UserID {
			s.Collab.ApplyDrag(m)
		}

	case "TokenDragEnded":
		var m protocol.TokenDragEnded
		if json.Unmarshal(env.Data, &m) == nil {
			s.Collab.ApplyDragEnd(m)
		}

	case "Ping":
		var p protocol.Ping
		if json.Unmarshal(env.Data, &p) == nil {
			s.Collab.ApplyPing(p)
		}

	case "DrawingChange":
		var ch protocol.DrawingChange
		if json.Unmarshal(env.Data, &ch) == nil {
			s.Collab.ApplyDrawingChange(ch)
		}

	case "InitiativeChange":
		var ch protocol.InitiativeChange
		if json.Unmarshal(env.Data, &ch) == nil {
			s.Initiative.ApplyChange(ch)
		}

	case "ChatChange":
		var ch protocol.ChatChange
		if json.Unmarshal(env.Data, &ch) == nil {
			s.Chat.ApplyChange(ch)
		}

	case "ChatPage":
		var p protocol.ChatPage
		if json.Unmarshal(env.Data, &p) == nil {
			s.Chat.ApplyPage(p)
		}

	case "PeerLeft":
		var m protocol.PeerLeft
		if json.Unmarshal(env.Data, &m) == nil {
			s.Collab.DropPeer(m.UserID)
		}

	case "Members":
		var m protocol.Members
		if json.Unmarshal(env.Data, &m) == nil {
			s.Members = m.Items
		}

	case "SheetSaved":
		var m protocol.SheetSaved
		if json.Unmarshal(env.Data, &m) == nil {
			s.Sheet = &m.Sheet
			// Saving your character also binds it to this campaign seat.
			_ = s.send("LinkSheet", protocol.LinkSheet{SheetID: m.Sheet.ID})
		}

	case "SheetData":
		var m protocol.SheetData
		if json.Unmarshal(env.Data, &m) == nil {
			s.Sheet = m.Sheet
		}

	case "NPCSaved":
		var m protocol.NPCSaved
		if json.Unmarshal(env.Data, &m) == nil {
			s.LastNPC = &m.NPC
		}

	case "Invites":
		var m protocol.Invites
		if json.Unmarshal(env.Data, &m) == nil {
			s.Invites = m.Items
		}

	case "InviteCreated":
		var m protocol.InviteCreated
		if json.Unmarshal(env.Data, &m) == nil {
			log.Printf("invite created for %s", m.Invite.Invitee)
		}

	case "Error":
		var e protocol.ErrorMsg
		if json.Unmarshal(env.Data, &e) == nil {
			s.lastErr = e.Message
			log.Printf("server error [%s]: %s", e.Code, e.Message)
		}
	}
}

// ---------------- thin campaign-management wrappers ----------------

func (s *Session) CreateInvite(invitee string) error {
	return s.send("CreateInvite", protocol.CreateInvite{Invitee: invitee})
}

func (s *Session) AcceptInvite(code string) error {
	return s.send("AcceptInvite", protocol.AcceptInvite{Code: code})
}

func (s *Session) RefreshMembers() error {
	return s.send("ListMembers", protocol.ListMembers{})
}

func (s *Session) RefreshInvites() error {
	return s.send("ListInvites", protocol.ListInvites{})
}

// SaveSheet creates or updates the caller's character. The SheetSaved echo
// links it to the current campaign seat.
func (s *Session) SaveSheet(sh protocol.Sheet) error {
	return s.send("UpsertSheet", protocol.UpsertSheet{Sheet: sh})
}

func (s *Session) SaveNPC(n protocol.NPC) error {
	return s.send("UpsertNPC", protocol.UpsertNPC{NPC: n})
}

// CopyInviteCode puts the campaign's invite code on the system clipboard.
func (s *Session) CopyInviteCode() error {
	if s.Campaign.InviteCode == "" {
		return errors.New("no invite code")
	}
	return clipboard.WriteAll(s.Campaign.InviteCode)
}
