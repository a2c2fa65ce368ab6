package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lumina/internal/protocol"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

// Hub owns every live connection and fans events out per campaign. Durable
// operations go through the store first; the broadcast only happens after the
// row is safely on disk. Ephemeral traffic is relayed without touching the
// store at all.
type Hub struct {
	mu      sync.Mutex
	store   *Store
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	username string

	campaignID string
	role       string
}

func NewHub(store *Store) *Hub {
	return &Hub{
		store:   store,
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]map[*client]struct{}),
	}
}

// HandleWS runs one authenticated connection until it drops.
func (h *Hub) HandleWS(conn *websocket.Conn, userID, username string) {
	c := &client{conn: conn, send: make(chan []byte, 64), userID: userID, username: username}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writer()
	h.reader(c)
}

func (c *client) writer() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func sendJSON(c *client, typ string, v interface{}) {
	b, _ := json.Marshal(v)
	out, _ := json.Marshal(protocol.MsgEnvelope{Type: typ, Data: b})
	select {
	case c.send <- out:
	default:
	}
}

func sendErr(c *client, code, msg string) {
	sendJSON(c, "Error", protocol.ErrorMsg{Code: code, Message: msg})
}

// storeErr maps a store failure onto the wire taxonomy.
func storeErr(c *client, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		sendErr(c, protocol.ErrNotFound, op+": not found")
	case errors.Is(err, ErrConflict):
		sendErr(c, protocol.ErrConflict, op+": conflict")
	default:
		log.Printf("%s (%s): %v", op, c.username, err)
		sendErr(c, protocol.ErrBackend, op+" failed")
	}
}

func (h *Hub) broadcast(campaignID, typ string, v interface{}) {
	b, _ := json.Marshal(v)
	out, _ := json.Marshal(protocol.MsgEnvelope{Type: typ, Data: b})

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[campaignID] {
		select {
		case c.send <- out:
		default:
		}
	}
}

func (h *Hub) joinRoom(c *client, campaignID, role string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(c)
	if h.rooms[campaignID] == nil {
		h.rooms[campaignID] = make(map[*client]struct{})
	}
	h.rooms[campaignID][c] = struct{}{}
	c.campaignID = campaignID
	c.role = role
}

func (h *Hub) leaveRoomLocked(c *client) {
	if c.campaignID == "" {
		return
	}
	if set := h.rooms[c.campaignID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, c.campaignID)
		}
	}
	c.campaignID = ""
	c.role = ""
}

func (h *Hub) reader(c *client) {
	defer func() {
		left := c.campaignID
		c.conn.Close()
		h.mu.Lock()
		delete(h.clients, c)
		h.leaveRoomLocked(c)
		h.mu.Unlock()
		close(c.send)
		if left != "" {
			h.broadcast(left, "PeerLeft", protocol.PeerLeft{UserID: c.userID})
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env protocol.MsgEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("bad envelope from %s", c.username)
			continue
		}
		h.dispatch(c, env)
	}
}

func (h *Hub) dispatch(c *client, env protocol.MsgEnvelope) {
	switch env.Type {
	case "JoinCampaign":
		var msg protocol.JoinCampaign
		_ = json.Unmarshal(env.Data, &msg)
		h.handleJoin(c, msg.CampaignID)

	case "CreateCampaign":
		var msg protocol.CreateCampaign
		_ = json.Unmarshal(env.Data, &msg)
		camp, err := h.store.CreateCampaign(msg.Name, c.userID)
		if err != nil {
			storeErr(c, "create campaign", err)
			return
		}
		sendJSON(c, "CampaignCreated", protocol.CampaignCreated{Campaign: camp})

	case "CreateInvite":
		var msg protocol.CreateInvite
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireGM(c) {
			return
		}
		inv, err := h.store.CreateInvitation(c.campaignID, c.userID, msg.Invitee)
		if err != nil {
			storeErr(c, "create invite", err)
			return
		}
		sendJSON(c, "InviteCreated", protocol.InviteCreated{Invite: inv})

	case "AcceptInvite":
		var msg protocol.AcceptInvite
		_ = json.Unmarshal(env.Data, &msg)
		campaignID, err := h.store.AcceptInvite(msg.Code, c.userID, c.username)
		if err != nil {
			storeErr(c, "accept invite", err)
			return
		}
		sendJSON(c, "InviteAccepted", protocol.InviteAccepted{CampaignID: campaignID})

	case "ListInvites":
		invs, err := h.store.PendingInvitations(c.username)
		if err != nil {
			storeErr(c, "list invites", err)
			return
		}
		sendJSON(c, "Invites", protocol.Invites{Items: invs})

	case "ListMembers":
		if !h.requireJoined(c) {
			return
		}
		ms, err := h.store.Members(c.campaignID)
		if err != nil {
			storeErr(c, "list members", err)
			return
		}
		sendJSON(c, "Members", protocol.Members{Items: ms})

	// ---------- sheets and npcs ----------
	case "UpsertSheet":
		var msg protocol.UpsertSheet
		_ = json.Unmarshal(env.Data, &msg)
		msg.Sheet.UserID = c.userID
		sh, err := h.store.UpsertSheet(msg.Sheet)
		if err != nil {
			storeErr(c, "save sheet", err)
			return
		}
		sendJSON(c, "SheetSaved", protocol.SheetSaved{Sheet: sh})

	case "LinkSheet":
		var msg protocol.LinkSheet
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireJoined(c) {
			return
		}
		sh, err := h.store.Sheet(msg.SheetID)
		if err != nil {
			storeErr(c, "link sheet", err)
			return
		}
		if sh.UserID != c.userID {
			sendErr(c, protocol.ErrUnauthenticated, "not your sheet")
			return
		}
		if err := h.store.LinkSheet(c.campaignID, c.userID, sh.ID); err != nil {
			storeErr(c, "link sheet", err)
			return
		}
		ms, err := h.store.Members(c.campaignID)
		if err != nil {
			storeErr(c, "link sheet", err)
			return
		}
		h.broadcast(c.campaignID, "Members", protocol.Members{Items: ms})

	case "GetSheet":
		if !h.requireJoined(c) {
			return
		}
		sh, err := h.store.MemberSheet(c.campaignID, c.userID)
		if err != nil {
			storeErr(c, "get sheet", err)
			return
		}
		sendJSON(c, "SheetData", protocol.SheetData{Sheet: sh})

	case "UpsertNPC":
		var msg protocol.UpsertNPC
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireGM(c) {
			return
		}
		n, err := h.store.UpsertNPC(msg.NPC, c.campaignID)
		if err != nil {
			storeErr(c, "save npc", err)
			return
		}
		sendJSON(c, "NPCSaved", protocol.NPCSaved{NPC: n})

	// ---------- tokens ----------
	case "CreateToken":
		var msg protocol.CreateToken
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireJoined(c) {
			return
		}
		msg.Token.CampaignID = c.campaignID
		t, err := h.store.InsertToken(msg.Token)
		if err != nil {
			storeErr(c, "create token", err)
			return
		}
		h.broadcast(c.campaignID, "TokenChange", protocol.TokenChange{
			Event: protocol.EventInsert, New: &t})

	case "UpdateToken":
		var msg protocol.UpdateToken
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireJoined(c) {
			return
		}
		msg.Token.CampaignID = c.campaignID
		t, err := h.store.UpdateToken(msg.Token)
		if err != nil {
			storeErr(c, "update token", err)
			return
		}
		h.broadcast(c.campaignID, "TokenChange", protocol.TokenChange{
			Event: protocol.EventUpdate, New: &t, Seq: msg.Seq})

	case "MoveToken":
		var msg protocol.MoveToken
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireJoined(c) {
			return
		}
		t, err := h.store.MoveToken(msg.ID, msg.X, msg.Y)
		if err != nil {
			storeErr(c, "move token", err)
			return
		}
		h.broadcast(c.campaignID, "TokenChange", protocol.TokenChange{
			Event: protocol.EventUpdate, New: &t, Seq: msg.Seq})

	case "DeleteToken":
		var msg protocol.DeleteToken
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireJoined(c) {
			return
		}
		old, err := h.store.DeleteToken(msg.ID)
		if err != nil {
			storeErr(c, "delete token", err)
			return
		}
		h.broadcast(c.campaignID, "TokenChange", protocol.TokenChange{
			Event: protocol.EventDelete, Old: &old})

	// ---------- ephemeral relay ----------
	case "CursorMove":
		var msg protocol.CursorMove
		_ = json.Unmarshal(env.Data, &msg)
		if c.campaignID == "" {
			return
		}
		h.broadcast(c.campaignID, "CursorMoved", protocol.CursorMoved{
			UserID: c.userID, X: msg.X, Y: msg.Y, Name: msg.Name, Color: msg.Color})

	case "TokenDrag":
		var msg protocol.TokenDrag
		_ = json.Unmarshal(env.Data, &msg)
		if c.campaignID == "" {
			return
		}
		h.broadcast(c.campaignID, "TokenDragged", protocol.TokenDragged{
			UserID: c.userID, TokenID: msg.TokenID, Name: msg.Name, Color: msg.Color})

	case "TokenDragEnd":
		var msg protocol.TokenDragEnd
		_ = json.Unmarshal(env.Data, &msg)
		if c.campaignID == "" {
			return
		}
		h.broadcast(c.campaignID, "TokenDragEnded", protocol.TokenDragEnded{
			UserID: c.userID, TokenID: msg.TokenID})

	case "CreatePing":
		var msg protocol.CreatePing
		_ = json.Unmarshal(env.Data, &msg)
		if c.campaignID == "" {
			return
		}
		h.broadcast(c.campaignID, "Ping", protocol.Ping{
			X: msg.X, Y: msg.Y, CharacterName: msg.CharacterName, CreatedAt: nowMillis()})

	// ---------- drawings ----------
	case "CreateDrawing":
		var msg protocol.CreateDrawing
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireJoined(c) {
			return
		}
		d, err := h.store.InsertDrawing(protocol.Drawing{
			CampaignID: c.campaignID,
			Path:       msg.Path,
			Color:      msg.Color,
			BrushSize:  msg.BrushSize,
			CreatedBy:  c.userID,
		})
		if err != nil {
			storeErr(c, "create drawing", err)
			return
		}
		h.broadcast(c.campaignID, "DrawingChange", protocol.DrawingChange{
			Event: protocol.EventInsert, New: &d})

	case "ClearDrawings":
		if !h.requireGM(c) {
			return
		}
		if err := h.store.ClearDrawings(c.campaignID); err != nil {
			storeErr(c, "clear drawings", err)
			return
		}
		h.broadcast(c.campaignID, "DrawingChange", protocol.DrawingChange{
			Event: protocol.EventDelete, Clear: true})

	// ---------- initiative ----------
	case "SaveInitiative":
		var msg protocol.SaveInitiative
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireJoined(c) {
			return
		}
		msg.State.SessionID = c.campaignID
		if err := h.store.UpsertInitiative(msg.State); err != nil {
			storeErr(c, "save initiative", err)
			return
		}
		h.broadcast(c.campaignID, "InitiativeChange", protocol.InitiativeChange{
			State: msg.State, Seq: msg.Seq})

	// ---------- chat ----------
	case "SendChat":
		var msg protocol.SendChat
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireJoined(c) {
			return
		}
		m, err := h.store.InsertChat(protocol.ChatMessage{
			CampaignID:  c.campaignID,
			UserID:      c.userID,
			Content:     msg.Content,
			RecipientID: msg.RecipientID,
		})
		if err != nil {
			storeErr(c, "send chat", err)
			return
		}
		ch := protocol.ChatChange{Event: protocol.EventInsert, New: &m}
		if m.RecipientID == "" {
			h.broadcast(c.campaignID, "ChatChange", ch)
		} else {
			h.whisper(c.campaignID, m.UserID, m.RecipientID, "ChatChange", ch)
		}

	case "DeleteChat":
		var msg protocol.DeleteChat
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireJoined(c) {
			return
		}
		old, err := h.store.ChatMessage(msg.ID)
		if err != nil {
			storeErr(c, "delete chat", err)
			return
		}
		if old.CampaignID != c.campaignID {
			sendErr(c, protocol.ErrNotFound, "no such message")
			return
		}
		if old.UserID != c.userID && c.role != "gm" {
			sendErr(c, protocol.ErrUnauthenticated, "not your message")
			return
		}
		if _, err := h.store.DeleteChat(msg.ID); err != nil {
			storeErr(c, "delete chat", err)
			return
		}
		h.broadcast(c.campaignID, "ChatChange", protocol.ChatChange{
			Event: protocol.EventDelete, Old: &old})

	case "LoadChat":
		var msg protocol.LoadChat
		_ = json.Unmarshal(env.Data, &msg)
		if !h.requireJoined(c) {
			return
		}
		limit := msg.Limit
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		page, err := h.store.ChatPage(c.campaignID, c.userID, msg.Before, limit)
		if err != nil {
			storeErr(c, "load chat", err)
			return
		}
		sendJSON(c, "ChatPage", protocol.ChatPage{Messages: page, HasMore: len(page) == limit})

	default:
		sendErr(c, protocol.ErrBackend, "unknown message type: "+env.Type)
	}
}

func (h *Hub) handleJoin(c *client, campaignID string) {
	role, err := h.store.MemberRole(campaignID, c.userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			sendErr(c, protocol.ErrUnauthenticated, "not a member of this campaign")
		} else {
			storeErr(c, "join campaign", err)
		}
		return
	}

	camp, err := h.store.Campaign(campaignID)
	if err != nil {
		storeErr(c, "join campaign", err)
		return
	}
	tokens, err := h.store.Tokens(campaignID)
	if err != nil {
		storeErr(c, "join campaign", err)
		return
	}
	drawings, err := h.store.Drawings(campaignID)
	if err != nil {
		storeErr(c, "join campaign", err)
		return
	}
	initiative, err := h.store.Initiative(campaignID)
	if err != nil {
		storeErr(c, "join campaign", err)
		return
	}

	h.joinRoom(c, campaignID, role)
	sendJSON(c, "CampaignState", protocol.CampaignState{
		Campaign:   camp,
		Tokens:     tokens,
		Drawings:   drawings,
		Initiative: initiative,
		UserID:     c.userID,
		Role:       role,
	})
}

// whisper delivers a chat event to the sender and the recipient only.
func (h *Hub) whisper(campaignID, senderID, recipientID, typ string, v interface{}) {
	b, _ := json.Marshal(v)
	out, _ := json.Marshal(protocol.MsgEnvelope{Type: typ, Data: b})

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[campaignID] {
		if c.userID != senderID && c.userID != recipientID {
			continue
		}
		select {
		case c.send <- out:
		default:
		}
	}
}

func (h *Hub) requireJoined(c *client) bool {
	if c.campaignID == "" {
		sendErr(c, protocol.ErrUnauthenticated, "join a campaign first")
		return false
	}
	return true
}

func (h *Hub) requireGM(c *client) bool {
	if !h.requireJoined(c) {
		return false
	}
	if c.role != "gm" {
		sendErr(c, protocol.ErrUnauthenticated, "gm only")
		return false
	}
	return true
}
