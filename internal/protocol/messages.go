package protocol

// ================= C -> S =================

type JoinCampaign struct {
	CampaignID string `json:"campaignId"`
}

type CreateCampaign struct {
	Name string `json:"name"`
}

type CreateToken struct {
	Token Token `json:"token"`
}

type UpdateToken struct {
	Token Token `json:"token"`
	Seq   int64 `json:"seq"`
}

type DeleteToken struct {
	ID string `json:"id"`
}

// MoveToken is UpdateToken restricted to position. It is the majority
// operation, so it travels light and may be coalesced by the sender.
type MoveToken struct {
	ID  string  `json:"id"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Seq int64   `json:"seq"`
}

// Ephemeral presence. Relayed to peers, never stored.
type CursorMove struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Name  string  `json:"name"`
	Color string  `json:"color"`
}

type TokenDrag struct {
	TokenID string `json:"tokenId"`
	Name    string `json:"name"`
	Color   string `json:"color"`
}

type TokenDragEnd struct {
	TokenID string `json:"tokenId"`
}

type CreatePing struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	CharacterName string  `json:"characterName"`
}

type CreateDrawing struct {
	Path      []PointF `json:"path"`
	Color     string   `json:"color"`
	BrushSize float64  `json:"brushSize"`
}

type ClearDrawings struct{}

type SaveInitiative struct {
	State InitiativeState `json:"state"`
	Seq   int64           `json:"seq"`
}

type SendChat struct {
	Content     string `json:"content"`
	RecipientID string `json:"recipientId,omitempty"`
}

type DeleteChat struct {
	ID string `json:"id"`
}

// LoadChat pages backwards: Before==0 loads the newest page.
type LoadChat struct {
	Before int64 `json:"before,omitempty"`
	Limit  int   `json:"limit,omitempty"`
}

type CreateInvite struct {
	Invitee string `json:"invitee"`
}

type AcceptInvite struct {
	Code string `json:"code"`
}

type ListMembers struct{}

// ListInvites asks for the caller's own pending invitations.
type ListInvites struct{}

// UpsertSheet creates or updates a character sheet owned by the caller.
type UpsertSheet struct {
	Sheet Sheet `json:"sheet"`
}

// LinkSheet binds one of the caller's sheets to their seat in the joined
// campaign, so member lists and sheet tokens resolve to it.
type LinkSheet struct {
	SheetID string `json:"sheetId"`
}

// GetSheet asks for the sheet linked to the caller's seat, if any.
type GetSheet struct{}

type UpsertNPC struct {
	NPC NPC `json:"npc"`
}

// ================= S -> C =================

// CampaignState is the full snapshot sent on join. A reconnecting client gets
// a fresh one instead of a replay of missed events.
type CampaignState struct {
	Campaign   Campaign        `json:"campaign"`
	Tokens     []Token         `json:"tokens"`
	Drawings   []Drawing       `json:"drawings"`
	Initiative InitiativeState `json:"initiative"`
	Seq        int64           `json:"seq"`
	UserID     string          `json:"userId"`
	Role       string          `json:"role"`
}

type TokenChange struct {
	Event string `json:"event"` // INSERT/UPDATE/DELETE
	Old   *Token `json:"old,omitempty"`
	New   *Token `json:"new,omitempty"`
	Seq   int64  `json:"seq"`
}

type CursorMoved struct {
	UserID string  `json:"userId"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
}

type TokenDragged struct {
	UserID  string `json:"userId"`
	TokenID string `json:"tokenId"`
	Name    string `json:"name"`
	Color   string `json:"color"`
}

type TokenDragEnded struct {
	UserID  string `json:"userId"`
	TokenID string `json:"tokenId"`
}

type Ping struct {
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	CharacterName string  `json:"characterName"`
	CreatedAt     int64   `json:"createdAt"` // unix millis
}

type DrawingChange struct {
	Event string   `json:"event"`
	New   *Drawing `json:"new,omitempty"`
	Old   *Drawing `json:"old,omitempty"`
	// Clear is set when every drawing in the campaign was removed at once.
	Clear bool `json:"clear,omitempty"`
}

type InitiativeChange struct {
	State InitiativeState `json:"state"`
	Seq   int64           `json:"seq"`
}

type ChatChange struct {
	Event string       `json:"event"`
	New   *ChatMessage `json:"new,omitempty"`
	Old   *ChatMessage `json:"old,omitempty"`
}

type ChatPage struct {
	Messages []ChatMessage `json:"messages"` // newest first, as queried
	HasMore  bool          `json:"hasMore"`
}

type InviteCreated struct {
	Invite Invitation `json:"invite"`
}

type InviteAccepted struct {
	CampaignID string `json:"campaignId"`
}

type Invites struct {
	Items []Invitation `json:"items"`
}

type SheetSaved struct {
	Sheet Sheet `json:"sheet"`
}

// SheetData carries the caller's linked sheet; nil when the seat has none.
type SheetData struct {
	Sheet *Sheet `json:"sheet"`
}

type NPCSaved struct {
	NPC NPC `json:"npc"`
}

// PeerLeft tells everyone in a campaign that a user disconnected so their
// cursor and drag ghosts can be cleared.
type PeerLeft struct {
	UserID string `json:"userId"`
}

type Members struct {
	Items []Member `json:"items"`
}

type CampaignCreated struct {
	Campaign Campaign `json:"campaign"`
}

type ErrorMsg struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Error codes, mirroring the HTTP taxonomy.
const (
	ErrUnauthenticated = "unauthenticated"
	ErrNotFound        = "not_found"
	ErrConflict        = "conflict"
	ErrBackend         = "backend"
)
