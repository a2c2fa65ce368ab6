package protocol

// Row images shared between the store, the wire, and the client caches.

type Token struct {
	ID         string  `json:"id"`
	CampaignID string  `json:"campaignId"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Scale      float64 `json:"scale"`
	Rotation   float64 `json:"rotation"` // degrees
	Layer      string  `json:"layer"`    // "player" or "gm"
	Image      string  `json:"image,omitempty"`
	NPCID      string  `json:"npcId,omitempty"`
	SheetID    string  `json:"sheetId,omitempty"`
	NPC        *NPC    `json:"npc,omitempty"`
	Sheet      *Sheet  `json:"sheet,omitempty"`
}

// NPC is a GM-owned token backing.
type NPC struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	HP        int    `json:"hp,omitempty"`
	AC        int    `json:"ac,omitempty"`
}

// Sheet is a player character sheet backing a token.
type Sheet struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Class     string `json:"class,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	HP        int    `json:"hp,omitempty"`
	AC        int    `json:"ac,omitempty"`
}

type Drawing struct {
	ID         string   `json:"id"`
	CampaignID string   `json:"campaignId"`
	Path       []PointF `json:"path"`
	Color      string   `json:"color"`
	BrushSize  float64  `json:"brushSize"`
	CreatedBy  string   `json:"createdBy,omitempty"`
}

type ChatMessage struct {
	ID          string `json:"id"`
	CampaignID  string `json:"campaignId"`
	UserID      string `json:"userId"`
	Content     string `json:"content"`
	RecipientID string `json:"recipientId,omitempty"`
	CreatedAt   int64  `json:"createdAt"` // unix millis
}

type InitiativeParticipant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Total int    `json:"total"`
}

// InitiativeState is the singleton turn-order row for a session.
type InitiativeState struct {
	SessionID    string                  `json:"sessionId"`
	Participants []InitiativeParticipant `json:"participants"`
	Round        int                     `json:"round"`
	Turn         int                     `json:"currentTurnIndex"`
}

type Campaign struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GMUserID   string `json:"gmUserId"`
	InviteCode string `json:"inviteCode,omitempty"`
	MapImage   string `json:"mapImage,omitempty"`
	GridSize   int    `json:"gridSize,omitempty"`
}

type Member struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Role      string `json:"role"` // "gm" or "player"
	SheetID   string `json:"sheetId,omitempty"`
	SheetName string `json:"sheetName,omitempty"`
}

const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
)

type Invitation struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaignId"`
	InvitedBy  string `json:"invitedBy"`
	Invitee    string `json:"invitee"` // username or email
	Status     string `json:"status"`
	CreatedAt  int64  `json:"createdAt"`
}
