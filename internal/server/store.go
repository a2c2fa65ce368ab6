package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lumina/internal/protocol"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

// Store wraps the SQLite database holding all durable campaign state.
type Store struct {
	db *sql.DB
}

// OpenStore prepares the database at path and ensures the schema exists.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			gm_user_id TEXT NOT NULL,
			invite_code TEXT NOT NULL UNIQUE,
			map_image TEXT NOT NULL DEFAULT '',
			grid_size REAL NOT NULL DEFAULT 50,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY(gm_user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS campaign_members (
			campaign_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			sheet_id TEXT,
			PRIMARY KEY(campaign_id, user_id),
			FOREIGN KEY(campaign_id) REFERENCES campaigns(id) ON DELETE CASCADE,
			FOREIGN KEY(user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS campaign_invitations (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			invited_by TEXT NOT NULL,
			invitee TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(campaign_id, invitee),
			FOREIGN KEY(campaign_id) REFERENCES campaigns(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS character_sheets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			class TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			hp INTEGER NOT NULL DEFAULT 0,
			ac INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS npcs (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			name TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			hp INTEGER NOT NULL DEFAULT 0,
			ac INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(campaign_id) REFERENCES campaigns(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS map_tokens (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			x REAL NOT NULL DEFAULT 0,
			y REAL NOT NULL DEFAULT 0,
			scale REAL NOT NULL DEFAULT 1,
			rotation REAL NOT NULL DEFAULT 0,
			layer TEXT NOT NULL DEFAULT 'player',
			image TEXT NOT NULL DEFAULT '',
			npc_id TEXT,
			sheet_id TEXT,
			FOREIGN KEY(campaign_id) REFERENCES campaigns(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS map_drawings (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			path TEXT NOT NULL,
			color TEXT NOT NULL,
			brush_size REAL NOT NULL,
			created_by TEXT NOT NULL,
			FOREIGN KEY(campaign_id) REFERENCES campaigns(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS campaign_initiatives (
			session_id TEXT PRIMARY KEY,
			participants TEXT NOT NULL,
			round INTEGER NOT NULL,
			current_turn INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS campaign_chat_messages (
			id TEXT PRIMARY KEY,
			campaign_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			recipient_id TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY(campaign_id) REFERENCES campaigns(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_campaign_created ON campaign_chat_messages(campaign_id, created_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_campaign ON map_tokens(campaign_id);`,
		`CREATE INDEX IF NOT EXISTS idx_drawings_campaign ON map_drawings(campaign_id);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

/* ------------------- users ------------------- */

type User struct {
	ID           string
	Username     string
	PasswordHash string
}

func (s *Store) CreateUser(username, passwordHash string) (User, error) {
	u := User{ID: protocol.NewID(), Username: strings.ToLower(username), PasswordHash: passwordHash}
	_, err := s.db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("username taken: %w", ErrConflict)
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByUsername(username string) (User, error) {
	var u User
	err := s.db.QueryRow(`SELECT id, username, password_hash FROM users WHERE username = ?`,
		strings.ToLower(username)).Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(id string) (User, error) {
	var u User
	err := s.db.QueryRow(`SELECT id, username, password_hash FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

/* ------------------- campaigns and membership ------------------- */

func (s *Store) CreateCampaign(name, gmUserID string) (protocol.Campaign, error) {
	c := protocol.Campaign{
		ID:         protocol.NewID(),
		Name:       name,
		GMUserID:   gmUserID,
		InviteCode: newInviteCode(),
		GridSize:   50,
	}
	tx, err := s.db.Begin()
	if err != nil {
		return protocol.Campaign{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO campaigns (id, name, gm_user_id, invite_code, map_image, grid_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.GMUserID, c.InviteCode, c.MapImage, c.GridSize, time.Now()); err != nil {
		return protocol.Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO campaign_members (campaign_id, user_id, role) VALUES (?, ?, 'gm')`,
		c.ID, gmUserID); err != nil {
		return protocol.Campaign{}, fmt.Errorf("insert gm member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return protocol.Campaign{}, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

func (s *Store) Campaign(id string) (protocol.Campaign, error) {
	var c protocol.Campaign
	err := s.db.QueryRow(`SELECT id, name, gm_user_id, invite_code, map_image, grid_size FROM campaigns WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.GMUserID, &c.InviteCode, &c.MapImage, &c.GridSize)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Campaign{}, ErrNotFound
	}
	if err != nil {
		return protocol.Campaign{}, fmt.Errorf("select campaign: %w", err)
	}
	return c, nil
}

func (s *Store) CampaignByInviteCode(code string) (protocol.Campaign, error) {
	var c protocol.Campaign
	err := s.db.QueryRow(`SELECT id, name, gm_user_id, invite_code, map_image, grid_size FROM campaigns WHERE invite_code = ?`, code).
		Scan(&c.ID, &c.Name, &c.GMUserID, &c.InviteCode, &c.MapImage, &c.GridSize)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Campaign{}, ErrNotFound
	}
	if err != nil {
		return protocol.Campaign{}, fmt.Errorf("select campaign: %w", err)
	}
	return c, nil
}

// MemberRole returns the caller's role in a campaign, or ErrNotFound.
func (s *Store) MemberRole(campaignID, userID string) (string, error) {
	var role string
	err := s.db.QueryRow(`SELECT role FROM campaign_members WHERE campaign_id = ? AND user_id = ?`,
		campaignID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select member: %w", err)
	}
	return role, nil
}

func (s *Store) AddMember(campaignID, userID, role string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO campaign_members (campaign_id, user_id, role) VALUES (?, ?, ?)`,
		campaignID, userID, role)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// Members lists everyone in a campaign with their linked sheet, if any.
func (s *Store) Members(campaignID string) ([]protocol.Member, error) {
	rows, err := s.db.Query(`
		SELECT m.user_id, u.username, m.role, COALESCE(m.sheet_id, ''), COALESCE(cs.name, '')
		FROM campaign_members m
		JOIN users u ON u.id = m.user_id
		LEFT JOIN character_sheets cs ON cs.id = m.sheet_id
		WHERE m.campaign_id = ?
		ORDER BY u.username`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var out []protocol.Member
	for rows.Next() {
		var m protocol.Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.Role, &m.SheetID, &m.SheetName); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

/* ------------------- invitations ------------------- */

func (s *Store) CreateInvitation(campaignID, invitedBy, invitee string) (protocol.Invitation, error) {
	inv := protocol.Invitation{
		ID:         protocol.NewID(),
		CampaignID: campaignID,
		InvitedBy:  invitedBy,
		Invitee:    strings.ToLower(invitee),
		Status:     protocol.InviteStatusPending,
		CreatedAt:  time.Now().UnixMilli(),
	}
	_, err := s.db.Exec(`INSERT INTO campaign_invitations (id, campaign_id, invited_by, invitee, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.CampaignID, inv.InvitedBy, inv.Invitee, inv.Status, inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return protocol.Invitation{}, fmt.Errorf("already invited: %w", ErrConflict)
		}
		return protocol.Invitation{}, fmt.Errorf("insert invitation: %w", err)
	}
	return inv, nil
}

// PendingInvitations lists the open invites addressed to a username.
func (s *Store) PendingInvitations(username string) ([]protocol.Invitation, error) {
	rows, err := s.db.Query(`SELECT id, campaign_id, invited_by, invitee, status, created_at
		FROM campaign_invitations WHERE invitee = ? AND status = ? ORDER BY created_at DESC`,
		strings.ToLower(username), protocol.InviteStatusPending)
	if err != nil {
		return nil, fmt.Errorf("select invitations: %w", err)
	}
	defer rows.Close()

	var out []protocol.Invitation
	for rows.Next() {
		var inv protocol.Invitation
		if err := rows.Scan(&inv.ID, &inv.CampaignID, &inv.InvitedBy, &inv.Invitee, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// AcceptInvite joins a user to the campaign behind an invite code. Any
// directed invitation for them is flipped to accepted in the same tx.
func (s *Store) AcceptInvite(code, userID, username string) (string, error) {
	c, err := s.CampaignByInviteCode(code)
	if err != nil {
		return "", err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR IGNORE INTO campaign_members (campaign_id, user_id, role) VALUES (?, ?, 'player')`,
		c.ID, userID); err != nil {
		return "", fmt.Errorf("insert member: %w", err)
	}
	if _, err := tx.Exec(`UPDATE campaign_invitations SET status = ? WHERE campaign_id = ? AND invitee = ? AND status = ?`,
		protocol.InviteStatusAccepted, c.ID, strings.ToLower(username), protocol.InviteStatusPending); err != nil {
		return "", fmt.Errorf("update invitation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return c.ID, nil
}

/* ------------------- tokens ------------------- */

const tokenSelect = `
	SELECT t.id, t.campaign_id, t.x, t.y, t.scale, t.rotation, t.layer, t.image,
		COALESCE(t.npc_id, ''), COALESCE(t.sheet_id, ''),
		n.id, n.name, n.avatar_url, n.hp, n.ac,
		cs.id, cs.user_id, cs.name, cs.class, cs.avatar_url, cs.hp, cs.ac
	FROM map_tokens t
	LEFT JOIN npcs n ON n.id = t.npc_id
	LEFT JOIN character_sheets cs ON cs.id = t.sheet_id`

func scanToken(row interface{ Scan(...interface{}) error }) (protocol.Token, error) {
	var t protocol.Token
	var nID, nName, nAvatar sql.NullString
	var nHP, nAC sql.NullInt64
	var sID, sUser, sName, sClass, sAvatar sql.NullString
	var sHP, sAC sql.NullInt64

	err := row.Scan(&t.ID, &t.CampaignID, &t.X, &t.Y, &t.Scale, &t.Rotation, &t.Layer, &t.Image,
		&t.NPCID, &t.SheetID,
		&nID, &nName, &nAvatar, &nHP, &nAC,
		&sID, &sUser, &sName, &sClass, &sAvatar, &sHP, &sAC)
	if err != nil {
		return protocol.Token{}, err
	}
	if nID.Valid {
		t.NPC = &protocol.NPC{ID: nID.String, Name: nName.String, AvatarURL: nAvatar.String,
			HP: int(nHP.Int64), AC: int(nAC.Int64)}
	}
	if sID.Valid {
		t.Sheet = &protocol.Sheet{ID: sID.String, UserID: sUser.String, Name: sName.String,
			Class: sClass.String, AvatarURL: sAvatar.String, HP: int(sHP.Int64), AC: int(sAC.Int64)}
	}
	return t, nil
}

func (s *Store) Tokens(campaignID string) ([]protocol.Token, error) {
	rows, err := s.db.Query(tokenSelect+` WHERE t.campaign_id = ? ORDER BY t.id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("select tokens: %w", err)
	}
	defer rows.Close()

	var out []protocol.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Token(id string) (protocol.Token, error) {
	t, err := scanToken(s.db.QueryRow(tokenSelect+` WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Token{}, ErrNotFound
	}
	if err != nil {
		return protocol.Token{}, fmt.Errorf("select token: %w", err)
	}
	return t, nil
}

func (s *Store) InsertToken(t protocol.Token) (protocol.Token, error) {
	if t.ID == "" {
		t.ID = protocol.NewID()
	}
	if t.Scale == 0 {
		t.Scale = 1
	}
	if t.Layer == "" {
		t.Layer = protocol.LayerPlayer
	}
	_, err := s.db.Exec(`INSERT INTO map_tokens (id, campaign_id, x, y, scale, rotation, layer, image, npc_id, sheet_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CampaignID, t.X, t.Y, t.Scale, t.Rotation, t.Layer, t.Image,
		nullIfEmpty(t.NPCID), nullIfEmpty(t.SheetID))
	if err != nil {
		return protocol.Token{}, fmt.Errorf("insert token: %w", err)
	}
	return s.Token(t.ID)
}

func (s *Store) UpdateToken(t protocol.Token) (protocol.Token, error) {
	res, err := s.db.Exec(`UPDATE map_tokens SET x = ?, y = ?, scale = ?, rotation = ?, layer = ?, image = ?, npc_id = ?, sheet_id = ?
		WHERE id = ?`,
		t.X, t.Y, t.Scale, t.Rotation, t.Layer, t.Image,
		nullIfEmpty(t.NPCID), nullIfEmpty(t.SheetID), t.ID)
	if err != nil {
		return protocol.Token{}, fmt.Errorf("update token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return protocol.Token{}, ErrNotFound
	}
	return s.Token(t.ID)
}

func (s *Store) MoveToken(id string, x, y float64) (protocol.Token, error) {
	res, err := s.db.Exec(`UPDATE map_tokens SET x = ?, y = ? WHERE id = ?`, x, y, id)
	if err != nil {
		return protocol.Token{}, fmt.Errorf("move token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return protocol.Token{}, ErrNotFound
	}
	return s.Token(id)
}

func (s *Store) DeleteToken(id string) (protocol.Token, error) {
	old, err := s.Token(id)
	if err != nil {
		return protocol.Token{}, err
	}
	if _, err := s.db.Exec(`DELETE FROM map_tokens WHERE id = ?`, id); err != nil {
		return protocol.Token{}, fmt.Errorf("delete token: %w", err)
	}
	return old, nil
}

/* ------------------- drawings ------------------- */

func (s *Store) Drawings(campaignID string) ([]protocol.Drawing, error) {
	rows, err := s.db.Query(`SELECT id, campaign_id, path, color, brush_size, created_by
		FROM map_drawings WHERE campaign_id = ? ORDER BY rowid`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("select drawings: %w", err)
	}
	defer rows.Close()

	var out []protocol.Drawing
	for rows.Next() {
		var d protocol.Drawing
		var path string
		if err := rows.Scan(&d.ID, &d.CampaignID, &path, &d.Color, &d.BrushSize, &d.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan drawing: %w", err)
		}
		if err := json.Unmarshal([]byte(path), &d.Path); err != nil {
			return nil, fmt.Errorf("decode drawing path: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) InsertDrawing(d protocol.Drawing) (protocol.Drawing, error) {
	if d.ID == "" {
		d.ID = protocol.NewID()
	}
	path, err := json.Marshal(d.Path)
	if err != nil {
		return protocol.Drawing{}, fmt.Errorf("encode drawing path: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO map_drawings (id, campaign_id, path, color, brush_size, created_by)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.CampaignID, string(path), d.Color, d.BrushSize, d.CreatedBy); err != nil {
		return protocol.Drawing{}, fmt.Errorf("insert drawing: %w", err)
	}
	return d, nil
}

func (s *Store) ClearDrawings(campaignID string) error {
	if _, err := s.db.Exec(`DELETE FROM map_drawings WHERE campaign_id = ?`, campaignID); err != nil {
		return fmt.Errorf("clear drawings: %w", err)
	}
	return nil
}

/* ------------------- initiative ------------------- */

// UpsertInitiative stores the whole tracker row, replacing any previous one.
func (s *Store) UpsertInitiative(st protocol.InitiativeState) error {
	parts, err := json.Marshal(st.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO campaign_initiatives (session_id, participants, round, current_turn, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET participants = excluded.participants,
			round = excluded.round, current_turn = excluded.current_turn, updated_at = excluded.updated_at`,
		st.SessionID, string(parts), st.Round, st.Turn, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert initiative: %w", err)
	}
	return nil
}

// Initiative returns the stored tracker, or a fresh one when the campaign
// has never saved initiative.
func (s *Store) Initiative(sessionID string) (protocol.InitiativeState, error) {
	st := protocol.InitiativeState{SessionID: sessionID, Round: 1}
	var parts string
	err := s.db.QueryRow(`SELECT participants, round, current_turn FROM campaign_initiatives WHERE session_id = ?`,
		sessionID).Scan(&parts, &st.Round, &st.Turn)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("select initiative: %w", err)
	}
	if err := json.Unmarshal([]byte(parts), &st.Participants); err != nil {
		return st, fmt.Errorf("decode participants: %w", err)
	}
	return st, nil
}

/* ------------------- chat ------------------- */

func (s *Store) InsertChat(m protocol.ChatMessage) (protocol.ChatMessage, error) {
	if m.ID == "" {
		m.ID = protocol.NewID()
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.db.Exec(`INSERT INTO campaign_chat_messages (id, campaign_id, user_id, content, recipient_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.CampaignID, m.UserID, m.Content, nullIfEmpty(m.RecipientID), m.CreatedAt)
	if err != nil {
		return protocol.ChatMessage{}, fmt.Errorf("insert chat: %w", err)
	}
	return m, nil
}

// ChatMessage fetches a single message without touching it.
func (s *Store) ChatMessage(id string) (protocol.ChatMessage, error) {
	var m protocol.ChatMessage
	var recipient sql.NullString
	err := s.db.QueryRow(`SELECT id, campaign_id, user_id, content, recipient_id, created_at
		FROM campaign_chat_messages WHERE id = ?`, id).
		Scan(&m.ID, &m.CampaignID, &m.UserID, &m.Content, &recipient, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.ChatMessage{}, ErrNotFound
	}
	if err != nil {
		return protocol.ChatMessage{}, fmt.Errorf("select chat: %w", err)
	}
	m.RecipientID = recipient.String
	return m, nil
}

func (s *Store) DeleteChat(id string) (protocol.ChatMessage, error) {
	m, err := s.ChatMessage(id)
	if err != nil {
		return protocol.ChatMessage{}, err
	}
	if _, err := s.db.Exec(`DELETE FROM campaign_chat_messages WHERE id = ?`, id); err != nil {
		return protocol.ChatMessage{}, fmt.Errorf("delete chat: %w", err)
	}
	return m, nil
}

// ChatPage returns up to limit messages newest first, restricted to what
// forUserID may read: public messages plus whispers they sent or received.
// A zero before means "from the newest"; otherwise only messages strictly
// older are returned.
func (s *Store) ChatPage(campaignID, forUserID string, before int64, limit int) ([]protocol.ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, campaign_id, user_id, content, recipient_id, created_at
		FROM campaign_chat_messages WHERE campaign_id = ?
		AND (recipient_id IS NULL OR recipient_id = ? OR user_id = ?)`
	args := []interface{}{campaignID, forUserID, forUserID}
	if before > 0 {
		q += ` AND created_at < ?`
		args = append(args, before)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("select chat page: %w", err)
	}
	defer rows.Close()

	var out []protocol.ChatMessage
	for rows.Next() {
		var m protocol.ChatMessage
		var recipient sql.NullString
		if err := rows.Scan(&m.ID, &m.CampaignID, &m.UserID, &m.Content, &recipient, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		m.RecipientID = recipient.String
		out = append(out, m)
	}
	return out, rows.Err()
}

/* ------------------- sheets and npcs ------------------- */

func (s *Store) UpsertSheet(sh protocol.Sheet) (protocol.Sheet, error) {
	if sh.ID == "" {
		sh.ID = protocol.NewID()
	}
	_, err := s.db.Exec(`INSERT INTO character_sheets (id, user_id, name, class, avatar_url, hp, ac)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, class = excluded.class,
			avatar_url = excluded.avatar_url, hp = excluded.hp, ac = excluded.ac`,
		sh.ID, sh.UserID, sh.Name, sh.Class, sh.AvatarURL, sh.HP, sh.AC)
	if err != nil {
		return protocol.Sheet{}, fmt.Errorf("upsert sheet: %w", err)
	}
	return sh, nil
}

// Sheet fetches one character sheet by id.
func (s *Store) Sheet(id string) (protocol.Sheet, error) {
	var sh protocol.Sheet
	err := s.db.QueryRow(`SELECT id, user_id, name, class, avatar_url, hp, ac
		FROM character_sheets WHERE id = ?`, id).
		Scan(&sh.ID, &sh.UserID, &sh.Name, &sh.Class, &sh.AvatarURL, &sh.HP, &sh.AC)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.Sheet{}, ErrNotFound
	}
	if err != nil {
		return protocol.Sheet{}, fmt.Errorf("select sheet: %w", err)
	}
	return sh, nil
}

// LinkSheet binds a character sheet to the member's seat in a campaign.
func (s *Store) LinkSheet(campaignID, userID, sheetID string) error {
	res, err := s.db.Exec(`UPDATE campaign_members SET sheet_id = ?
		WHERE campaign_id = ? AND user_id = ?`, sheetID, campaignID, userID)
	if err != nil {
		return fmt.Errorf("link sheet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MemberSheet returns the sheet linked to the member's seat, or nil when
// the seat has none.
func (s *Store) MemberSheet(campaignID, userID string) (*protocol.Sheet, error) {
	var sheetID sql.NullString
	err := s.db.QueryRow(`SELECT sheet_id FROM campaign_members
		WHERE campaign_id = ? AND user_id = ?`, campaignID, userID).Scan(&sheetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select member sheet: %w", err)
	}
	if !sheetID.Valid {
		return nil, nil
	}
	sh, err := s.Sheet(sheetID.String)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *Store) UpsertNPC(n protocol.NPC, campaignID string) (protocol.NPC, error) {
	if n.ID == "" {
		n.ID = protocol.NewID()
	}
	_, err := s.db.Exec(`INSERT INTO npcs (id, campaign_id, name, avatar_url, hp, ac)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, avatar_url = excluded.avatar_url,
			hp = excluded.hp, ac = excluded.ac`,
		n.ID, campaignID, n.Name, n.AvatarURL, n.HP, n.AC)
	if err != nil {
		return protocol.NPC{}, fmt.Errorf("upsert npc: %w", err)
	}
	return n, nil
}

/* ------------------- helpers ------------------- */

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(protocol.NewID(), "-", "")[:8])
}
