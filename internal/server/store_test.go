package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"lumina/internal/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUser(t *testing.T, s *Store, name string) User {
	t.Helper()
	u, err := s.CreateUser(name, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func mustCampaign(t *testing.T, s *Store, gm User) protocol.Campaign {
	t.Helper()
	c, err := s.CreateCampaign("Test Campaign", gm.ID)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	mustUser(t, s, "alice")
	if _, err := s.CreateUser("Alice", "other"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}
}

func TestCampaignCreatorBecomesGM(t *testing.T) {
	s := newTestStore(t)
	gm := mustUser(t, s, "gm")
	c := mustCampaign(t, s, gm)

	if c.InviteCode == "" {
		t.Fatal("campaign has no invite code")
	}
	role, err := s.MemberRole(c.ID, gm.ID)
	if err != nil {
		t.Fatalf("member role: %v", err)
	}
	if role != "gm" {
		t.Fatalf("creator role = %q, want gm", role)
	}
}

func TestAcceptInviteJoinsAsPlayer(t *testing.T) {
	s := newTestStore(t)
	gm := mustUser(t, s, "gm")
	player := mustUser(t, s, "bob")
	c := mustCampaign(t, s, gm)

	inv, err := s.CreateInvitation(c.ID, gm.ID, "bob")
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if inv.Status != protocol.InviteStatusPending {
		t.Fatalf("new invitation status = %q", inv.Status)
	}

	// Inviting the same person twice conflicts.
	if _, err := s.CreateInvitation(c.ID, gm.ID, "Bob"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on duplicate invite, got %v", err)
	}

	pending, err := s.PendingInvitations("bob")
	if err != nil {
		t.Fatalf("pending invitations: %v", err)
	}
	if len(pending) != 1 || pending[0].CampaignID != c.ID {
		t.Fatalf("pending = %+v", pending)
	}

	joined, err := s.AcceptInvite(c.InviteCode, player.ID, player.Username)
	if err != nil {
		t.Fatalf("accept invite: %v", err)
	}
	if joined != c.ID {
		t.Fatalf("joined campaign %q, want %q", joined, c.ID)
	}
	role, err := s.MemberRole(c.ID, player.ID)
	if err != nil {
		t.Fatalf("member role after accept: %v", err)
	}
	if role != "player" {
		t.Fatalf("role = %q, want player", role)
	}

	// Accepting flips the directed invitation off the pending list.
	pending, err = s.PendingInvitations("bob")
	if err != nil {
		t.Fatalf("pending after accept: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("invitation still pending after accept: %+v", pending)
	}
}

func TestAcceptInviteBadCode(t *testing.T) {
	s := newTestStore(t)
	u := mustUser(t, s, "bob")
	if _, err := s.AcceptInvite("NOPE1234", u.ID, u.Username); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for bad code, got %v", err)
	}
}

func TestTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	gm := mustUser(t, s, "gm")
	c := mustCampaign(t, s, gm)

	created, err := s.InsertToken(protocol.Token{CampaignID: c.ID, X: 100, Y: 200})
	if err != nil {
		t.Fatalf("insert token: %v", err)
	}
	if created.ID == "" || created.Scale != 1 || created.Layer != protocol.LayerPlayer {
		t.Fatalf("defaults not applied: %+v", created)
	}

	moved, err := s.MoveToken(created.ID, 150, 250)
	if err != nil {
		t.Fatalf("move token: %v", err)
	}
	if moved.X != 150 || moved.Y != 250 {
		t.Fatalf("moved to (%v, %v)", moved.X, moved.Y)
	}

	old, err := s.DeleteToken(created.ID)
	if err != nil {
		t.Fatalf("delete token: %v", err)
	}
	if old.X != 150 {
		t.Fatalf("delete returned stale row: %+v", old)
	}
	if _, err := s.Token(created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("token still present after delete: %v", err)
	}
	if _, err := s.MoveToken(created.ID, 0, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("moving a deleted token: %v", err)
	}
}

func TestTokenJoinsNPCAndSheet(t *testing.T) {
	s := newTestStore(t)
	gm := mustUser(t, s, "gm")
	c := mustCampaign(t, s, gm)

	npc, err := s.UpsertNPC(protocol.NPC{Name: "Goblin", HP: 7, AC: 13}, c.ID)
	if err != nil {
		t.Fatalf("upsert npc: %v", err)
	}
	sheet, err := s.UpsertSheet(protocol.Sheet{UserID: gm.ID, Name: "Karlach", HP: 30, AC: 16})
	if err != nil {
		t.Fatalf("upsert sheet: %v", err)
	}

	tok, err := s.InsertToken(protocol.Token{CampaignID: c.ID, NPCID: npc.ID})
	if err != nil {
		t.Fatalf("insert npc token: %v", err)
	}
	if tok.NPC == nil || tok.NPC.Name != "Goblin" || tok.NPC.HP != 7 {
		t.Fatalf("npc not joined: %+v", tok.NPC)
	}
	if tok.Sheet != nil {
		t.Fatalf("unexpected sheet on npc token")
	}

	tok2, err := s.InsertToken(protocol.Token{CampaignID: c.ID, SheetID: sheet.ID})
	if err != nil {
		t.Fatalf("insert sheet token: %v", err)
	}
	if tok2.Sheet == nil || tok2.Sheet.Name != "Karlach" || tok2.Sheet.UserID != gm.ID {
		t.Fatalf("sheet not joined: %+v", tok2.Sheet)
	}
}

func TestDrawingsRoundTripAndClear(t *testing.T) {
	s := newTestStore(t)
	gm := mustUser(t, s, "gm")
	c := mustCampaign(t, s, gm)

	d, err := s.InsertDrawing(protocol.Drawing{
		CampaignID: c.ID,
		Path:       []protocol.PointF{{X: 1, Y: 2}, {X: 3, Y: 4}},
		Color:      "#ff0000",
		BrushSize:  4,
		CreatedBy:  gm.ID,
	})
	if err != nil {
		t.Fatalf("insert drawing: %v", err)
	}

	ds, err := s.Drawings(c.ID)
	if err != nil {
		t.Fatalf("list drawings: %v", err)
	}
	if len(ds) != 1 || len(ds[0].Path) != 2 || ds[0].Path[1].X != 3 {
		t.Fatalf("drawing path lost: %+v", ds)
	}
	if ds[0].ID != d.ID {
		t.Fatalf("id mismatch")
	}

	if err := s.ClearDrawings(c.ID); err != nil {
		t.Fatalf("clear drawings: %v", err)
	}
	ds, err = s.Drawings(c.ID)
	if err != nil {
		t.Fatalf("list after clear: %v", err)
	}
	if len(ds) != 0 {
		t.Fatalf("%d drawings survived clear", len(ds))
	}
}

func TestInitiativeDefaultsAndUpsert(t *testing.T) {
	s := newTestStore(t)

	st, err := s.Initiative("camp-1")
	if err != nil {
		t.Fatalf("initiative default: %v", err)
	}
	if st.Round != 1 || st.Turn != 0 || len(st.Participants) != 0 {
		t.Fatalf("unexpected default state: %+v", st)
	}

	st.Participants = []protocol.InitiativeParticipant{{ID: "a", Name: "Astarion", Total: 18}}
	st.Round = 3
	st.Turn = 0
	if err := s.UpsertInitiative(st); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Second upsert replaces, never duplicates.
	st.Round = 4
	if err := s.UpsertInitiative(st); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.Initiative("camp-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Round != 4 || len(got.Participants) != 1 || got.Participants[0].Name != "Astarion" {
		t.Fatalf("round trip lost state: %+v", got)
	}
}

func TestChatPagination(t *testing.T) {
	s := newTestStore(t)
	gm := mustUser(t, s, "gm")
	c := mustCampaign(t, s, gm)

	for i := 0; i < 25; i++ {
		_, err := s.InsertChat(protocol.ChatMessage{
			CampaignID: c.ID,
			UserID:     gm.ID,
			Content:    fmt.Sprintf("msg %d", i),
			CreatedAt:  int64(1000 + i),
		})
		if err != nil {
			t.Fatalf("insert chat %d: %v", i, err)
		}
	}

	page, err := s.ChatPage(c.ID, gm.ID, 0, 20)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != 20 {
		t.Fatalf("first page has %d messages", len(page))
	}
	if page[0].Content != "msg 24" || page[19].Content != "msg 5" {
		t.Fatalf("first page order wrong: %q .. %q", page[0].Content, page[19].Content)
	}

	oldest := page[len(page)-1].CreatedAt
	page2, err := s.ChatPage(c.ID, gm.ID, oldest, 20)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(page2) != 5 {
		t.Fatalf("second page has %d messages", len(page2))
	}
	if page2[0].Content != "msg 4" || page2[4].Content != "msg 0" {
		t.Fatalf("second page order wrong: %q .. %q", page2[0].Content, page2[4].Content)
	}
}

func TestChatPageHidesOtherPeoplesWhispers(t *testing.T) {
	s := newTestStore(t)
	gm := mustUser(t, s, "gm")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")
	c := mustCampaign(t, s, gm)

	rows := []protocol.ChatMessage{
		{CampaignID: c.ID, UserID: gm.ID, Content: "hello all", CreatedAt: 1000},
		{CampaignID: c.ID, UserID: gm.ID, Content: "psst bob", RecipientID: bob.ID, CreatedAt: 1001},
		{CampaignID: c.ID, UserID: bob.ID, Content: "psst back", RecipientID: gm.ID, CreatedAt: 1002},
	}
	for _, m := range rows {
		if _, err := s.InsertChat(m); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	page, err := s.ChatPage(c.ID, carol.ID, 0, 20)
	if err != nil {
		t.Fatalf("carol page: %v", err)
	}
	if len(page) != 1 || page[0].Content != "hello all" {
		t.Fatalf("carol sees %d messages: %+v", len(page), page)
	}

	for _, uid := range []string{gm.ID, bob.ID} {
		page, err := s.ChatPage(c.ID, uid, 0, 20)
		if err != nil {
			t.Fatalf("page for %s: %v", uid, err)
		}
		if len(page) != 3 {
			t.Fatalf("participant %s sees %d messages, want 3", uid, len(page))
		}
	}
}

func TestLinkSheetAndMemberSheet(t *testing.T) {
	s := newTestStore(t)
	gm := mustUser(t, s, "gm")
	bob := mustUser(t, s, "bob")
	c := mustCampaign(t, s, gm)
	if err := s.AddMember(c.ID, bob.ID, "player"); err != nil {
		t.Fatalf("add member: %v", err)
	}

	got, err := s.MemberSheet(c.ID, bob.ID)
	if err != nil {
		t.Fatalf("member sheet: %v", err)
	}
	if got != nil {
		t.Fatalf("fresh seat has sheet: %+v", got)
	}

	sh, err := s.UpsertSheet(protocol.Sheet{UserID: bob.ID, Name: "Mira", Class: "rogue", HP: 17, AC: 14})
	if err != nil {
		t.Fatalf("upsert sheet: %v", err)
	}
	if err := s.LinkSheet(c.ID, bob.ID, sh.ID); err != nil {
		t.Fatalf("link sheet: %v", err)
	}

	got, err = s.MemberSheet(c.ID, bob.ID)
	if err != nil {
		t.Fatalf("member sheet after link: %v", err)
	}
	if got == nil || got.Name != "Mira" || got.AC != 14 {
		t.Fatalf("linked sheet mismatch: %+v", got)
	}

	if err := s.LinkSheet(c.ID, "nobody", sh.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("link for non-member: %v", err)
	}
	if _, err := s.MemberSheet(c.ID, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("member sheet for non-member: %v", err)
	}
}

func TestDeleteChatReturnsOldRow(t *testing.T) {
	s := newTestStore(t)
	gm := mustUser(t, s, "gm")
	c := mustCampaign(t, s, gm)

	m, err := s.InsertChat(protocol.ChatMessage{CampaignID: c.ID, UserID: gm.ID, Content: "oops"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	peek, err := s.ChatMessage(m.ID)
	if err != nil || peek.Content != "oops" {
		t.Fatalf("peek: %+v, %v", peek, err)
	}
	old, err := s.DeleteChat(m.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if old.Content != "oops" || old.UserID != gm.ID {
		t.Fatalf("old row mismatch: %+v", old)
	}
	if _, err := s.DeleteChat(m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestMembersIncludeSheetDetails(t *testing.T) {
	s := newTestStore(t)
	gm := mustUser(t, s, "gm")
	player := mustUser(t, s, "bob")
	c := mustCampaign(t, s, gm)
	if err := s.AddMember(c.ID, player.ID, "player"); err != nil {
		t.Fatalf("add member: %v", err)
	}

	ms, err := s.Members(c.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(ms) != 2 {
		t.Fatalf("got %d members, want 2", len(ms))
	}
	byName := map[string]protocol.Member{}
	for _, m := range ms {
		byName[m.Username] = m
	}
	if byName["gm"].Role != "gm" || byName["bob"].Role != "player" {
		t.Fatalf("roles wrong: %+v", ms)
	}
}
