package game

import (
	"testing"

	"lumina/internal/protocol"
)

func TestTokenNameFallbacks(t *testing.T) {
	npcTok := protocol.Token{NPC: &protocol.NPC{Name: "Goblin"}, Sheet: &protocol.Sheet{Name: "Ignored"}}
	if got := tokenName(npcTok); got != "Goblin" {
		t.Errorf("npc name: got %q", got)
	}
	sheetTok := protocol.Token{Sheet: &protocol.Sheet{Name: "Elora"}}
	if got := tokenName(sheetTok); got != "Elora" {
		t.Errorf("sheet name: got %q", got)
	}
	if got := tokenInitials(protocol.Token{}); got != "?" {
		t.Errorf("unlinked initials: got %q", got)
	}
	if got := tokenInitials(sheetTok); got != "EL" {
		t.Errorf("initials: got %q", got)
	}
}

func TestTokenAvatarURLPreference(t *testing.T) {
	tok := protocol.Token{
		Image: "direct.png",
		NPC:   &protocol.NPC{AvatarURL: "npc.png"},
		Sheet: &protocol.Sheet{AvatarURL: "sheet.png"},
	}
	if got := tokenAvatarURL(tok); got != "direct.png" {
		t.Errorf("direct image: got %q", got)
	}
	tok.Image = ""
	if got := tokenAvatarURL(tok); got != "npc.png" {
		t.Errorf("npc avatar: got %q", got)
	}
	tok.NPC = nil
	if got := tokenAvatarURL(tok); got != "sheet.png" {
		t.Errorf("sheet avatar: got %q", got)
	}
	tok.Sheet = nil
	if got := tokenAvatarURL(tok); got != "" {
		t.Errorf("bare token: got %q", got)
	}
}

func TestStatsLabelVisibility(t *testing.T) {
	tok := protocol.Token{
		Sheet: &protocol.Sheet{UserID: "u1", Name: "Elora", HP: 24, AC: 16},
	}

	// GM sees everything.
	if got := statsLabel(tok, true, "gm-user"); got != "HP:24 AC:16" {
		t.Errorf("gm label: got %q", got)
	}
	// Owner sees HP only.
	if got := statsLabel(tok, false, "u1"); got != "HP:24" {
		t.Errorf("owner label: got %q", got)
	}
	// Unrelated player sees neither stat.
	if got := statsLabel(tok, false, "u2"); got != "" {
		t.Errorf("stranger label: got %q", got)
	}
	// Anonymous viewer of a token with an empty owner id gets nothing.
	anon := protocol.Token{Sheet: &protocol.Sheet{UserID: "", HP: 9}}
	if got := statsLabel(anon, false, ""); got != "" {
		t.Errorf("anonymous label: got %q", got)
	}
}

func TestNPCStatsTakePriority(t *testing.T) {
	tok := protocol.Token{
		NPC:   &protocol.NPC{Name: "Ogre", HP: 59, AC: 11},
		Sheet: &protocol.Sheet{UserID: "u1", HP: 24, AC: 16},
	}
	if got := statsLabel(tok, true, ""); got != "HP:59 AC:11" {
		t.Errorf("npc priority: got %q", got)
	}
}
