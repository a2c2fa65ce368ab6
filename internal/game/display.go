package game

import (
	"fmt"
	"strings"

	"lumina/internal/protocol"
)

// Display resolution for token-backing variants. A token may be backed by an
// NPC, a player sheet, or nothing; lookups walk that priority order.

func tokenName(t protocol.Token) string {
	if t.NPC != nil && t.NPC.Name != "" {
		return t.NPC.Name
	}
	if t.Sheet != nil && t.Sheet.Name != "" {
		return t.Sheet.Name
	}
	return ""
}

func tokenInitials(t protocol.Token) string {
	name := tokenName(t)
	if name == "" {
		name = "?"
	}
	r := []rune(name)
	if len(r) > 2 {
		r = r[:2]
	}
	return strings.ToUpper(string(r))
}

func tokenAvatarURL(t protocol.Token) string {
	if t.Image != "" {
		return t.Image
	}
	if t.NPC != nil && t.NPC.AvatarURL != "" {
		return t.NPC.AvatarURL
	}
	if t.Sheet != nil && t.Sheet.AvatarURL != "" {
		return t.Sheet.AvatarURL
	}
	return ""
}

func tokenHP(t protocol.Token) int {
	if t.NPC != nil && t.NPC.HP != 0 {
		return t.NPC.HP
	}
	if t.Sheet != nil {
		return t.Sheet.HP
	}
	return 0
}

func tokenAC(t protocol.Token) int {
	if t.NPC != nil && t.NPC.AC != 0 {
		return t.NPC.AC
	}
	if t.Sheet != nil {
		return t.Sheet.AC
	}
	return 0
}

// canSeeHP: the GM always, the sheet's owning player for their own token.
func canSeeHP(t protocol.Token, isGM bool, userID string) bool {
	if isGM {
		return true
	}
	return t.Sheet != nil && t.Sheet.UserID == userID && userID != ""
}

// AC is GM-only.
func canSeeAC(isGM bool) bool { return isGM }

// statsLabel renders the "HP:n AC:n" line under a token, honoring viewer
// permissions. Empty string means nothing is drawn.
func statsLabel(t protocol.Token, isGM bool, userID string) string {
	var parts []string
	if canSeeHP(t, isGM, userID) {
		if hp := tokenHP(t); hp != 0 {
			parts = append(parts, fmt.Sprintf("HP:%d", hp))
		}
	}
	if canSeeAC(isGM) {
		if ac := tokenAC(t); ac != 0 {
			parts = append(parts, fmt.Sprintf("AC:%d", ac))
		}
	}
	return strings.Join(parts, " ")
}
