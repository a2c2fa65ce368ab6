package game

import (
	"image/color"
	"testing"

	"lumina/internal/protocol"
)

func TestVisibleTokensFiltersGMLayer(t *testing.T) {
	tokens := []protocol.Token{
		{ID: "p1", Layer: protocol.LayerPlayer},
		{ID: "g1", Layer: protocol.LayerGM},
		{ID: "p2", Layer: protocol.LayerPlayer},
	}

	hidden := visibleTokens(tokens, false)
	if len(hidden) != 2 {
		t.Fatalf("gm layer off: %d tokens", len(hidden))
	}
	for _, tok := range hidden {
		if tok.Layer == protocol.LayerGM {
			t.Errorf("gm token leaked: %+v", tok)
		}
	}

	shown := visibleTokens(tokens, true)
	if len(shown) != 3 {
		t.Errorf("gm layer on: %d tokens", len(shown))
	}
}

func TestDragStateAttribution(t *testing.T) {
	sc := Scene{
		RemoteDrags: map[string]RemoteDrag{"t1": {Color: "#00ff00", Name: "Ana"}},
		LocalDrag:   &LocalDrag{TokenID: "t2", Color: "#0000ff", Name: "Me"},
	}

	if col, name, ok := dragStateFor("t1", sc); !ok || col != "#00ff00" || name != "Ana" {
		t.Errorf("remote drag: %v %v %v", col, name, ok)
	}
	if col, name, ok := dragStateFor("t2", sc); !ok || col != "#0000ff" || name != "Me" {
		t.Errorf("local drag: %v %v %v", col, name, ok)
	}
	if _, _, ok := dragStateFor("t3", sc); ok {
		t.Error("idle token reported as dragged")
	}

	// A remote drag on the same token outranks the local one.
	sc.RemoteDrags["t2"] = RemoteDrag{Color: "#ffffff", Name: "Peer"}
	if _, name, _ := dragStateFor("t2", sc); name != "Peer" {
		t.Errorf("remote should win: %v", name)
	}
}

func TestPingPhase(t *testing.T) {
	if got := pingPhase(0); got != 0 {
		t.Errorf("phase(0) = %v", got)
	}
	if got := pingPhase(250); got != 0.5 {
		t.Errorf("phase(250) = %v", got)
	}
	// Periodic with period 500ms.
	if a, b := pingPhase(123), pingPhase(123+500); a != b {
		t.Errorf("phase not periodic: %v vs %v", a, b)
	}
	if got := pingPhase(499); got >= 1 {
		t.Errorf("phase must stay below 1: %v", got)
	}
}

func TestParseHexColor(t *testing.T) {
	fb := color.NRGBA{1, 2, 3, 0xff}
	cases := []struct {
		in   string
		want color.NRGBA
	}{
		{"#ff0000", color.NRGBA{0xff, 0, 0, 0xff}},
		{"#4488ff", color.NRGBA{0x44, 0x88, 0xff, 0xff}},
		{"#fff", color.NRGBA{0xff, 0xff, 0xff, 0xff}},
		{"", fb},
		{"red", fb},
		{"#12345", fb},
	}
	for _, c := range cases {
		if got := parseHexColor(c.in, fb); got != c.want {
			t.Errorf("parseHexColor(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
