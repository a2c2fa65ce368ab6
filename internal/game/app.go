package game

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"lumina/internal/protocol"
)

// Tools for the left mouse button.
const (
	toolSelect = iota
	toolDraw
	toolPing
)

// App is the ebiten shell around one map session.
type App struct {
	session  *Session
	renderer *Renderer

	tool        int
	showGMLayer bool
	snap        bool

	selectedID string
	dragID     string
	dragOffX   float64 // grab point offset inside the token, world units
	dragOffY   float64

	panning    bool
	lastMx     int
	lastMy     int
	brushColor string
	brushSize  float64

	typing bool
	input  []rune

	status   string
	statusAt time.Time

	// Decoded images arrive from fetch goroutines and are folded into the
	// renderer on the update goroutine, so the renderer itself stays
	// single-threaded.
	images   chan loadedImage
	fetching map[string]bool

	campaignApplied bool
}

type loadedImage struct {
	url        string
	img        *ebiten.Image
	background bool
}

func NewApp(s *Session) *App {
	return &App{
		session:    s,
		renderer:   NewRenderer(4000, 3000, 50),
		snap:       true,
		brushColor: s.Color,
		brushSize:  4,
		images:     make(chan loadedImage, 16),
		fetching:   map[string]bool{},
	}
}

// applyCampaign folds the campaign row into the renderer and camera once
// the snapshot has landed.
func (a *App) applyCampaign() {
	if a.campaignApplied || !a.session.Joined() {
		return
	}
	a.campaignApplied = true
	camp := a.session.Campaign
	if camp.GridSize > 0 {
		a.renderer.GridSize = float64(camp.GridSize)
	}
	if camp.MapImage != "" {
		a.fetchImage(camp.MapImage, true)
	}
}

// fetchImage decodes a remote image off the update goroutine. Each URL is
// fetched at most once per app.
func (a *App) fetchImage(url string, background bool) {
	if url == "" || a.fetching[url] {
		return
	}
	a.fetching[url] = true
	go func() {
		img, err := ebitenutil.NewImageFromURL(url)
		if err != nil {
			return
		}
		a.images <- loadedImage{url: url, img: img, background: background}
	}()
}

func (a *App) drainImages() {
	for {
		select {
		case li := <-a.images:
			if li.background {
				a.renderer.Background = li.img
				w, h := li.img.Bounds().Dx(), li.img.Bounds().Dy()
				a.renderer.MapWidth = float64(w)
				a.renderer.MapHeight = float64(h)
			} else {
				a.renderer.Avatars[li.url] = li.img
			}
		default:
			return
		}
	}
}

func (a *App) Update() error {
	a.session.Pump()
	a.applyCampaign()
	a.drainImages()
	for _, tok := range a.session.Tokens.Tokens() {
		a.fetchImage(tokenAvatarURL(tok), false)
	}
	if a.session.Joined() && a.session.IsGM() && !a.showGMLayer {
		// The GM starts with their layer visible.
		a.showGMLayer = true
	}

	mx, my := ebiten.CursorPosition()
	cam := &a.session.Camera

	// Zoom toward the cursor.
	if _, wy := ebiten.Wheel(); wy != 0 {
		cam.ZoomAt(wy, float64(mx), float64(my))
	}

	// Pan with middle or right button.
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonMiddle) || ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight) {
		if a.panning {
			cam.Pan(float64(mx-a.lastMx), float64(my-a.lastMy))
		}
		a.panning = true
		a.lastMx, a.lastMy = mx, my
	} else {
		a.panning = false
	}

	wx, wy := cam.ScreenToWorld(float64(mx), float64(my))
	a.session.Collab.UpdateCursor(wx, wy)

	if a.typing {
		a.updateChatInput()
		return nil
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		a.typing = true
		a.input = a.input[:0]
		return nil
	}
	a.handleKeys()

	// T drops a token at the cursor, Y drops one on the hidden layer.
	if a.session.IsGM() {
		layer := ""
		if inpututil.IsKeyJustPressed(ebiten.KeyT) {
			layer = protocol.LayerPlayer
		} else if inpututil.IsKeyJustPressed(ebiten.KeyY) {
			layer = protocol.LayerGM
		}
		if layer != "" {
			x, y := SnapToGrid(wx, wy, a.renderer.GridSize)
			tok := protocol.Token{
				CampaignID: a.session.CampaignID,
				X:          x, Y: y,
				Scale: 1,
				Layer: layer,
			}
			// Hidden-layer drops stamp the last saved NPC onto the token.
			if layer == protocol.LayerGM && a.session.LastNPC != nil {
				tok.NPCID = a.session.LastNPC.ID
			}
			_ = a.session.Tokens.Create(tok)
		}
	}

	switch a.tool {
	case toolSelect:
		a.updateSelectTool(wx, wy)
	case toolDraw:
		a.updateDrawTool(wx, wy)
	case toolPing:
		if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
			_ = a.session.Collab.CreatePing(wx, wy)
		}
	}
	return nil
}

func (a *App) handleKeys() {
	for _, k := range inpututil.AppendJustPressedKeys(nil) {
		switch k {
		case ebiten.Key1:
			a.tool = toolSelect
			a.setStatus("Select")
		case ebiten.Key2:
			a.tool = toolDraw
			a.setStatus("Draw")
		case ebiten.Key3:
			a.tool = toolPing
			a.setStatus("Ping")
		case ebiten.KeyG:
			if a.session.IsGM() {
				a.showGMLayer = !a.showGMLayer
				a.setStatus(fmt.Sprintf("GM layer: %v", a.showGMLayer))
			}
		case ebiten.KeyS:
			a.snap = !a.snap
			a.setStatus(fmt.Sprintf("Snap: %v", a.snap))
		case ebiten.KeyN:
			_ = a.session.Initiative.NextTurn()
		case ebiten.KeyX:
			if a.session.IsGM() {
				_ = a.session.Collab.ClearDrawings()
				a.setStatus("Drawings cleared")
			}
		case ebiten.KeyC:
			if err := a.session.CopyInviteCode(); err == nil {
				a.setStatus("Invite code copied")
			}
		case ebiten.KeyDelete, ebiten.KeyBackspace:
			if a.selectedID != "" && a.session.IsGM() && a.dragID == "" {
				_ = a.session.Tokens.Delete(a.selectedID)
				a.selectedID = ""
			}
		}
	}
}

func (a *App) updateChatInput() {
	a.input = ebiten.AppendInputChars(a.input)
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) && len(a.input) > 0 {
		a.input = a.input[:len(a.input)-1]
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		a.typing = false
		return
	}
	if !inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		return
	}
	a.typing = false
	line := strings.TrimSpace(string(a.input))
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "/") {
		a.runCommand(line)
		return
	}
	if err := a.session.Chat.Send(line, ""); err != nil {
		a.setStatus("send failed: " + err.Error())
	}
}

// runCommand handles the small slash-command set typed into chat.
func (a *App) runCommand(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/w":
		// /w username message...
		if len(fields) < 3 {
			a.setStatus("usage: /w name message")
			return
		}
		var recipient string
		for _, m := range a.session.Members {
			if strings.EqualFold(m.Username, fields[1]) {
				recipient = m.UserID
				break
			}
		}
		if recipient == "" {
			a.setStatus("no such member: " + fields[1])
			return
		}
		_ = a.session.Chat.Send(strings.Join(fields[2:], " "), recipient)
	case "/init":
		a.runInitCommand(fields[1:])
	case "/sheet":
		a.runSheetCommand(fields[1:])
	case "/npc":
		a.runNPCCommand(fields[1:])
	case "/invite":
		if len(fields) != 2 {
			a.setStatus("usage: /invite name")
			return
		}
		if err := a.session.CreateInvite(fields[1]); err != nil {
			a.setStatus("invite failed: " + err.Error())
		} else {
			a.setStatus("invited " + fields[1])
		}
	default:
		a.setStatus("unknown command " + fields[0])
	}
}

func (a *App) runInitCommand(args []string) {
	if len(args) == 0 {
		a.setStatus("usage: /init add|next|remove|clear")
		return
	}
	switch args[0] {
	case "add":
		// /init add Name Total
		if len(args) < 3 {
			a.setStatus("usage: /init add name total")
			return
		}
		total, err := strconv.Atoi(args[len(args)-1])
		if err != nil {
			a.setStatus("total must be a number")
			return
		}
		name := strings.Join(args[1:len(args)-1], " ")
		_ = a.session.Initiative.AddParticipant(protocol.InitiativeParticipant{
			ID: protocol.NewID(), Name: name, Total: total,
		})
	case "remove":
		if len(args) != 2 {
			a.setStatus("usage: /init remove name")
			return
		}
		for _, p := range a.session.Initiative.State().Participants {
			if strings.EqualFold(p.Name, args[1]) {
				_ = a.session.Initiative.RemoveParticipant(p.ID)
				return
			}
		}
		a.setStatus("no such participant")
	case "next":
		_ = a.session.Initiative.NextTurn()
	case "clear":
		_ = a.session.Initiative.Clear()
	default:
		a.setStatus("unknown init command")
	}
}

// runSheetCommand saves the caller's character: /sheet Name Class HP AC [avatar].
// Re-running it updates the same sheet.
func (a *App) runSheetCommand(args []string) {
	if len(args) < 4 {
		a.setStatus("usage: /sheet name class hp ac [avatar-url]")
		return
	}
	hp, err1 := strconv.Atoi(args[2])
	ac, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		a.setStatus("hp and ac must be numbers")
		return
	}
	sh := protocol.Sheet{Name: args[0], Class: args[1], HP: hp, AC: ac}
	if a.session.Sheet != nil {
		sh.ID = a.session.Sheet.ID
	}
	if len(args) > 4 {
		sh.AvatarURL = args[4]
	}
	if err := a.session.SaveSheet(sh); err != nil {
		a.setStatus("sheet save failed: " + err.Error())
	} else {
		a.setStatus("sheet saved: " + sh.Name)
	}
}

// runNPCCommand saves a GM-owned NPC: /npc Name HP AC [avatar]. The saved
// NPC becomes the stamp for hidden-layer token drops.
func (a *App) runNPCCommand(args []string) {
	if !a.session.IsGM() {
		a.setStatus("gm only")
		return
	}
	if len(args) < 3 {
		a.setStatus("usage: /npc name hp ac [avatar-url]")
		return
	}
	hp, err1 := strconv.Atoi(args[1])
	ac, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		a.setStatus("hp and ac must be numbers")
		return
	}
	n := protocol.NPC{Name: args[0], HP: hp, AC: ac}
	if len(args) > 3 {
		n.AvatarURL = args[3]
	}
	if err := a.session.SaveNPC(n); err != nil {
		a.setStatus("npc save failed: " + err.Error())
	} else {
		a.setStatus("npc saved: " + n.Name)
	}
}

func (a *App) updateSelectTool(wx, wy float64) {
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		if tok, ok := a.hitToken(wx, wy); ok {
			a.selectedID = tok.ID
			a.dragID = tok.ID
			a.dragOffX, a.dragOffY = wx-tok.X, wy-tok.Y
			a.session.Collab.BroadcastDrag(tok.ID)
		} else {
			a.selectedID = ""
		}
	}

	if a.dragID != "" {
		x, y := wx-a.dragOffX, wy-a.dragOffY
		released := inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft)
		if released && a.snap {
			x, y = SnapToGrid(x, y, a.renderer.GridSize)
		}
		_ = a.session.Tokens.Move(a.dragID, x, y, released)
		if released {
			a.session.Collab.BroadcastDragEnd(a.dragID)
			a.dragID = ""
		}
	}
}

func (a *App) updateDrawTool(wx, wy float64) {
	switch {
	case inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft):
		a.session.Collab.StartStroke(wx, wy)
	case ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft):
		a.session.Collab.AppendStroke(wx, wy)
	case inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft):
		_ = a.session.Collab.EndStroke(a.brushColor, a.brushSize)
	}
}

// hitToken finds the topmost token under a world point, honoring layer
// visibility so players cannot grab what they cannot see.
func (a *App) hitToken(wx, wy float64) (protocol.Token, bool) {
	tokens := visibleTokens(a.session.Tokens.Tokens(), a.showGMLayer)
	for i := len(tokens) - 1; i >= 0; i-- {
		tok := tokens[i]
		scale := tok.Scale
		if scale == 0 {
			scale = 1.0
		}
		size := a.renderer.GridSize * scale
		cx, cy := tok.X+size/2, tok.Y+size/2
		dx, dy := wx-cx, wy-cy
		if dx*dx+dy*dy <= (size/2)*(size/2) {
			return tok, true
		}
	}
	return protocol.Token{}, false
}

func (a *App) setStatus(s string) {
	a.status = s
	a.statusAt = time.Now()
}

func (a *App) Draw(screen *ebiten.Image) {
	var localDrag *LocalDrag
	if a.dragID != "" {
		localDrag = &LocalDrag{TokenID: a.dragID, Color: a.session.Color, Name: a.session.Name}
	}

	a.renderer.Render(screen, a.session.Camera, Scene{
		Tokens:        a.session.Tokens.Tokens(),
		ShowGMLayer:   a.showGMLayer,
		IsGM:          a.session.IsGM(),
		CurrentUserID: a.session.UserID,
		SelectedID:    a.selectedID,
		Cursors:       a.session.Collab.Cursors(),
		Pings:         a.session.Collab.Pings(),
		Drawings:      a.session.Collab.Drawings(),
		CurrentStroke: a.session.Collab.CurrentStroke(),
		StrokeColor:   a.brushColor,
		StrokeBrush:   a.brushSize,
		RemoteDrags:   a.session.Collab.RemoteDrags(),
		LocalDrag:     localDrag,
		NowMillis:     time.Now().UnixMilli(),
	})

	a.drawHUD(screen)
}

func (a *App) drawHUD(screen *ebiten.Image) {
	st := a.session.Initiative.State()
	line := fmt.Sprintf("%s  |  round %d", a.session.Campaign.Name, st.Round)
	if len(st.Participants) > 0 && st.Turn < len(st.Participants) {
		line += "  |  turn: " + st.Participants[st.Turn].Name
	}
	if a.status != "" && time.Since(a.statusAt) < 3*time.Second {
		line += "  |  " + a.status
	}
	if e := a.session.LastError(); e != "" {
		line += "  |  error: " + e
	}
	ebitenutil.DebugPrint(screen, line)

	// Chat tail at the bottom left.
	msgs := a.session.Chat.Messages()
	start := len(msgs) - 5
	if start < 0 {
		start = 0
	}
	h := screen.Bounds().Dy()
	bottom := h - 8
	if a.typing {
		ebitenutil.DebugPrintAt(screen, "> "+string(a.input), 8, bottom-16)
		bottom -= 16
	}
	for i, m := range msgs[start:] {
		ebitenutil.DebugPrintAt(screen, m.Content, 8, bottom-16*(len(msgs[start:])-i))
	}
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}
