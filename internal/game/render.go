package game

import (
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"lumina/internal/protocol"
)

// Scene is the explicit snapshot the renderer consumes. The render entry
// point reads nothing else, so a frame is a pure function of its arguments
// plus the wall clock driving ping animation.
type Scene struct {
	Tokens        []protocol.Token
	ShowGMLayer   bool
	IsGM          bool
	CurrentUserID string
	SelectedID    string

	Cursors       map[string]RemoteCursor
	Pings         []protocol.Ping
	Drawings      []protocol.Drawing
	CurrentStroke []protocol.PointF
	StrokeColor   string
	StrokeBrush   float64
	RemoteDrags   map[string]RemoteDrag
	LocalDrag     *LocalDrag

	NowMillis int64
}

// Renderer redraws the whole map surface every frame, back to front. No
// incremental diffing: a full clear+redraw is cheap at tens of tokens.
type Renderer struct {
	Background *ebiten.Image
	MapWidth   float64
	MapHeight  float64

	GridSize    float64
	GridColor   color.NRGBA
	GridOpacity float64

	// Avatars maps avatar URLs to decoded images; missing entries fall back
	// to initials.
	Avatars map[string]*ebiten.Image

	face font.Face
}

func NewRenderer(mapW, mapH, gridSize float64) *Renderer {
	return &Renderer{
		MapWidth:    mapW,
		MapHeight:   mapH,
		GridSize:    gridSize,
		GridColor:   color.NRGBA{0xff, 0xff, 0xff, 0xff},
		GridOpacity: 0.3,
		Avatars:     map[string]*ebiten.Image{},
		face:        basicfont.Face7x13,
	}
}

var (
	backdropColor  = color.NRGBA{0x12, 0x12, 0x14, 0xff}
	mapFillColor   = color.NRGBA{0x1a, 0x1a, 0x1a, 0xff}
	tokenBaseColor = color.NRGBA{0x1e, 0x1e, 0x1e, 0xff}
	gmOutlineColor = color.NRGBA{0xff, 0x44, 0x44, 0xff}
	outlineColor   = color.NRGBA{0x33, 0x33, 0x33, 0xff}
	selectionColor = color.NRGBA{0xff, 0xd7, 0x00, 0xff}
	white          = color.NRGBA{0xff, 0xff, 0xff, 0xff}
)

// Render draws the scene onto dst through cam. A nil destination is a no-op.
func (r *Renderer) Render(dst *ebiten.Image, cam Camera, sc Scene) {
	if dst == nil {
		return
	}
	dst.Fill(backdropColor)

	r.drawBackground(dst, cam)
	r.drawGrid(dst, cam)
	r.drawTokens(dst, cam, sc)
	for _, d := range sc.Drawings {
		r.drawPath(dst, cam, d.Path, parseHexColor(d.Color, white), d.BrushSize)
	}
	if len(sc.CurrentStroke) > 1 {
		r.drawPath(dst, cam, sc.CurrentStroke, parseHexColor(sc.StrokeColor, white), sc.StrokeBrush)
	}
	r.drawPings(dst, cam, sc.Pings, sc.NowMillis)
	r.drawCursors(dst, cam, sc.Cursors)
}

func (r *Renderer) drawBackground(dst *ebiten.Image, cam Camera) {
	x0, y0 := cam.WorldToScreen(0, 0)
	if r.Background != nil {
		bw, bh := r.Background.Bounds().Dx(), r.Background.Bounds().Dy()
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(r.MapWidth/float64(bw)*cam.Zoom, r.MapHeight/float64(bh)*cam.Zoom)
		op.GeoM.Translate(x0, y0)
		dst.DrawImage(r.Background, op)
		return
	}
	vector.DrawFilledRect(dst, float32(x0), float32(y0),
		float32(r.MapWidth*cam.Zoom), float32(r.MapHeight*cam.Zoom), mapFillColor, false)
}

// drawGrid: vertical lines spaced by the cell width, horizontal lines by the
// independent cell height, both shifted by the grid offsets. Line width stays
// one screen pixel at any zoom.
func (r *Renderer) drawGrid(dst *ebiten.Image, cam Camera) {
	if r.GridSize <= 0 {
		return
	}
	col := r.GridColor
	col.A = uint8(math.Round(r.GridOpacity * 255))

	cellH := cam.GridHeight
	if cellH <= 0 {
		cellH = r.GridSize
	}

	for x := cam.GridOffsetX; x <= r.MapWidth; x += r.GridSize {
		sx, sy0 := cam.WorldToScreen(x, 0)
		_, sy1 := cam.WorldToScreen(x, r.MapHeight)
		vector.StrokeLine(dst, float32(sx), float32(sy0), float32(sx), float32(sy1), 1, col, false)
	}
	for y := cam.GridOffsetY; y <= r.MapHeight; y += cellH {
		sx0, sy := cam.WorldToScreen(0, y)
		sx1, _ := cam.WorldToScreen(r.MapWidth, y)
		vector.StrokeLine(dst, float32(sx0), float32(sy), float32(sx1), float32(sy), 1, col, false)
	}
}

// visibleTokens filters out GM-layer tokens for viewers without the GM layer.
func visibleTokens(tokens []protocol.Token, showGMLayer bool) []protocol.Token {
	out := make([]protocol.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Layer == protocol.LayerGM && !showGMLayer {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (r *Renderer) drawTokens(dst *ebiten.Image, cam Camera, sc Scene) {
	for _, tok := range visibleTokens(sc.Tokens, sc.ShowGMLayer) {
		r.drawToken(dst, cam, sc, tok)
	}
}

func (r *Renderer) drawToken(dst *ebiten.Image, cam Camera, sc Scene, tok protocol.Token) {
	scale := tok.Scale
	if scale == 0 {
		scale = 1.0
	}
	size := r.GridSize * scale
	cx, cy := cam.WorldToScreen(tok.X+size/2, tok.Y+size/2)
	radius := size / 2 * cam.Zoom
	isGMLayer := tok.Layer == protocol.LayerGM

	dragColor, dragName, dragging := dragStateFor(tok.ID, sc)

	alpha := 1.0
	if isGMLayer {
		alpha = 0.5
	}

	// Drag glow: a soft halo behind the disc stands in for a shadow blur.
	if dragging {
		halo := parseHexColor(dragColor, gmOutlineColor)
		halo.A = uint8(90 * alpha)
		vector.DrawFilledCircle(dst, float32(cx), float32(cy), float32(radius+6), halo, true)
	}

	base := tokenBaseColor
	base.A = uint8(255 * alpha)
	vector.DrawFilledCircle(dst, float32(cx), float32(cy), float32(radius), base, true)

	outline := outlineColor
	outlineW := float32(2)
	switch {
	case dragging:
		outline = parseHexColor(dragColor, gmOutlineColor)
		outlineW = 4
	case isGMLayer:
		outline = gmOutlineColor
	}
	outline.A = uint8(255 * alpha)
	vector.StrokeCircle(dst, float32(cx), float32(cy), float32(radius), outlineW, outline, true)

	if img := r.avatarFor(tok); img != nil {
		r.drawAvatar(dst, img, cx, cy, radius, tok.Rotation, alpha)
	} else {
		initials := tokenInitials(tok)
		r.drawCenteredText(dst, initials, cx, cy, white, alpha)
	}

	// Name and stats below the disc; both counter-rotate, so in screen
	// space they are simply unrotated.
	if name := tokenName(tok); name != "" {
		r.drawCenteredText(dst, name, cx, cy+radius+12, white, alpha)
		if stats := statsLabel(tok, sc.IsGM, sc.CurrentUserID); stats != "" {
			r.drawCenteredText(dst, stats, cx, cy+radius+24, white, alpha)
		}
	}

	if dragging && dragName != "" {
		r.drawPill(dst, dragName, cx, cy-radius-20, parseHexColor(dragColor, gmOutlineColor))
	} else if sc.SelectedID == tok.ID {
		ring := selectionColor
		ring.A = uint8(255 * alpha)
		vector.StrokeCircle(dst, float32(cx), float32(cy), float32(radius+3), 3, ring, true)
	}
}

// dragStateFor resolves drag attribution: remote drags win, then the local
// one.
func dragStateFor(tokenID string, sc Scene) (colorHex, name string, dragging bool) {
	if d, ok := sc.RemoteDrags[tokenID]; ok {
		n := d.Name
		if n == "" {
			n = "User"
		}
		return d.Color, n, true
	}
	if sc.LocalDrag != nil && sc.LocalDrag.TokenID == tokenID {
		return sc.LocalDrag.Color, sc.LocalDrag.Name, true
	}
	return "", "", false
}

func (r *Renderer) avatarFor(tok protocol.Token) *ebiten.Image {
	url := tokenAvatarURL(tok)
	if url == "" {
		return nil
	}
	return r.Avatars[url]
}

// drawAvatar clips the image to the token disc. The clip mask is a filled
// circle on a scratch image blended with destination-in.
func (r *Renderer) drawAvatar(dst *ebiten.Image, img *ebiten.Image, cx, cy, radius, rotation, alpha float64) {
	d := int(radius * 2)
	if d <= 0 {
		return
	}
	scratch := ebiten.NewImage(d, d)
	iw, ih := img.Bounds().Dx(), img.Bounds().Dy()

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(-float64(iw)/2, -float64(ih)/2)
	op.GeoM.Rotate(rotation * math.Pi / 180)
	s := float64(d) / math.Max(float64(iw), float64(ih))
	op.GeoM.Scale(s, s)
	op.GeoM.Translate(radius, radius)
	scratch.DrawImage(img, op)

	mask := ebiten.NewImage(d, d)
	vector.DrawFilledCircle(mask, float32(radius), float32(radius-1), float32(radius-1), white, true)
	mop := &ebiten.DrawImageOptions{}
	mop.Blend = ebiten.BlendDestinationIn
	scratch.DrawImage(mask, mop)

	out := &ebiten.DrawImageOptions{}
	out.GeoM.Translate(cx-radius, cy-radius)
	out.ColorScale.ScaleAlpha(float32(alpha))
	dst.DrawImage(scratch, out)
}

func (r *Renderer) drawPath(dst *ebiten.Image, cam Camera, path []protocol.PointF, col color.NRGBA, brush float64) {
	if len(path) < 2 {
		return
	}
	w := float32(brush)
	if w <= 0 {
		w = 4
	}
	for i := 1; i < len(path); i++ {
		x0, y0 := cam.WorldToScreen(path[i-1].X, path[i-1].Y)
		x1, y1 := cam.WorldToScreen(path[i].X, path[i].Y)
		vector.StrokeLine(dst, float32(x0), float32(y0), float32(x1), float32(y1), w, col, true)
		// Round joints.
		vector.DrawFilledCircle(dst, float32(x1), float32(y1), w/2, col, true)
	}
	x0, y0 := cam.WorldToScreen(path[0].X, path[0].Y)
	vector.DrawFilledCircle(dst, float32(x0), float32(y0), w/2, col, true)
}

// pingPhase maps the wall clock onto the expanding-ring animation: one cycle
// every 500ms, radius growing to 80 world units while fading out.
func pingPhase(nowMillis int64) float64 {
	return math.Mod(float64(nowMillis)/500.0, 1.0)
}

func (r *Renderer) drawPings(dst *ebiten.Image, cam Camera, pings []protocol.Ping, nowMillis int64) {
	if len(pings) == 0 {
		return
	}
	t := pingPhase(nowMillis)
	worldRadius := t * 80

	for _, p := range pings {
		cx, cy := cam.WorldToScreen(p.X, p.Y)
		ringR := float32(worldRadius * cam.Zoom)

		outer := white
		outer.A = uint8(255 * (1 - t))
		vector.StrokeCircle(dst, float32(cx), float32(cy), ringR, 3, outer, true)

		inner := white
		inner.A = uint8(255 * (1 - t*0.7))
		vector.StrokeCircle(dst, float32(cx), float32(cy), ringR/2, 3, inner, true)

		vector.DrawFilledCircle(dst, float32(cx), float32(cy), 8, white, true)

		name := p.CharacterName
		if name == "" {
			name = "Ping"
		}
		r.drawCenteredText(dst, name, cx, cy-float64(ringR)-10, white, 1)
	}
}

func (r *Renderer) drawCursors(dst *ebiten.Image, cam Camera, cursors map[string]RemoteCursor) {
	for _, cur := range cursors {
		if cur.X == 0 && cur.Y == 0 {
			continue
		}
		cx, cy := cam.WorldToScreen(cur.X, cur.Y)
		col := parseHexColor(cur.Color, gmOutlineColor)

		// Drop shadow under the dot.
		vector.DrawFilledCircle(dst, float32(cx+1), float32(cy+2), 6, color.NRGBA{0, 0, 0, 128}, true)
		vector.DrawFilledCircle(dst, float32(cx), float32(cy), 6, col, true)

		name := cur.Name
		if name == "" {
			name = "User"
		}
		r.drawPillLeft(dst, name, cx+10, cy, col)
	}
}

// ---------------- text helpers (screen space, zoom-invariant) ----------------

func (r *Renderer) textWidth(s string) float64 {
	return float64(font.MeasureString(r.face, s).Round())
}

// drawCenteredText draws with a dark outline so labels stay readable over
// any background.
func (r *Renderer) drawCenteredText(dst *ebiten.Image, s string, cx, cy float64, col color.NRGBA, alpha float64) {
	w := r.textWidth(s)
	x := int(cx - w/2)
	y := int(cy + 4)

	col.A = uint8(float64(col.A) * alpha)
	shadow := color.NRGBA{0, 0, 0, uint8(220 * alpha)}
	for _, off := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		text.Draw(dst, s, r.face, x+off[0], y+off[1], shadow)
	}
	text.Draw(dst, s, r.face, x, y, col)
}

// drawPill draws a rounded name tag centered above (cx, cy).
func (r *Renderer) drawPill(dst *ebiten.Image, s string, cx, cy float64, col color.NRGBA) {
	w := r.textWidth(s)
	r.pill(dst, cx-w/2-6, cy-10, w, s, col)
}

// drawPillLeft anchors the pill's left edge at (x, cy), as cursor tags hang
// to the right of the dot.
func (r *Renderer) drawPillLeft(dst *ebiten.Image, s string, x, cy float64, col color.NRGBA) {
	r.pill(dst, x, cy-10, r.textWidth(s), s, col)
}

func (r *Renderer) pill(dst *ebiten.Image, x, y, textW float64, s string, col color.NRGBA) {
	const pad, h, rad = 6.0, 20.0, 6.0
	w := textW + pad*2

	vector.DrawFilledRect(dst, float32(x+rad), float32(y), float32(w-2*rad), float32(h), col, true)
	vector.DrawFilledRect(dst, float32(x), float32(y+rad), float32(w), float32(h-2*rad), col, true)
	for _, c := range [][2]float64{{x + rad, y + rad}, {x + w - rad, y + rad}, {x + rad, y + h - rad}, {x + w - rad, y + h - rad}} {
		vector.DrawFilledCircle(dst, float32(c[0]), float32(c[1]), rad, col, true)
	}
	text.Draw(dst, s, r.face, int(x+pad), int(y+h/2+4), white)
}

// parseHexColor understands #rgb and #rrggbb, falling back on anything else.
func parseHexColor(s string, fallback color.NRGBA) color.NRGBA {
	if len(s) == 0 || s[0] != '#' {
		return fallback
	}
	hex := s[1:]
	var r, g, b uint8
	switch len(hex) {
	case 3:
		r = hexNibble(hex[0]) * 17
		g = hexNibble(hex[1]) * 17
		b = hexNibble(hex[2]) * 17
	case 6:
		r = hexNibble(hex[0])<<4 | hexNibble(hex[1])
		g = hexNibble(hex[2])<<4 | hexNibble(hex[3])
		b = hexNibble(hex[4])<<4 | hexNibble(hex[5])
	default:
		return fallback
	}
	return color.NRGBA{r, g, b, 0xff}
}

func hexNibble(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
