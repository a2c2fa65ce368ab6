package protocol

import "encoding/json"

// Envelope
type MsgEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Change feed event kinds. A change message carries the old and/or new row
// image, matching what the store committed.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

type PointF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Token layers. GM-layer tokens are hidden from players.
const (
	LayerPlayer = "player"
	LayerGM     = "gm"
)
