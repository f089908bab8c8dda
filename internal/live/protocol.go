package live

import "github.com/dishly/dishly/internal/interaction"

// Inbound message types.
const (
	TypePlayerMount      = "player.mount"
	TypePlayerUnmount    = "player.unmount"
	TypePlayerState      = "player.state"
	TypePlayerError      = "player.error"
	TypePlayerVisibility = "player.visibility"
	TypeCardMount        = "card.mount"
	TypeCardUnmount      = "card.unmount"
	TypeAction           = "action"
	TypePing             = "ping"
)

// Outbound message types.
const (
	TypePlayerCommand  = "player.command"
	TypePlayerFallback = "player.fallback"
	TypeCardState      = "card.state"
	TypeToast          = "toast"
	TypeSessionExpired = "session.expired"
	TypePong           = "pong"
	TypeError          = "error"
)

// Card kinds.
const (
	CardPost   = "post"
	CardRecipe = "recipe"
)

const (
	EngineStream = "stream"
	EngineNative = "native"

	CommandPlay  = "play"
	CommandPause = "pause"

	ToastSuccess = "success"
	ToastError   = "error"
)

// Inbound is every message a client may send. Fields not used by a type are
// left zero.
type Inbound struct {
	Type string `json:"type"`

	Player   string   `json:"player,omitempty"`
	Autoplay bool     `json:"autoplay,omitempty"`
	Resume   bool     `json:"resume,omitempty"`
	Ratio    *float64 `json:"ratio,omitempty"`
	Playing  bool     `json:"playing,omitempty"`
	Message  string   `json:"message,omitempty"`

	Card      string           `json:"card,omitempty"`
	Kind      string           `json:"kind,omitempty"`
	Entity    string           `json:"entity,omitempty"`
	Author    string           `json:"author,omitempty"`
	Liked     bool             `json:"liked,omitempty"`
	Likes     int              `json:"likes,omitempty"`
	Saved     bool             `json:"saved,omitempty"`
	Hidden    bool             `json:"hidden,omitempty"`
	Following bool             `json:"following,omitempty"`
	Followers int              `json:"followers,omitempty"`
	Action    interaction.Kind `json:"action,omitempty"`
}

// PlayerCommand tells the client to drive one engine of a player.
type PlayerCommand struct {
	Type    string `json:"type"`
	Player  string `json:"player"`
	Engine  string `json:"engine"`
	Command string `json:"command"`
	Muted   bool   `json:"muted"`
}

type PlayerFallback struct {
	Type   string `json:"type"`
	Player string `json:"player"`
}

// CardState is the displayed state of a card. Pending lists the actions
// whose optimistic value is not yet confirmed.
type CardState struct {
	Type      string             `json:"type"`
	Card      string             `json:"card"`
	Liked     bool               `json:"liked"`
	Likes     int                `json:"likes"`
	Saved     bool               `json:"saved"`
	Hidden    bool               `json:"hidden"`
	Following bool               `json:"following"`
	Followers int                `json:"followers"`
	Pending   []interaction.Kind `json:"pending"`
}

type Toast struct {
	Type  string `json:"type"`
	Level string `json:"level"`
	Text  string `json:"text"`
}

// Notice carries the message types without a payload beyond text.
type Notice struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
