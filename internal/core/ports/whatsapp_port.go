package ports

import "context"

// GroupInfo contains information about a WhatsApp group
type GroupInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
	IsAllowed   bool   `json:"is_allowed"`
}

// WhatsAppPort is the WhatsApp turn transport as seen by the admin API
type WhatsAppPort interface {
	// Connect pairs (by QR code on first run) and connects to WhatsApp
	Connect(ctx context.Context) error

	// Disconnect closes the connection to WhatsApp
	Disconnect() error

	// IsConnected checks if the client is connected
	IsConnected() bool

	// Start registers the message handler that turns chat messages into turns
	Start(ctx context.Context) error

	// GetGroups lists the joined groups and whether each is allowed
	GetGroups() ([]GroupInfo, error)

	// UpdateAllowedGroups replaces the groups the bot answers in
	UpdateAllowedGroups(groups []string) error
}
