package whatsapp

import (
	"fmt"
	"sort"

	"go.mau.fi/whatsmeow/types"

	"github.com/vibin/derma-chat/internal/core/ports"
)

// GetGroups returns the joined groups sorted by name, flagging the ones the
// bot answers in
func (a *WhatsAppAdapter) GetGroups() ([]ports.GroupInfo, error) {
	if !a.IsConnected() {
		return nil, fmt.Errorf("WhatsApp client not connected")
	}

	groups, err := a.client.GetJoinedGroups()
	if err != nil {
		return nil, fmt.Errorf("failed to get groups: %w", err)
	}

	infos := make([]ports.GroupInfo, 0, len(groups))
	for _, group := range groups {
		id := group.JID.String()
		infos = append(infos, ports.GroupInfo{
			ID:          id,
			Name:        groupName(group),
			MemberCount: len(group.Participants),
			IsAllowed:   a.isGroupAllowed(id),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// UpdateAllowedGroups replaces the list of allowed groups
func (a *WhatsAppAdapter) UpdateAllowedGroups(groups []string) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.config.AllowedGroups = append([]string(nil), groups...)
	a.log.Info("Updated allowed WhatsApp groups", "count", len(groups))
	return nil
}

// groupName falls back to the JID user part for unnamed groups
func groupName(group *types.GroupInfo) string {
	if group.Name != "" {
		return group.Name
	}
	return group.JID.User
}
