package repositories

import (
	"fmt"
	"strings"
	"time"
)

// RowDescription is a human readable view of one stored row.
type RowDescription struct {
	Type      string
	Namespace string
	EntityID  string
	At        time.Time
	Detail    string
}

// DescribeRow decodes a raw key/value pair of the store for inspection.
// ok is false for keys that are not rows (indexes, sequences).
func DescribeRow(key string, val []byte) (RowDescription, bool) {
	switch {
	case strings.HasPrefix(key, "msg:"):
		m, err := unmarshalMessage(val)
		if err != nil {
			return RowDescription{}, false
		}
		return RowDescription{
			Type:      "MESSAGE",
			Namespace: strings.Split(key, ":")[1],
			EntityID:  fmt.Sprintf("%d", m.ID),
			At:        m.CreatedAt,
			Detail:    fmt.Sprintf("%s -> %s: %s", m.SenderID, m.ReceiverID, m.Content),
		}, true
	case strings.HasPrefix(key, "notif:"):
		n, err := unmarshalNotification(val)
		if err != nil {
			return RowDescription{}, false
		}
		state := "unread"
		if n.IsRead {
			state = "read"
		}
		return RowDescription{
			Type:      "NOTIFICATION",
			Namespace: string(n.UserID),
			EntityID:  fmt.Sprintf("%d", n.ID),
			At:        n.CreatedAt,
			Detail:    fmt.Sprintf("[%s] %s", state, n.Message),
		}, true
	case strings.HasPrefix(key, "user:id:"):
		u, err := unmarshalUser(val)
		if err != nil {
			return RowDescription{}, false
		}
		return RowDescription{
			Type:      "USER",
			Namespace: strings.Join(u.Roles, ","),
			EntityID:  u.ID,
			At:        u.CreatedAt,
			Detail:    fmt.Sprintf("%s <%s>", u.Username, u.Email),
		}, true
	}
	return RowDescription{}, false
}
