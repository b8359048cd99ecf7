package repositories

import (
	"fmt"
	"profilebook/domain"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Rows are stored as protobuf wire messages. Field numbers are part of the
// on-disk format and must never be reused.
const (
	messageID        protowire.Number = 1
	messageSender    protowire.Number = 2
	messageReceiver  protowire.Number = 3
	messageContent   protowire.Number = 4
	messageCreatedAt protowire.Number = 5
	notifID          protowire.Number = 1
	notifUserID      protowire.Number = 2
	notifMessage     protowire.Number = 3
	notifIsRead      protowire.Number = 4
	notifCreatedAt   protowire.Number = 5
	userID           protowire.Number = 1
	userEmail        protowire.Number = 2
	userUsername     protowire.Number = 3
	userPasswordHash protowire.Number = 4
	userRoles        protowire.Number = 5
	userCreatedAt    protowire.Number = 6
)

func marshalMessage(m domain.Message) []byte {
	var b []byte
	b = appendVarint(b, messageID, uint64(m.ID))
	b = appendString(b, messageSender, string(m.SenderID))
	b = appendString(b, messageReceiver, string(m.ReceiverID))
	b = appendString(b, messageContent, m.Content)
	b = appendVarint(b, messageCreatedAt, uint64(m.CreatedAt.UnixNano()))
	return b
}

func unmarshalMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch {
		case num == messageID && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			m.ID = domain.MessageID(x)
			return n
		case num == messageSender && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			m.SenderID = domain.SubjectID(s)
			return n
		case num == messageReceiver && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			m.ReceiverID = domain.SubjectID(s)
			return n
		case num == messageContent && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			m.Content = s
			return n
		case num == messageCreatedAt && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			m.CreatedAt = time.Unix(0, int64(x)).UTC()
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, v)
	})
	return m, err
}

func marshalNotification(n domain.Notification) []byte {
	var b []byte
	b = appendVarint(b, notifID, uint64(n.ID))
	b = appendString(b, notifUserID, string(n.UserID))
	b = appendString(b, notifMessage, n.Message)
	b = appendVarint(b, notifIsRead, protowire.EncodeBool(n.IsRead))
	b = appendVarint(b, notifCreatedAt, uint64(n.CreatedAt.UnixNano()))
	return b
}

func unmarshalNotification(b []byte) (domain.Notification, error) {
	var notif domain.Notification
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		switch {
		case num == notifID && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			notif.ID = domain.NotificationID(x)
			return n
		case num == notifUserID && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			notif.UserID = domain.SubjectID(s)
			return n
		case num == notifMessage && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(v)
			notif.Message = s
			return n
		case num == notifIsRead && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			notif.IsRead = protowire.DecodeBool(x)
			return n
		case num == notifCreatedAt && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			notif.CreatedAt = time.Unix(0, int64(x)).UTC()
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, v)
	})
	return notif, err
}

func marshalUser(u User) []byte {
	var b []byte
	b = appendString(b, userID, u.ID)
	b = appendString(b, userEmail, u.Email)
	b = appendString(b, userUsername, u.Username)
	b = appendString(b, userPasswordHash, u.PasswordHash)
	for _, role := range u.Roles {
		b = appendString(b, userRoles, role)
	}
	b = appendVarint(b, userCreatedAt, uint64(u.CreatedAt.UnixNano()))
	return b
}

func unmarshalUser(b []byte) (User, error) {
	var u User
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) int {
		if typ == protowire.BytesType {
			s, n := protowire.ConsumeString(v)
			switch num {
			case userID:
				u.ID = s
			case userEmail:
				u.Email = s
			case userUsername:
				u.Username = s
			case userPasswordHash:
				u.PasswordHash = s
			case userRoles:
				u.Roles = append(u.Roles, s)
			}
			return n
		}
		if num == userCreatedAt && typ == protowire.VarintType {
			x, n := protowire.ConsumeVarint(v)
			u.CreatedAt = time.Unix(0, int64(x)).UTC()
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, v)
	})
	return u, err
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// consumeFields walks a wire message. fn returns the number of bytes consumed
// for the field value, or a negative protowire error code.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m < 0 {
			return fmt.Errorf("decode field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
