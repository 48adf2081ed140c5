package domain

import "fmt"

type RoomKind uint8

const (
	ConversationRoomKind RoomKind = iota + 1
	UserRoomKind
)

func (k RoomKind) String() string {
	switch k {
	case ConversationRoomKind:
		return "conversation"
	case UserRoomKind:
		return "user"
	default:
		return "unknown"
	}
}

// Room is a runtime broadcast group. The kind tag keeps conversation and
// user namespaces apart even when their ids coincide.
type Room struct {
	Kind RoomKind
	ID   int64
}

func ConversationRoom(id ConversationID) Room {
	return Room{Kind: ConversationRoomKind, ID: int64(id)}
}

func UserRoom(id UserID) Room {
	return Room{Kind: UserRoomKind, ID: int64(id)}
}

func (r Room) IsConversation() bool { return r.Kind == ConversationRoomKind }

func (r Room) IsUser() bool { return r.Kind == UserRoomKind }

// ConversationID is only meaningful when IsConversation is true.
func (r Room) ConversationID() ConversationID { return ConversationID(r.ID) }

func (r Room) UserID() UserID { return UserID(r.ID) }

func (r Room) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}
