package repositories

import (
	"chatto/domain"
	"fmt"
)

// Key layout. Ids are zero padded so that lexicographic order is numeric order.
const (
	PrefixUser         = "user:id:"
	PrefixUserEmail    = "user:email:"
	PrefixConversation = "chat:id:"
	PrefixDirect       = "chat:direct:"
	PrefixCount        = "chat:count:"
	PrefixLast         = "chat:last:"
	PrefixMemberChat   = "member:chat:"
	PrefixMemberUser   = "member:user:"
	PrefixMessage      = "msg:"
	PrefixSession      = "session:"

	seqUser         = "seq:user"
	seqConversation = "seq:chat"
	seqMessage      = "seq:msg"
)

func userKey(id domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%020d", PrefixUser, id))
}

func userEmailKey(email string) []byte {
	return []byte(PrefixUserEmail + domain.NormalizeEmail(email))
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("%s%020d", PrefixConversation, id))
}

func directKey(a, b domain.UserID) []byte {
	lo, hi := domain.DirectPair(a, b)
	return []byte(fmt.Sprintf("%s%020d:%020d", PrefixDirect, lo, hi))
}

func countKey(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("%s%020d", PrefixCount, id))
}

func lastKey(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("%s%020d", PrefixLast, id))
}

func memberChatPrefix(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("%s%020d:", PrefixMemberChat, id))
}

func memberChatKey(id domain.ConversationID, user domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", PrefixMemberChat, id, user))
}

func memberUserPrefix(user domain.UserID) []byte {
	return []byte(fmt.Sprintf("%s%020d:", PrefixMemberUser, user))
}

func memberUserKey(user domain.UserID, id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", PrefixMemberUser, user, id))
}

func messagePrefix(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("%s%020d:", PrefixMessage, id))
}

// messageKey sorts by creation time, ties broken by message id.
func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%020d:%019d:%020d", PrefixMessage, m.ConversationID, m.CreatedAt.UnixNano(), m.ID))
}
