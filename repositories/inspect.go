package repositories

import (
	"fmt"
	"strings"
)

// Describe names the record stored under key and renders its value for the
// inspection tools. Counters and index entries hold a big endian uint64,
// every other record is CBOR.
func Describe(key string, val []byte) (kind, detail string) {
	switch {
	case strings.HasPrefix(key, PrefixUserEmail):
		return "EMAIL", fmt.Sprintf("user %d", decodeUint64(val))
	case strings.HasPrefix(key, PrefixUser):
		kind = "USER"
	case strings.HasPrefix(key, PrefixDirect):
		return "DIRECT", fmt.Sprintf("chat %d", decodeUint64(val))
	case strings.HasPrefix(key, PrefixCount):
		return "COUNT", fmt.Sprintf("%d", decodeUint64(val))
	case strings.HasPrefix(key, PrefixLast):
		kind = "LAST"
	case strings.HasPrefix(key, PrefixConversation):
		kind = "CHAT"
	case strings.HasPrefix(key, PrefixMemberUser):
		return "MEMBER_OF", fmt.Sprintf("chat %d", decodeUint64(val))
	case strings.HasPrefix(key, PrefixMemberChat):
		kind = "MEMBER"
	case strings.HasPrefix(key, PrefixMessage):
		kind = "MESSAGE"
	case strings.HasPrefix(key, PrefixSession):
		kind = "SESSION"
	case strings.HasPrefix(key, "seq:"):
		return "SEQUENCE", fmt.Sprintf("%d", decodeUint64(val))
	default:
		return "RAW", fmt.Sprintf("%d bytes", len(val))
	}

	diagnostic, err := Diagnose(val)
	if err != nil {
		return kind, "Error: decode failed"
	}
	return kind, diagnostic
}
