package identity

import (
	"net/url"
	"strings"
)

var (
	channelIDPrefix = VideoDomain + "/channel/"
	handlePrefix    = VideoDomain + "/@"
)

// displayPathRunes caps the path shown by DisplayName, counted in characters.
const displayPathRunes = 20

// IsStorageKey reports whether key looks like a record key rather than
// unrelated extension state sharing the store.
func IsStorageKey(key string) bool {
	return strings.HasPrefix(key, "http://") ||
		strings.HasPrefix(key, "https://") ||
		strings.HasPrefix(key, channelIDPrefix) ||
		strings.HasPrefix(key, handlePrefix)
}

// DisplayName is the short label shown for a key in lists and confirmations.
func DisplayName(key string) string {
	switch {
	case strings.HasPrefix(key, channelIDPrefix):
		return "YouTube channel (ID: " + strings.TrimPrefix(key, channelIDPrefix) + ")"
	case strings.HasPrefix(key, handlePrefix):
		return "YouTube channel (" + strings.TrimPrefix(key, VideoDomain+"/") + ")"
	}
	u, err := url.Parse(key)
	if err != nil || u.Host == "" {
		return key
	}
	label := u.Hostname()
	if len(u.Path) > 1 {
		p := []rune(u.Path)
		if len(p) > displayPathRunes {
			p = p[:displayPathRunes]
		}
		label += string(p) + "..."
	}
	return label
}
