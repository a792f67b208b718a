package youtube

import (
	"regexp"
	"time"
)

// Entry is a single video taken from a channel's upload feed.
type Entry struct {
	VideoID      string
	Title        string
	URL          string
	ChannelID    string
	ChannelTitle string
	PublishedAt  time.Time
}

var channelIDPattern = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)

// IsChannelID reports whether s is a canonical YouTube channel identifier.
func IsChannelID(s string) bool {
	return channelIDPattern.MatchString(s)
}
