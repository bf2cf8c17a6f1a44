package privacy

import (
	"strings"

	"whisperq/internal/constants"
)

// MaskUserID masks a Twitch user id showing only the last few digits
// Example: "141981764" -> "******764"
func MaskUserID(id string) string {
	n := constants.DefaultUserIDMaskLength
	if len(id) <= n {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-n) + id[len(id)-n:]
}

// MaskDisplayName keeps the first character of a login or display name
// Example: "streamer_fan" -> "s***"
func MaskDisplayName(name string) string {
	if name == "" {
		return ""
	}
	r := []rune(name)
	return string(r[0]) + "***"
}
