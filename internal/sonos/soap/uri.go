package soap

import "strings"

// URI schemes a player reports in its AVTransport URI.
const (
	RinconPrefix = "x-rincon:"
	HTAStream    = "x-sonos-htastream:"
	spdifSuffix  = ":spdif"
	queuePrefix  = "x-rincon-queue:"
	streamPrefix = "x-rincon-stream:"
)

// FollowedUUID returns the coordinator UUID an x-rincon: URI points at,
// or "" when the player is not following another player. Queue and
// line-in stream URIs share the prefix family but are the player's own
// sources.
func FollowedUUID(uri string) string {
	if strings.HasPrefix(uri, queuePrefix) || strings.HasPrefix(uri, streamPrefix) {
		return ""
	}
	if !strings.HasPrefix(uri, RinconPrefix) {
		return ""
	}
	return strings.TrimPrefix(uri, RinconPrefix)
}

// IsTVInput reports whether uri is a home-theater HDMI/optical source.
func IsTVInput(uri string) bool {
	return strings.HasPrefix(uri, HTAStream) || strings.HasSuffix(uri, spdifSuffix)
}
