package scapeid

import "strings"

// Track is the canonical name of the track environment scape.
const Track = "track"

// Normalize canonicalizes scape names and their aliases.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	candidate := strings.Trim(strings.TrimPrefix(normalized, "scape-"), "-")
	candidate = strings.TrimSuffix(candidate, "-env")
	if canonical, ok := canonicalScapeName(candidate); ok {
		return canonical
	}
	return normalized
}

func canonicalScapeName(alias string) (string, bool) {
	switch strings.ReplaceAll(alias, "-", "") {
	case "track", "trackgym", "roller", "rollerball", "rolleragent", "racetrack":
		return Track, true
	default:
		return "", false
	}
}
