package mqtt

import (
	"fmt"
	"strings"
)

// Per-device topic suffixes: {prefix}/{user_id}/{device_id}/{suffix}.
const (
	SuffixLocation = "location" // device -> tracker
	SuffixSession  = "session"  // device -> tracker, {"state":"start"|"stop"}
	SuffixSOS      = "sos"      // device -> tracker, manual SOS
	SuffixCue      = "cue"      // tracker -> device, haptic/audio cue
	SuffixAlert    = "alert"    // tracker -> device, zone alert text
)

// Topics builds and parses device topics under a prefix.
type Topics struct {
	Prefix string
}

// Device returns the topic for one device and suffix.
func (t Topics) Device(userID, deviceID, suffix string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Prefix, userID, deviceID, suffix)
}

// Wildcard matches suffix for every device.
func (t Topics) Wildcard(suffix string) string {
	return fmt.Sprintf("%s/+/+/%s", t.Prefix, suffix)
}

// Parse splits a device topic. ok is false for topics outside the prefix
// or with the wrong shape.
func (t Topics) Parse(topic string) (userID, deviceID, suffix string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/")
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
