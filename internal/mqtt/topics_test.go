package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "tourguard"}

	assert.Equal(t, "tourguard/u1/d1/location", topics.Device("u1", "d1", SuffixLocation))
	assert.Equal(t, "tourguard/+/+/session", topics.Wildcard(SuffixSession))

	user, device, suffix, ok := topics.Parse("tourguard/u1/d1/sos")
	assert.True(t, ok)
	assert.Equal(t, "u1", user)
	assert.Equal(t, "d1", device)
	assert.Equal(t, SuffixSOS, suffix)

	for _, bad := range []string{
		"other/u1/d1/sos",
		"tourguard/u1/sos",
		"tourguard/u1/d1/sos/extra",
		"tourguard//d1/sos",
		"tourguardx/u1/d1/sos",
	} {
		_, _, _, ok := topics.Parse(bad)
		assert.False(t, ok, bad)
	}
}
