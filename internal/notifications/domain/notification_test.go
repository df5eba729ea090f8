package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationID_Deterministic(t *testing.T) {
	a := NotificationID("class.created", "c-1", "Ana@School.org")
	b := NotificationID("class.created", "c-1", "ana@school.org")
	c := NotificationID("class.created", "c-2", "ana@school.org")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 5, int(a.Version()))
}

func TestNewEmail(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	n := NewEmail("alert.generated", "a-1", "Head@School.org", "Alert", "body", at)

	assert.Equal(t, "head@school.org", n.Recipient)
	assert.Equal(t, ChannelEmail, n.Channel)
	assert.Equal(t, time.UTC, n.CreatedAt.Location())
	assert.Equal(t, NotificationID("alert.generated", "a-1", "head@school.org"), n.ID)
}
