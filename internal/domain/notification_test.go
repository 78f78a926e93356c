package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotificationPayloadRestoresVariant(t *testing.T) {
	due := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	original := SLAWarningPayload{
		TicketID:         "t-1",
		TicketNumber:     "TCK-1",
		TicketSubject:    "Printer on fire",
		Priority:         TicketPriorityUrgent,
		WarningType:      SLATimerResponse,
		DueAt:            due,
		MinutesRemaining: 20,
	}
	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var keys map[string]any
	require.NoError(t, json.Unmarshal(raw, &keys))
	assert.Contains(t, keys, "minutes_remaining")
	assert.Contains(t, keys, "warning_type")

	decoded, err := DecodeNotificationPayload(NotificationSLAWarning, raw)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
	assert.Equal(t, NotificationSLAWarning, decoded.NotificationType())
}

func TestDecodeNotificationPayloadRejectsUnknownType(t *testing.T) {
	_, err := DecodeNotificationPayload("mystery", []byte(`{}`))
	assert.Error(t, err)
}

func TestTicketCloneIsDeep(t *testing.T) {
	agent := "agent-1"
	due := time.Now()
	ticket := &Ticket{AssignedAgentID: &agent, ResponseDueAt: &due}

	snapshot := ticket.Clone()
	*ticket.AssignedAgentID = "agent-2"
	ticket.ResponseDueAt = nil

	assert.Equal(t, "agent-1", *snapshot.AssignedAgentID)
	assert.NotNil(t, snapshot.ResponseDueAt)
}
