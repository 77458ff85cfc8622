package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueThenConsumeTicket(t *testing.T) {
	ticket, ttl, err := IssueTicket("device-abc")
	require.NoError(t, err)
	assert.Equal(t, ticketTTL, ttl)

	deviceID, err := ConsumeTicket(ticket)
	require.NoError(t, err)
	assert.Equal(t, "device-abc", deviceID)
}

func TestConsumeTicketRejectsReplay(t *testing.T) {
	ticket, _, err := IssueTicket("device-abc")
	require.NoError(t, err)

	_, err = ConsumeTicket(ticket)
	require.NoError(t, err)

	_, err = ConsumeTicket(ticket)
	assert.Error(t, err)
}

func TestConsumeTicketRejectsGarbage(t *testing.T) {
	_, err := ConsumeTicket("not-a-real-token")
	assert.Error(t, err)
}
