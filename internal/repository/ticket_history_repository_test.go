package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func TestChangeTypeArgs(t *testing.T) {
	assert.Nil(t, changeTypeArgs(nil))
	assert.Equal(t,
		[]string{"status_change", "sla_breach"},
		changeTypeArgs([]domain.TicketChangeType{domain.ChangeTypeStatus, domain.ChangeTypeSLABreach}))
}
