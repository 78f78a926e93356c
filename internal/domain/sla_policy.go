package domain

import "time"

// SLATimer names one of the two clocks an SLA policy runs on a ticket.
type SLATimer string

const (
	SLATimerResponse   SLATimer = "response"
	SLATimerResolution SLATimer = "resolution"
)

// SLAPolicy is a response/resolution time budget for one priority level.
// ResponseMinutes and ResolutionMinutes are validated at write time;
// consumers trust ResolutionMinutes >= ResponseMinutes.
type SLAPolicy struct {
	ID                string
	Name              string
	Description       string
	Priority          TicketPriority
	ResponseMinutes   int
	ResolutionMinutes int
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ResponseTime returns the response budget as a duration.
func (p *SLAPolicy) ResponseTime() time.Duration {
	return time.Duration(p.ResponseMinutes) * time.Minute
}

// ResolutionTime returns the resolution budget as a duration.
func (p *SLAPolicy) ResolutionTime() time.Duration {
	return time.Duration(p.ResolutionMinutes) * time.Minute
}
