package notify

import (
	"context"
	"time"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

// StatusChange describes a metric whose status on its selected scale differs
// from the previous measurement's.
type StatusChange struct {
	MetricUUID string       `json:"metric_uuid"`
	MetricName string       `json:"metric_name,omitempty"`
	ReportUUID string       `json:"report_uuid,omitempty"`
	Scale      types.Scale  `json:"scale"`
	Old        types.Status `json:"old_status"`
	New        types.Status `json:"new_status"`
	Value      *string      `json:"value"`
	At         time.Time    `json:"at"`
}

// Notifier receives status changes.
type Notifier interface {
	StatusChanged(ctx context.Context, c StatusChange)
}

// Nop discards every change.
type Nop struct{}

// StatusChanged implements Notifier.
func (Nop) StatusChanged(context.Context, StatusChange) {}
