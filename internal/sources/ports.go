// Package sources defines where scheduling inputs come from and where ranking
// results go back to.
package sources

import (
	"context"

	"paydays/internal/core"
)

// Ports for inbound and outbound adapters.
type (
	BillReader interface {
		// ListBills returns every bill, settled ones included.
		ListBills(ctx context.Context) ([]core.Bill, error)
	}

	PaydayReader interface {
		ListPaydays(ctx context.Context) ([]core.Payday, error)
	}

	MonthRiskReader interface {
		ListMonthRisks(ctx context.Context) ([]core.MonthRisk, error)
	}

	// PriorityWriter stores computed priorities back onto bills.
	PriorityWriter interface {
		UpdatePriorities(ctx context.Context, updates []core.PriorityUpdate) error
	}

	// Source is a backend able to supply every scheduling input.
	Source interface {
		BillReader
		PaydayReader
		MonthRiskReader
	}
)
