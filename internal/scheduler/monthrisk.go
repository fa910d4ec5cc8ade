package scheduler

import "paydays/internal/core"

// RiskFlags are the month-level adjustments looked up for a bill's due month.
type RiskFlags struct {
	IsCritical  bool
	IsLowIncome bool
}

type monthKey struct {
	year  int
	month int
}

// MonthRiskIndex maps (year, month) to its risk flags.
// A nil index answers every lookup with zero flags.
type MonthRiskIndex struct {
	flags map[monthKey]RiskFlags
}

// NewMonthRiskIndex indexes records. When several records share a month the
// first one wins.
func NewMonthRiskIndex(records []core.MonthRisk) *MonthRiskIndex {
	idx := &MonthRiskIndex{flags: make(map[monthKey]RiskFlags, len(records))}
	for _, r := range records {
		k := monthKey{year: r.Year, month: r.Month}
		if _, seen := idx.flags[k]; seen {
			continue
		}
		idx.flags[k] = RiskFlags{IsCritical: r.IsCritical, IsLowIncome: r.IsLowIncome}
	}
	return idx
}

// Lookup returns the flags for the given month, or zero flags when none exist.
func (idx *MonthRiskIndex) Lookup(year, month int) RiskFlags {
	if idx == nil {
		return RiskFlags{}
	}
	return idx.flags[monthKey{year: year, month: month}]
}

// ForDate looks up the month containing d.
func (idx *MonthRiskIndex) ForDate(d core.Date) RiskFlags {
	return idx.Lookup(d.Year(), d.Month())
}

// Len returns the number of distinct months indexed.
func (idx *MonthRiskIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.flags)
}
