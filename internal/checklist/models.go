package checklist

import "time"

// State is one persisted row per (transaction, stage, item key); the store
// enforces uniqueness on the tuple. Auto-checked is derived and overwritten on
// every recomputation; manual-checked is sticky until explicitly toggled.
type State struct {
	TransactionID string
	StageName     string
	ItemKey       string
	ManualChecked bool
	ManualBy      string
	ManualAt      *time.Time
	AutoChecked   bool
	AutoAt        *time.Time
}

// Entry is the merged view returned to callers: catalog item plus persisted
// state. Checked prefers the manual override for display while AutoChecked
// still reflects document reality.
type Entry struct {
	Item          Item
	Checked       bool
	ManualChecked bool
	ManualBy      string
	ManualAt      *time.Time
	AutoChecked   bool
	AutoAt        *time.Time
}
