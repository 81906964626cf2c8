package batch

// Classification summarizes how a signing run went.
type Classification string

const (
	// AllSigned means every invoice in the batch reached SIGNED.
	AllSigned Classification = "ALL_SIGNED"

	// Partial means some invoices signed and some failed.
	Partial Classification = "PARTIAL"

	// NoneSigned means no invoice reached SIGNED.
	NoneSigned Classification = "NONE_SIGNED"
)

// BatchOutcome is derived from the batch after the signing loop completes
// and is never mutated afterwards.
type BatchOutcome struct {
	// Total is the number of invoices in the batch.
	Total int

	// SignedCount is the number of invoices that reached SIGNED.
	SignedCount int

	// FailedLabels lists the labels of failed invoices in batch order.
	FailedLabels []string
}

// newBatchOutcome folds the terminal per-invoice states into a summary.
func newBatchOutcome(b *SigningBatch) *BatchOutcome {
	outcome := &BatchOutcome{Total: len(b.Invoices)}

	for _, inv := range b.Invoices {
		if inv.State() == SessionStateSigned {
			outcome.SignedCount++
			continue
		}
		outcome.FailedLabels = append(outcome.FailedLabels, inv.InvoiceID)
	}

	return outcome
}

// Classify reports whether the run signed everything, something, or nothing.
func (o *BatchOutcome) Classify() Classification {
	switch {
	case len(o.FailedLabels) == 0:
		return AllSigned
	case o.SignedCount == 0:
		return NoneSigned
	default:
		return Partial
	}
}
