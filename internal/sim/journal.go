package sim

import (
	"context"
	"errors"

	"github.com/atmx/clearing-engine/internal/model"
	"github.com/atmx/clearing-engine/internal/store"
)

// Journal returns an Observer that appends every fill and the tick summary
// to st.
func Journal(st store.Store) Observer {
	return ObserverFunc(func(ctx context.Context, report model.ClearReport, summary model.TickSummary) error {
		var errs []error
		for _, f := range report.Filled {
			entry := model.NewSettlementEntry(summary.Tick, f, summary.ClearedAt)
			if err := st.RecordFill(ctx, &entry); err != nil {
				errs = append(errs, err)
			}
		}
		if err := st.RecordTick(ctx, &summary); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
}
