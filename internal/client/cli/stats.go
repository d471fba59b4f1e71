package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophsky/internal/metrics"
)

// Stats prints the process counters: XRPC calls by NSID and status, session
// refresh outcomes and video upload outcomes.
func (a *App) Stats(ctx context.Context) error {
	if err := metrics.WriteSummary(a.out, a.metrics); err != nil {
		a.log.Error(ctx, "stats failed", "error", err)
		fmt.Fprintln(a.out, describeError(err))
		return err
	}
	return nil
}
