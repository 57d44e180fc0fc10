package migrate

import (
	"fmt"
	"io"
	"time"
)

// Summary : outcome of a successful run
type Summary struct {
	JobID         string
	Batches       int
	RowsProcessed int64
	Elapsed       time.Duration
	// Throughput : rows per second
	Throughput float64
	FinishedAt time.Time
}

// Print : human readable summary
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "\n=== Export Summary ===")
	fmt.Fprintf(w, "Job ID: %s\n", s.JobID)
	fmt.Fprintf(w, "Batches: %d\n", s.Batches)
	fmt.Fprintf(w, "Total time: %.2f seconds\n", s.Elapsed.Seconds())
	fmt.Fprintf(w, "Total rows processed: %d\n", s.RowsProcessed)
	fmt.Fprintf(w, "Average processing speed: %.2f rows/second\n", s.Throughput)
	fmt.Fprintf(w, "Finished at: %s\n", s.FinishedAt.Format(time.DateTime))
	fmt.Fprintln(w, "=====================")
}
