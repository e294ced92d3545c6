package orchestra

import "fmt"

// humanBytes formats n as a human-readable byte size for log lines (§4.2
// "hard engineering" observability texture — bytes_streamed is also a
// Prometheus counter, this is the operator-facing rendering of the same
// number).
func humanBytes(n int64) string {
	const unit = 1024

	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGT"[exp])
}
