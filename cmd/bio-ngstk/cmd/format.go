package cmd

import (
	"math"
	"strconv"

	"code.cloudfoundry.org/bytefmt"
)

// formatSize renders a size in gigabytes as the exact value followed by a
// human-readable one, e.g. "1.5\t1.5G".
func formatSize(gb float64) string {
	bytes := uint64(math.Round(gb * (1 << 30)))
	return strconv.FormatFloat(gb, 'f', -1, 64) + "\t" + bytefmt.ByteSize(bytes)
}
