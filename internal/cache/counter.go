package cache

import (
	"fmt"
	"strconv"
)

func parseCounter(v string) (int64, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value is not an integer: %w", err)
	}
	return n, nil
}

func formatCounter(n int64) string { return strconv.FormatInt(n, 10) }
