package webhook

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultMaxBodySize     = 1 << 20 // 1 MiB
	DefaultSignatureHeader = "X-Signature"
)

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseMaxBodySize parses sizes like "1MB", "512KB" or "1048576" into bytes.
// An empty string yields DefaultMaxBodySize.
func ParseMaxBodySize(size string) (int64, error) {
	size = strings.ToUpper(strings.TrimSpace(size))
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	mult := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(size, u.suffix) {
			mult = u.mult
			size = strings.TrimSpace(strings.TrimSuffix(size, u.suffix))
			break
		}
	}

	value, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	if value > (1<<62)/mult {
		return 0, fmt.Errorf("size too large")
	}
	return value * mult, nil
}
