package derive

import (
	"fmt"
	"strconv"
	"strings"
)

// NextNumber returns the number following last for the given prefix,
// zero-padded to width digits. An empty last yields the first number.
func NextNumber(prefix, last string, width int) (string, error) {
	if width <= 0 {
		width = 4
	}
	if last == "" {
		return fmt.Sprintf("%s-%0*d", prefix, width, 1), nil
	}
	idx := strings.LastIndex(last, "-")
	if idx < 0 || idx == len(last)-1 {
		return "", fmt.Errorf("malformed number %q", last)
	}
	n, err := strconv.Atoi(last[idx+1:])
	if err != nil {
		return "", fmt.Errorf("malformed number %q: %w", last, err)
	}
	return fmt.Sprintf("%s-%0*d", prefix, width, n+1), nil
}
