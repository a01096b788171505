package batch

import "fmt"

// Window is a half-open [From, To) slice of the campaign list.
type Window struct {
	From int
	To   int
}

// SplitWindows cuts total items into windows of at most size items.
func SplitWindows(total, size int) ([]Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be greater than zero")
	}
	if total < 0 {
		return nil, fmt.Errorf("total must be non-negative")
	}

	windows := make([]Window, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		windows = append(windows, Window{From: start, To: end})
	}
	return windows, nil
}
