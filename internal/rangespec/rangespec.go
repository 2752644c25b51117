// Package rangespec parses the segment-range mini-language accepted by
// submit_run (spec §6): "all", comma-separated integers, and inclusive
// "a-b" spans.
package rangespec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Parse resolves rangeInput against the set of segment indices that
// actually exist in the storyboard. Malformed tokens and reversed ranges
// are silently dropped; only an empty final result is an error.
func Parse(rangeInput string, allIndices []int) ([]int, error) {
	valid := make(map[int]bool, len(allIndices))
	for _, idx := range allIndices {
		valid[idx] = true
	}

	if strings.EqualFold(strings.TrimSpace(rangeInput), "all") {
		return sortedKeys(valid), nil
	}

	selected := make(map[int]bool)
	for _, part := range strings.Split(rangeInput, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			start, end, ok := parseSpan(part)
			if !ok || start > end {
				continue // malformed or reversed: silently dropped
			}
			for i := start; i <= end; i++ {
				selected[i] = true
			}
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			selected[n] = true
		}
	}

	out := make([]int, 0, len(selected))
	for idx := range selected {
		if valid[idx] {
			out = append(out, idx)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("validation_error: no valid segments in range %q", rangeInput)
	}
	sort.Ints(out)
	return out, nil
}

func parseSpan(part string) (start, end int, ok bool) {
	pieces := strings.SplitN(part, "-", 2)
	if len(pieces) != 2 {
		return 0, 0, false
	}
	s, errS := strconv.Atoi(strings.TrimSpace(pieces[0]))
	e, errE := strconv.Atoi(strings.TrimSpace(pieces[1]))
	if errS != nil || errE != nil {
		return 0, 0, false
	}
	return s, e, true
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
