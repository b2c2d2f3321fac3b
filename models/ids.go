package models

import (
	"strconv"
	"strings"
)

// IdAllocator hands out numeric string ids above every numeric id it was seeded with.
type IdAllocator struct {
	next int64
}

func NewIdAllocator(idSets ...[]string) *IdAllocator {
	var max int64
	for _, ids := range idSets {
		for _, id := range ids {
			if n, ok := numericId(id); ok && n > max {
				max = n
			}
		}
	}
	return &IdAllocator{next: max + 1}
}

func (a *IdAllocator) Next() string {
	id := strconv.FormatInt(a.next, 10)
	a.next++
	return id
}

func numericId(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// CompareIds orders numeric ids numerically and everything else lexically after them.
func CompareIds(a, b string) int {
	na, okA := numericId(a)
	nb, okB := numericId(b)
	switch {
	case okA && okB:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a, b)
}
