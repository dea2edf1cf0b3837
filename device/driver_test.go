package device

import (
	"sort"
	"testing"
)

func TestDriverInfoListSorting(t *testing.T) {
	origList := DriverInfoList{
		{Order: DetectOrderStorage},
		{Order: DetectOrderLast},
		{Order: DetectOrderEarly},
	}

	sortedList := append(DriverInfoList(nil), origList...)
	sort.Stable(sortedList)

	expOrder := []int{2, 0, 1}
	for i, exp := range expOrder {
		if sortedList[i] != origList[exp] {
			t.Errorf("expected sorted entry %d to be original entry %d", i, exp)
		}
	}
}
