package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/volguard/pkg/types"
)

func TestClassify(t *testing.T) {
	cfg := Config{ThresholdHigh: 80, ThresholdLow: 40}

	cases := []struct {
		name  string
		entry types.VolumeEntry
		want  types.State
	}{
		{
			name:  "fresh volume with no history is OK",
			entry: types.VolumeEntry{UsePct: 50, History: make([]int, 3)},
			want:  types.StateOK,
		},
		{
			name:  "usage at threshold is HUNGRY",
			entry: types.VolumeEntry{UsePct: 80, History: make([]int, 3)},
			want:  types.StateHungry,
		},
		{
			name:  "usage above threshold is HUNGRY",
			entry: types.VolumeEntry{UsePct: 95, History: make([]int, 3)},
			want:  types.StateHungry,
		},
		{
			name: "full low history is OVER-PROVISIONED",
			entry: types.VolumeEntry{
				UsePct:        30,
				History:       []int{10, 20, 40},
				HistoryFilled: 3,
			},
			want: types.StateOverProvisioned,
		},
		{
			name: "one sample above low threshold keeps it OK",
			entry: types.VolumeEntry{
				UsePct:        30,
				History:       []int{10, 41, 10},
				HistoryFilled: 3,
			},
			want: types.StateOK,
		},
		{
			name: "partially filled history never qualifies as OVER-PROVISIONED",
			entry: types.VolumeEntry{
				UsePct:        10,
				History:       []int{10, 10, 0},
				HistoryFilled: 2,
			},
			want: types.StateOK,
		},
		{
			name: "HUNGRY wins even after a long low streak",
			entry: types.VolumeEntry{
				UsePct:        95,
				History:       []int{10, 10, 10},
				HistoryFilled: 3,
			},
			want: types.StateHungry,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.entry, cfg))
		})
	}
}
