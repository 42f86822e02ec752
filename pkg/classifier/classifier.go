package classifier

import "github.com/cuemby/volguard/pkg/types"

// Config carries the two thresholds Classify needs. ThresholdLow must be
// strictly less than ThresholdHigh; pkg/config.Validate enforces this at
// startup.
type Config struct {
	ThresholdHigh int
	ThresholdLow  int
}

// Classify derives a volume's state from its most recent sample and its
// history window. A volume whose latest usage is at or above
// ThresholdHigh is HUNGRY regardless of history. Otherwise, if the
// history window is full and every sample in it is at or below
// ThresholdLow, the volume is OVER-PROVISIONED. Anything else is OK.
//
// The threshold check runs first and wins outright: a volume that spiked
// to 95% one tick after eleven straight ticks at 10% is HUNGRY, not
// OVER-PROVISIONED, even though its history still looks idle.
func Classify(entry types.VolumeEntry, cfg Config) types.State {
	if entry.UsePct >= cfg.ThresholdHigh {
		return types.StateHungry
	}

	n := len(entry.History)
	if n == 0 || entry.HistoryFilled < n {
		return types.StateOK
	}

	for _, sample := range entry.History {
		if sample > cfg.ThresholdLow {
			return types.StateOK
		}
	}
	return types.StateOverProvisioned
}
