package artifactprocessor

import (
	"sort"

	"github.com/wptagent/agent/types"
)

// mergeVisualProgress applies the visual-progress merge rule: samples are
// walked in time order accumulating speed_index += (100-last)/100 * dt;
// render is the second sample's time, lastVisualChange tracks every sample,
// and the 85/90/95/99/100 thresholds record the time of first crossing.
func mergeVisualProgress(pd types.PageData, samples []visualProgressSample) types.PageData {
	if len(samples) == 0 {
		return pd
	}

	ordered := append([]visualProgressSample(nil), samples...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Time < ordered[j].Time })

	var speedIndex float64
	var lastTime, lastProgress float64
	thresholds := [...]struct {
		pct   float64
		field *int64
	}{
		{85, &pd.VisualComplete85},
		{90, &pd.VisualComplete90},
		{95, &pd.VisualComplete95},
		{99, &pd.VisualComplete99},
		{100, &pd.VisualComplete},
	}

	for i, sample := range ordered {
		dt := sample.Time - lastTime
		if dt > 0 {
			speedIndex += (100 - lastProgress) / 100 * dt
		}

		if i == 1 {
			pd.Render = roundMs(sample.Time)
		}
		pd.LastVisualChange = roundMs(sample.Time)

		for _, th := range thresholds {
			if *th.field == 0 && sample.Progress >= th.pct {
				*th.field = roundMs(sample.Time)
			}
		}

		lastTime = sample.Time
		lastProgress = sample.Progress
	}

	pd.SpeedIndex = roundMs(speedIndex)
	return pd
}
