package artifactprocessor

import "github.com/wptagent/agent/types"

// mergeUserTiming applies the user-timing merge rule: marks within
// (0, 3_600_000) ms record userTime.<name> (rounded) and mirror into
// userTimes; the maximum start time becomes PageData.UserTime. Measures
// record userTimingMeasure.<name> and append to UserTimingMeasures.
func mergeUserTiming(pd types.PageData, doc timedEventsDoc) types.PageData {
	if pd.Fields == nil {
		pd.Fields = map[string]any{}
	}
	if pd.UserTimes == nil {
		pd.UserTimes = map[string]int64{}
	}

	for _, mark := range doc.Marks {
		if !(mark.StartTime > 0 && mark.StartTime < 3_600_000) {
			continue
		}
		rounded := roundMs(mark.StartTime)
		pd.Fields["userTime."+mark.Name] = rounded
		pd.UserTimes[mark.Name] = rounded
		if rounded > pd.UserTime {
			pd.UserTime = rounded
		}
	}

	for _, measure := range doc.Measures {
		duration := roundMs(measure.Duration)
		pd.Fields["userTimingMeasure."+measure.Name] = duration
		pd.UserTimingMeasures = append(pd.UserTimingMeasures, types.UserTimingMeasure{
			Name:      measure.Name,
			StartTime: roundMs(measure.StartTime),
			Duration:  duration,
		})
	}

	return pd
}

func roundMs(v float64) int64 {
	if v < 0 {
		return int64(v - 0.5)
	}
	return int64(v + 0.5)
}
