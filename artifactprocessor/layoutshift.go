package artifactprocessor

import "github.com/wptagent/agent/types"

// mergeLayoutShift applies the layout-shift merge rule: for each
// LayoutShift event on the main frame, accumulate total_layout_shift and
// roll events into 5s/1s-gated windows, tracking the maximum window score
// as CumulativeLayoutShift. Each event appends a LayoutShiftSample.
func mergeLayoutShift(pd types.PageData, events []traceEvent) types.PageData {
	var (
		totalShift     float64
		firstShift     float64
		prevShift      float64
		haveFirst      bool
		curr           float64
		maxWindow      float64
		shiftWindowNum int
	)

	for _, ev := range events {
		if ev.Name != "LayoutShift" {
			continue
		}
		isMain, _ := ev.Args["is_main_frame"].(bool)
		if !isMain {
			continue
		}
		score, ok := numArg(&ev, "score")
		if !ok {
			continue
		}

		t := ev.Timestamp
		if !haveFirst {
			firstShift = t
			prevShift = t
			haveFirst = true
		}

		if t-firstShift > 5000 || t-prevShift > 1000 {
			shiftWindowNum++
			curr = score
			firstShift = t
		} else {
			curr += score
		}
		prevShift = t

		if curr > maxWindow {
			maxWindow = curr
		}
		totalShift += score

		pd.LayoutShifts = append(pd.LayoutShifts, types.LayoutShiftSample{
			Time:            roundMs(t),
			Score:           score,
			CumulativeScore: totalShift,
			WindowScore:     curr,
			ShiftWindowNum:  shiftWindowNum,
		})
	}

	if haveFirst {
		if pd.Fields == nil {
			pd.Fields = map[string]any{}
		}
		pd.Fields["TotalLayoutShift"] = totalShift
		pd.CumulativeLayoutShift = maxWindow
	}

	return pd
}
