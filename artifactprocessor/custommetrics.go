package artifactprocessor

import (
	"regexp"
	"strconv"

	"github.com/wptagent/agent/types"
)

var (
	intPattern   = regexp.MustCompile(`^[0-9]+$`)
	floatPattern = regexp.MustCompile(`^[0-9]*\.[0-9]+$`)
)

// mergeCustomMetrics applies the custom-metrics coercion rule: integer- and
// float-looking strings are coerced to their numeric form, everything else
// is stored raw; every key name is also recorded on PageData.Custom.
func mergeCustomMetrics(pd types.PageData, metrics map[string]string) types.PageData {
	if pd.Fields == nil {
		pd.Fields = map[string]any{}
	}

	for name, raw := range metrics {
		switch {
		case intPattern.MatchString(raw):
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				pd.Fields[name] = n
			} else {
				pd.Fields[name] = raw
			}
		case floatPattern.MatchString(raw):
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				pd.Fields[name] = f
			} else {
				pd.Fields[name] = raw
			}
		default:
			pd.Fields[name] = raw
		}
		pd.Custom = append(pd.Custom, name)
	}

	return pd
}
