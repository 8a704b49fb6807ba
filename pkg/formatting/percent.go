package formatting

import "strconv"

// Percent renders a ratio in [0, 1] as a percentage, e.g. 0.815 -> "81.5%".
func Percent(ratio float64, precision int) string {
	return strconv.FormatFloat(ratio*100, 'f', max(precision, 0), 64) + "%"
}
