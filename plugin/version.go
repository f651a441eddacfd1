package plugin

import (
	"strconv"
	"strings"
)

// compareVersions compares two dotted numeric versions (major.minor.patch).
// Missing segments count as zero; non-numeric segments compare as zero.
// Returns -1, 0 or 1.
func compareVersions(a, b string) int {
	as := strings.SplitN(strings.TrimPrefix(a, "v"), "-", 2)[0]
	bs := strings.SplitN(strings.TrimPrefix(b, "v"), "-", 2)[0]
	ap := strings.Split(as, ".")
	bp := strings.Split(bs, ".")

	for i := 0; i < 3; i++ {
		av, bv := 0, 0
		if i < len(ap) {
			av, _ = strconv.Atoi(ap[i])
		}
		if i < len(bp) {
			bv, _ = strconv.Atoi(bp[i])
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
	}
	return 0
}
