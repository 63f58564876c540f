// Package datex parses the DATEX II XML feeds published by the DGT:
// measured traffic data (v2 MeasuredDataPublication), traffic incidents
// (v3 SituationPublication) and the CCTV camera site table. The feeds
// are real-time snapshots only; the parsers also expose the structural
// markers used to confirm the absence of historical query capability.
package datex

import (
	"strings"
	"time"
)

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

// Timestamp layouts seen across the DGT feeds. Publication times carry
// a zone offset, per-site measurement times usually do not.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// localType strips the namespace prefix from an xsi:type value, so
// "sit:MaintenanceWorks" and "MaintenanceWorks" compare equal.
func localType(xsiType string) string {
	if i := strings.LastIndex(xsiType, ":"); i >= 0 {
		return xsiType[i+1:]
	}
	return xsiType
}

func trimText(s string) string {
	return strings.TrimSpace(s)
}
