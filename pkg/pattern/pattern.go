// Package pattern maps an incoming fact to a coarse incident pattern used
// to pick a remediation runbook.
package pattern

import (
	"strings"

	"github.com/sgunadhya/incident-agent/pkg/fact"
)

// Pattern is the coarse incident classification produced by Detect.
type Pattern string

const (
	CrashLoop Pattern = "crashloop"
	OomKill   Pattern = "oomkill"
	Generic   Pattern = "generic"
)

// Detect classifies f by lowercased substring match on title and tags.
// CrashLoop is checked first, then OomKill; first match wins.
func Detect(f fact.Fact) Pattern {
	if f.Alert == nil {
		return Generic
	}
	title := strings.ToLower(f.Alert.Title)
	tags := make([]string, len(f.Alert.Tags))
	for i, t := range f.Alert.Tags {
		tags[i] = strings.ToLower(t)
	}

	if strings.Contains(title, "crashloop") || anyContains(tags, "crashloop") {
		return CrashLoop
	}
	if strings.Contains(title, "oom") || strings.Contains(title, "out of memory") || anyContains(tags, "oom") {
		return OomKill
	}
	return Generic
}

func anyContains(tags []string, substr string) bool {
	for _, t := range tags {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}
