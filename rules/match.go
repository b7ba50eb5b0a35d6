package rules

import (
	"sort"

	"github.com/tidwall/match"
)

func globMatch(pattern, subject string) bool {
	if pattern == "" {
		return true
	}
	return match.Match(subject, pattern)
}

// MatchAll returns every enabled rule in snapshot whose capture matches
// method/host/url, ordered by descending Priority; rules of equal Priority
// keep their snapshot order.
func MatchAll(snapshot []CaptureRule, method, host, url string) []CaptureRule {
	matched := make([]CaptureRule, 0, len(snapshot))
	for _, rule := range snapshot {
		if rule.matches(method, host, url) {
			matched = append(matched, rule)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})
	return matched
}

// ScheduleHandlers flattens the enabled handler chains of matched rules and
// stable-sorts them by ExecutionOrder ascending, so ties preserve the
// matched rules' relative (priority) order.
func ScheduleHandlers(matched []CaptureRule) []Handler {
	handlers := make([]Handler, 0)
	for _, rule := range matched {
		handlers = append(handlers, rule.Handlers...)
	}
	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].ExecutionOrder < handlers[j].ExecutionOrder
	})
	return handlers
}
