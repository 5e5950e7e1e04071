package adapter

import (
	"regexp"
	"strings"
)

// WellKnownJoinKeys are the message-embedded identifiers adapters should
// attempt to extract per spec §4.2.
var WellKnownJoinKeys = []string{
	"request_id", "trace_id", "session_id", "correlation_id", "span_id",
}

// joinKeyPattern holds one pattern per well-known key, matching the key
// followed by one or more tolerant separators ('=', ':', '-', '_')
// surrounded by optional whitespace, then the value.
var joinKeyPattern = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(WellKnownJoinKeys))
	for _, k := range WellKnownJoinKeys {
		// key\s*[=:_-]+\s*([A-Za-z0-9._-]+)
		m[k] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\s*[=:_-]+\s*([A-Za-z0-9._-]+)`)
	}
	return m
}()

// ExtractJoinKeysFromMessage scans message for well-known join-key patterns
// with tolerant separators (=, :, -, _) and returns whatever it finds.
// Adapters call this to populate LogEvent.JoinKeys from raw log lines
// without requiring the engine to know about any specific key.
func ExtractJoinKeysFromMessage(message string) map[string]string {
	if message == "" {
		return nil
	}
	var found map[string]string
	for key, re := range joinKeyPattern {
		m := re.FindStringSubmatch(message)
		if len(m) == 2 && m[1] != "" {
			if found == nil {
				found = make(map[string]string, len(WellKnownJoinKeys))
			}
			found[key] = m[1]
		}
	}
	return found
}

// ExtractJoinKeysFromLabels copies any well-known join keys present in
// labels into a join-key map, tolerating common label-name variants
// (e.g. "request-id", "Request_ID").
func ExtractJoinKeysFromLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	var found map[string]string
	for _, key := range WellKnownJoinKeys {
		for labelName, v := range labels {
			if v == "" {
				continue
			}
			if normalizeKeyName(labelName) == key {
				if found == nil {
					found = make(map[string]string, len(WellKnownJoinKeys))
				}
				found[key] = v
			}
		}
	}
	return found
}

func normalizeKeyName(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", "_", ".", "_").Replace(s)
	return s
}
