package parse

import (
	"regexp"
	"strings"
	"time"

	"github.com/gastown-ops/rigwatch/internal/model"
)

var (
	bracketLogRe = regexp.MustCompile(`^\[([^\]]+)\]\s*\[(\w+)\]\s*(.*)$`)
	isoLogRe     = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?)\s+(.*)$`)
)

// ParseLogLine applies the three fallback strategies in order: bracketed
// `[ts] [level] message`, ISO-prefixed `YYYY-MM-DDThh:mm:ssZ message`, and
// finally a keyword-scan level inference over the whole line.
func ParseLogLine(line string, ts time.Time) model.LogEntry {
	entry := model.LogEntry{Timestamp: ts, Message: strings.TrimSpace(line)}

	if m := bracketLogRe.FindStringSubmatch(line); m != nil {
		if t, err := parseAnyTimestamp(m[1]); err == nil {
			entry.Timestamp = t
		}
		entry.Level = normalizeLevel(m[2])
		entry.Message = strings.TrimSpace(m[3])
		return entry
	}

	if m := isoLogRe.FindStringSubmatch(line); m != nil {
		if t, err := parseAnyTimestamp(m[1]); err == nil {
			entry.Timestamp = t
		}
		entry.Message = strings.TrimSpace(m[2])
		entry.Level = inferLevelFromKeywords(entry.Message)
		return entry
	}

	entry.Level = inferLevelFromKeywords(line)
	return entry
}

func parseAnyTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errInvalidTimestamp
}

func normalizeLevel(s string) model.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return model.LevelDebug
	case "warn", "warning":
		return model.LevelWarn
	case "error", "fail", "fatal":
		return model.LevelError
	default:
		return model.LevelInfo
	}
}

func inferLevelFromKeywords(message string) model.LogLevel {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "fail"):
		return model.LevelError
	case strings.Contains(lower, "warn"):
		return model.LevelWarn
	case strings.Contains(lower, "debug"):
		return model.LevelDebug
	default:
		return model.LevelInfo
	}
}

type parseError string

func (e parseError) Error() string { return string(e) }

const errInvalidTimestamp = parseError("invalid timestamp")

// Error-pattern normalizer substitutions, applied in the fixed order the
// spec requires: paths, then hex ids (which subsume most UUIDs), then
// UUIDs, then numbers, timestamps, times, IPs, ports, agent path
// fragments, and finally whitespace collapse + truncation.
var (
	pathRe      = regexp.MustCompile(`(?:/[\w.\-]+){2,}`)
	hexIDRe     = regexp.MustCompile(`\b[0-9a-fA-F]{12,}\b`)
	uuidRe      = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	numberRe    = regexp.MustCompile(`\b\d{4,}\b`)
	isoTsRe     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?`)
	hmsRe       = regexp.MustCompile(`\b\d{2}:\d{2}:\d{2}\b`)
	ipv4Re      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRe      = regexp.MustCompile(`:\d{2,5}\b`)
	agentPathRe = regexp.MustCompile(`\b(?:polecats?|crew|witness|refinery|mayor)/[\w.\-]+\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeErrorPattern reduces a log message to a pattern string suitable
// for online clustering, replacing volatile tokens with stable
// placeholders in a fixed substitution order.
func NormalizeErrorPattern(message string) string {
	s := message
	s = pathRe.ReplaceAllString(s, "<path>")
	s = hexIDRe.ReplaceAllString(s, "<id>")
	s = uuidRe.ReplaceAllString(s, "<uuid>")
	s = numberRe.ReplaceAllString(s, "<num>")
	s = isoTsRe.ReplaceAllString(s, "<timestamp>")
	s = hmsRe.ReplaceAllString(s, "<time>")
	s = ipv4Re.ReplaceAllString(s, "<ip>")
	s = portRe.ReplaceAllString(s, ":<port>")
	s = agentPathRe.ReplaceAllString(s, "<agent>")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
