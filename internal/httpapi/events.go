package httpapi

import (
	"encoding/csv"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gastown-ops/rigwatch/internal/model"
)

// exportRow is the flattened shape written by both the JSON and CSV
// encodings of GET /api/events/export, merging the Event Buffer's
// generic events with the State Manager's mail log so a single export
// covers everything the timeline shows.
type exportRow struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Action    string    `json:"action"`
	Preview   string    `json:"preview"`
}

var exportColumns = []string{"timestamp", "type", "source", "from", "to", "subject", "message", "action", "preview"}

func eventToRow(e model.Event) exportRow {
	row := exportRow{Timestamp: e.Timestamp, Type: e.Type}
	raw, ok := e.Payload.(map[string]interface{})
	if !ok {
		return row
	}
	row.Source, _ = raw["source"].(string)
	row.From, _ = raw["from"].(string)
	row.To, _ = raw["to"].(string)
	row.Subject, _ = raw["subject"].(string)
	row.Message, _ = raw["message"].(string)
	row.Action, _ = raw["action"].(string)
	row.Preview, _ = raw["preview"].(string)
	return row
}

func mailToRow(m model.MailEvent) exportRow {
	return exportRow{
		Timestamp: m.Timestamp,
		Type:      "mail",
		Source:    m.Rig,
		From:      m.From,
		To:        m.To,
		Preview:   m.Preview,
	}
}

// handleEventsExport serves GET /api/events/export?format=json|csv&rig=
// &type=&search=: a flattened, filterable dump of every event and mail
// entry within the Event Buffer's current retention window, oldest
// first.
func (s *Server) handleEventsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = "json"
	}
	rigFilter := q.Get("rig")
	typeFilter := q.Get("type")
	search := strings.ToLower(q.Get("search"))

	rows := make([]exportRow, 0)
	if oldest, newest, ok := s.events.GetTimelineBounds(); ok {
		for _, e := range s.events.GetEventsBetween(oldest, newest) {
			rows = append(rows, eventToRow(e))
		}
	}
	for _, m := range s.state.Snapshot().Mail {
		rows = append(rows, mailToRow(m))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })

	filtered := rows[:0]
	for _, row := range rows {
		if rigFilter != "" && row.Source != rigFilter {
			continue
		}
		if typeFilter != "" && row.Type != typeFilter {
			continue
		}
		if search != "" && !rowMatches(row, search) {
			continue
		}
		filtered = append(filtered, row)
	}

	switch format {
	case "csv":
		writeCSVExport(w, filtered)
	case "json":
		writeJSON(w, http.StatusOK, filtered)
	default:
		writeError(w, http.StatusBadRequest, "format must be json or csv")
	}
}

func rowMatches(row exportRow, search string) bool {
	fields := []string{row.Type, row.Source, row.From, row.To, row.Subject, row.Message, row.Action, row.Preview}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func writeCSVExport(w http.ResponseWriter, rows []exportRow) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(exportColumns)
	for _, row := range rows {
		_ = cw.Write([]string{
			row.Timestamp.Format(time.RFC3339),
			row.Type,
			row.Source,
			row.From,
			row.To,
			row.Subject,
			row.Message,
			row.Action,
			row.Preview,
		})
	}
	cw.Flush()
}
