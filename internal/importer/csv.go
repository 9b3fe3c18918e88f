package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"clubsync/pkg/model"
	"clubsync/pkg/sanitizer"
)

// Row is one parsed CSV line. Cancelled rows carry only the record key.
type Row struct {
	Line      int
	Record    *model.ExternalBookingRecord
	Cancelled bool
}

// RowError describes a line that could not be turned into a record.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Column aliases seen across scheduler export versions, keyed by the
// canonical column name.
var columnAliases = map[string]string{
	"booking_id":     "external_id",
	"external_id":    "external_id",
	"id":             "external_id",
	"player_name":    "occupant_name",
	"occupant_name":  "occupant_name",
	"name":           "occupant_name",
	"email":          "email",
	"player_email":   "email",
	"bay":            "resource_id",
	"bay_id":         "resource_id",
	"resource_id":    "resource_id",
	"date":           "date",
	"booking_date":   "date",
	"start_time":     "start_time",
	"start":          "start_time",
	"end_time":       "end_time",
	"end":            "end_time",
	"player_count":   "declared_count",
	"players":        "declared_count",
	"declared_count": "declared_count",
	"notes":          "notes",
	"status":         "status",
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006"}

var clockLayouts = []string{"15:04", "3:04 PM", "3:04PM", "15:04:05"}

// ParseCSV reads a scheduler export into rows. Malformed lines are collected
// as row errors rather than failing the file; only a missing or unusable
// header aborts the parse.
func ParseCSV(r io.Reader) ([]Row, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int)
	for i, name := range header {
		key := normalizeHeader(name)
		if canonical, ok := columnAliases[key]; ok {
			if _, taken := columns[canonical]; !taken {
				columns[canonical] = i
			}
		}
	}
	for _, required := range []string{"external_id", "resource_id", "date", "start_time"} {
		if _, ok := columns[required]; !ok {
			return nil, nil, fmt.Errorf("CSV header is missing a %s column", required)
		}
	}

	var rows []Row
	var rowErrs []RowError
	line := 1
	for {
		line++
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: err.Error()})
			continue
		}

		row, parseErr := parseRow(line, fields, columns)
		if parseErr != nil {
			rowErrs = append(rowErrs, *parseErr)
			continue
		}
		rows = append(rows, row)
	}

	return rows, rowErrs, nil
}

func parseRow(line int, fields []string, columns map[string]int) (Row, *RowError) {
	get := func(column string) string {
		idx, ok := columns[column]
		if !ok || idx >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[idx])
	}

	externalID := get("external_id")
	if externalID == "" {
		return Row{}, &RowError{Line: line, Reason: "missing booking id"}
	}

	if strings.EqualFold(get("status"), "cancelled") || strings.EqualFold(get("status"), "canceled") {
		return Row{
			Line: line,
			Record: &model.ExternalBookingRecord{
				Source:     model.SourceTrackman,
				ExternalID: externalID,
			},
			Cancelled: true,
		}, nil
	}

	resourceID := get("resource_id")
	if resourceID == "" {
		return Row{}, &RowError{Line: line, Reason: "missing bay"}
	}

	date, err := parseDate(get("date"))
	if err != nil {
		return Row{}, &RowError{Line: line, Reason: err.Error()}
	}
	startTime, err := parseClock(get("start_time"))
	if err != nil {
		return Row{}, &RowError{Line: line, Reason: "start_time: " + err.Error()}
	}

	endTime := ""
	if raw := get("end_time"); raw != "" {
		endTime, err = parseClock(raw)
		if err != nil {
			return Row{}, &RowError{Line: line, Reason: "end_time: " + err.Error()}
		}
	}

	declaredCount := 0
	if raw := get("declared_count"); raw != "" {
		declaredCount, err = strconv.Atoi(raw)
		if err != nil || declaredCount < 1 || declaredCount > 20 {
			return Row{}, &RowError{Line: line, Reason: "player count must be a number between 1 and 20"}
		}
	}

	return Row{
		Line: line,
		Record: &model.ExternalBookingRecord{
			Source:        model.SourceTrackman,
			ExternalID:    externalID,
			OccupantName:  sanitizer.TrimAndNormalize(get("occupant_name")),
			RawEmail:      get("email"),
			ResourceID:    resourceID,
			Date:          date,
			StartTime:     startTime,
			EndTime:       endTime,
			DeclaredCount: declaredCount,
			Notes:         get("notes"),
		},
	}, nil
}

func normalizeHeader(name string) string {
	key := strings.TrimPrefix(name, "\ufeff")
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	for _, layout := range dateLayouts {
		if date, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// parseClock normalizes a wall time to 24-hour HH:MM.
func parseClock(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("missing time")
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(raw)); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", fmt.Errorf("unrecognized time %q", raw)
}
