package importer

import (
	"strings"
	"testing"
	"time"
)

func TestParseCSV_HeaderAliases(t *testing.T) {
	input := strings.Join([]string{
		"Booking ID,Player Name,Email,Bay,Date,Start Time,End Time,Players,Notes",
		"tm-1,John Smith,jsmith@gmail.com,bay-3,2026-03-14,18:00,19:00,4,birthday",
	}, "\n")

	rows, rowErrs, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV returned error: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("row errors = %v, want none", rowErrs)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}

	record := rows[0].Record
	if record.ExternalID != "tm-1" {
		t.Errorf("external id = %q, want tm-1", record.ExternalID)
	}
	if record.OccupantName != "John Smith" {
		t.Errorf("occupant name = %q, want John Smith", record.OccupantName)
	}
	if record.ResourceID != "bay-3" {
		t.Errorf("resource id = %q, want bay-3", record.ResourceID)
	}
	if !record.Date.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v, want 2026-03-14", record.Date)
	}
	if record.StartTime != "18:00" || record.EndTime != "19:00" {
		t.Errorf("times = (%q, %q), want (18:00, 19:00)", record.StartTime, record.EndTime)
	}
	if record.DeclaredCount != 4 {
		t.Errorf("declared count = %d, want 4", record.DeclaredCount)
	}
}

func TestParseCSV_TwelveHourClockAndUSDate(t *testing.T) {
	input := strings.Join([]string{
		"booking_id,bay_id,date,start_time",
		"tm-2,bay-1,03/14/2026,6:30 PM",
	}, "\n")

	rows, rowErrs, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV returned error: %v", err)
	}
	if len(rowErrs) != 0 || len(rows) != 1 {
		t.Fatalf("rows = %d, errors = %v, want 1 row and no errors", len(rows), rowErrs)
	}
	if rows[0].Record.StartTime != "18:30" {
		t.Errorf("start time = %q, want 18:30", rows[0].Record.StartTime)
	}
	if !rows[0].Record.Date.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v, want 2026-03-14", rows[0].Record.Date)
	}
}

func TestParseCSV_CancelledRowsCarryOnlyTheKey(t *testing.T) {
	input := strings.Join([]string{
		"booking_id,bay_id,date,start_time,status",
		"tm-3,bay-1,2026-03-14,10:00,cancelled",
		"tm-4,bay-1,2026-03-14,11:00,confirmed",
	}, "\n")

	rows, rowErrs, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV returned error: %v", err)
	}
	if len(rowErrs) != 0 || len(rows) != 2 {
		t.Fatalf("rows = %d, errors = %v, want 2 rows and no errors", len(rows), rowErrs)
	}
	if !rows[0].Cancelled {
		t.Error("first row should be cancelled")
	}
	if rows[0].Record.ExternalID != "tm-3" {
		t.Errorf("cancelled external id = %q, want tm-3", rows[0].Record.ExternalID)
	}
	if rows[1].Cancelled {
		t.Error("second row should not be cancelled")
	}
}

func TestParseCSV_MalformedRowsAreCollectedNotFatal(t *testing.T) {
	input := strings.Join([]string{
		"booking_id,bay_id,date,start_time,players",
		",bay-1,2026-03-14,10:00,2",
		"tm-5,bay-1,not-a-date,10:00,2",
		"tm-6,bay-1,2026-03-14,25:99,2",
		"tm-7,bay-1,2026-03-14,10:00,40",
		"tm-8,bay-1,2026-03-14,10:00,2",
	}, "\n")

	rows, rowErrs, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV returned error: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want only the valid tm-8 row", len(rows))
	}
	if len(rowErrs) != 4 {
		t.Errorf("row errors = %d, want 4", len(rowErrs))
	}
	if rows[0].Record.ExternalID != "tm-8" {
		t.Errorf("surviving row = %q, want tm-8", rows[0].Record.ExternalID)
	}
}

func TestParseCSV_MissingRequiredColumnAborts(t *testing.T) {
	input := "booking_id,player_name,email\ntm-1,John,j@x.test"

	_, _, err := ParseCSV(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected an error for a header missing bay/date/time columns")
	}
}

func TestParseCSV_BOMHeader(t *testing.T) {
	input := "\ufeffbooking_id,bay_id,date,start_time\ntm-9,bay-2,2026-03-14,09:00"

	rows, _, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV returned error: %v", err)
	}
	if len(rows) != 1 || rows[0].Record.ExternalID != "tm-9" {
		t.Fatalf("rows = %v, want a single tm-9 row", rows)
	}
}
