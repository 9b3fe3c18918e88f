package integration

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"clubsync/pkg/model"
	"clubsync/test/integration/testutil"
)

// The suite runs against a deployed reconcile service; point TEST_SERVER_URL
// at it (tests skip when unset). External directory and booking services may
// be absent, so assertions stick to behavior that degrades gracefully.

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, time.Now().UnixNano(), rand.Intn(10000))
}

func webhookEvent(eventType, externalID, playerName, email string) map[string]any {
	return map[string]any{
		"event_id":   uniqueID("evt"),
		"event_type": eventType,
		"data": map[string]any{
			"booking_id":   externalID,
			"player_name":  playerName,
			"email":        email,
			"bay_id":       "bay-3",
			"date":         time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02"),
			"start_time":   "18:00",
			"end_time":     "19:00",
			"player_count": 4,
		},
	}
}

func decodeRecord(t *testing.T, resp *testutil.Response) *model.ExternalBookingRecord {
	t.Helper()
	var result struct {
		Data struct {
			Record model.ExternalBookingRecord `json:"record"`
		} `json:"data"`
	}
	if err := resp.DecodeJSON(&result); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	return &result.Data.Record
}

func decodeOutcome(t *testing.T, resp *testutil.Response) string {
	t.Helper()
	var result struct {
		Data struct {
			Outcome string `json:"outcome"`
		} `json:"data"`
	}
	if err := resp.DecodeJSON(&result); err != nil {
		t.Fatalf("failed to decode outcome: %v", err)
	}
	return result.Data.Outcome
}

func TestWebhookIngestLandsInReviewQueue(t *testing.T) {
	client := testutil.NewClient(t)
	externalID := uniqueID("tm")
	email := uniqueID("nobody") + "@example.test"

	resp := client.POST(t, "/webhooks/trackman", webhookEvent("booking.created", externalID, "Nobody Particular", email))
	testutil.AssertStatusCode(t, resp, 200)
	if outcome := decodeOutcome(t, resp); outcome != "unmatched" {
		t.Fatalf("expected outcome unmatched for unknown email, got %q", outcome)
	}
	record := decodeRecord(t, resp)
	if record.Status != model.StatusUnresolved {
		t.Errorf("expected status %q, got %q", model.StatusUnresolved, record.Status)
	}

	listResp := client.GET(t, "/api/v1/unmatched?limit=10&offset=0&search="+email)
	testutil.AssertStatusCode(t, listResp, 200)
	testutil.AssertContains(t, listResp, externalID)

	// Replaying the same event changes nothing; the record is still parked.
	replay := client.POST(t, "/webhooks/trackman", webhookEvent("booking.updated", externalID, "Nobody Particular", email))
	testutil.AssertStatusCode(t, replay, 200)
	if outcome := decodeOutcome(t, replay); outcome != "unmatched" {
		t.Errorf("expected replay outcome unmatched, got %q", outcome)
	}
}

func TestWebhookCancellationSupersedes(t *testing.T) {
	client := testutil.NewClient(t)
	externalID := uniqueID("tm")
	email := uniqueID("ghost") + "@example.test"

	create := client.POST(t, "/webhooks/trackman", webhookEvent("booking.created", externalID, "Ghost Player", email))
	testutil.AssertStatusCode(t, create, 200)

	cancel := client.POST(t, "/webhooks/trackman", webhookEvent("booking.cancelled", externalID, "", ""))
	testutil.AssertStatusCode(t, cancel, 200)
	if outcome := decodeOutcome(t, cancel); outcome != "superseded" {
		t.Fatalf("expected outcome superseded, got %q", outcome)
	}

	// Replay is a no-op, and an unknown id is acknowledged without an error.
	replay := client.POST(t, "/webhooks/trackman", webhookEvent("booking.cancelled", externalID, "", ""))
	testutil.AssertStatusCode(t, replay, 200)

	unknown := client.POST(t, "/webhooks/trackman", webhookEvent("booking.cancelled", uniqueID("tm-missing"), "", ""))
	testutil.AssertStatusCode(t, unknown, 200)
	if outcome := decodeOutcome(t, unknown); outcome != "ignored" {
		t.Errorf("expected outcome ignored for unknown record, got %q", outcome)
	}
}

func TestLinkedEmailLedgerDrivesIngestion(t *testing.T) {
	client := testutil.NewClient(t)
	alternate := uniqueID("alt") + "@example.test"
	canonical := uniqueID("member") + "@club.test"

	linkResp := client.POST(t, "/api/v1/linked-emails", map[string]string{
		"alternate_email": alternate,
		"canonical_email": canonical,
	})
	testutil.AssertStatusCode(t, linkResp, 201)

	listResp := client.GET(t, "/api/v1/linked-emails?limit=100&offset=0")
	testutil.AssertStatusCode(t, listResp, 200)
	testutil.AssertContains(t, listResp, alternate)

	// A record carrying the alternate email resolves through the ledger
	// without consulting the directory.
	externalID := uniqueID("tm")
	ingest := client.POST(t, "/webhooks/trackman", webhookEvent("booking.created", externalID, "Linked Player", alternate))
	testutil.AssertStatusCode(t, ingest, 200)
	if outcome := decodeOutcome(t, ingest); outcome != "linked" {
		t.Fatalf("expected outcome linked via alias, got %q", outcome)
	}
	record := decodeRecord(t, ingest)
	if record.ResolvedEmail != canonical {
		t.Errorf("expected resolved email %q, got %q", canonical, record.ResolvedEmail)
	}

	// Re-ingesting never reopens the resolved record.
	replay := client.POST(t, "/webhooks/trackman", webhookEvent("booking.updated", externalID, "Linked Player", alternate))
	testutil.AssertStatusCode(t, replay, 200)
	if outcome := decodeOutcome(t, replay); outcome != "skipped" {
		t.Errorf("expected replay outcome skipped, got %q", outcome)
	}

	deleteResp := client.DELETE(t, "/api/v1/linked-emails/"+alternate)
	testutil.AssertStatusCode(t, deleteResp, 204)
}

func TestSlotLifecycle(t *testing.T) {
	client := testutil.NewClient(t)
	bookingID := uniqueID("booking")

	info := client.GET(t, "/api/v1/bookings/"+bookingID+"/slots")
	testutil.AssertStatusCode(t, info, 200)

	attach := client.POST(t, "/api/v1/bookings/"+bookingID+"/slots", map[string]string{
		"guest_name": "Walk In",
		"added_by":   "staff-integration",
	})
	testutil.AssertStatusCode(t, attach, 201)

	var created struct {
		Data struct {
			Assignment model.OccupantAssignment `json:"assignment"`
			Slots      model.SlotInfo           `json:"slot_info"`
		} `json:"data"`
	}
	if err := attach.DecodeJSON(&created); err != nil {
		t.Fatalf("failed to decode attach response: %v", err)
	}
	if created.Data.Slots.FilledSlots != 1 {
		t.Errorf("expected 1 filled slot, got %d", created.Data.Slots.FilledSlots)
	}

	// The same occupant cannot hold two slots.
	duplicate := client.POST(t, "/api/v1/bookings/"+bookingID+"/slots", map[string]string{
		"guest_name": "Walk In",
		"added_by":   "staff-integration",
	})
	testutil.AssertStatusCode(t, duplicate, 409)

	detach := client.DELETE(t, "/api/v1/bookings/"+bookingID+"/slots/"+created.Data.Assignment.OccupantKey)
	testutil.AssertStatusCode(t, detach, 204)

	detachAgain := client.DELETE(t, "/api/v1/bookings/"+bookingID+"/slots/"+created.Data.Assignment.OccupantKey)
	testutil.AssertStatusCode(t, detachAgain, 404)
}

func TestImportUploadIsIdempotent(t *testing.T) {
	client := testutil.NewClient(t)

	id1 := uniqueID("tm")
	id2 := uniqueID("tm")
	email := uniqueID("import") + "@example.test"
	date := time.Now().UTC().AddDate(0, 0, 14).Format("2006-01-02")
	csv := fmt.Sprintf(
		"booking_id,player_name,email,bay,date,start_time,end_time,players\n"+
			"%s,Import One,%s,bay-1,%s,09:00,10:00,2\n"+
			"%s,Import Two,%s,bay-2,%s,10:00,11:00,4\n",
		id1, email, date,
		id2, email, date,
	)

	first := client.UploadCSV(t, "/api/v1/imports/upload", "integration.csv", csv, map[string]string{
		"imported_by": "staff-integration",
	})
	testutil.AssertStatusCode(t, first, 201)

	var firstRun struct {
		Data model.ImportRun `json:"data"`
	}
	if err := first.DecodeJSON(&firstRun); err != nil {
		t.Fatalf("failed to decode import run: %v", err)
	}
	if firstRun.Data.Summary.Total != 2 {
		t.Errorf("expected total 2, got %d", firstRun.Data.Summary.Total)
	}

	second := client.UploadCSV(t, "/api/v1/imports/upload", "integration.csv", csv, map[string]string{
		"imported_by": "staff-integration",
	})
	testutil.AssertStatusCode(t, second, 201)

	var secondRun struct {
		Data model.ImportRun `json:"data"`
	}
	if err := second.DecodeJSON(&secondRun); err != nil {
		t.Fatalf("failed to decode import run: %v", err)
	}
	if secondRun.Data.Summary.Matched != firstRun.Data.Summary.Matched ||
		secondRun.Data.Summary.Unmatched != firstRun.Data.Summary.Unmatched {
		t.Errorf("expected identical composition across runs, got (%d,%d) then (%d,%d)",
			firstRun.Data.Summary.Matched, firstRun.Data.Summary.Unmatched,
			secondRun.Data.Summary.Matched, secondRun.Data.Summary.Unmatched)
	}

	runsResp := client.GET(t, "/api/v1/import-runs?limit=10&offset=0")
	testutil.AssertStatusCode(t, runsResp, 200)
	testutil.AssertContains(t, runsResp, firstRun.Data.ID)

	runResp := client.GET(t, "/api/v1/import-runs/"+firstRun.Data.ID)
	testutil.AssertStatusCode(t, runResp, 200)
}
