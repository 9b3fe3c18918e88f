package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "clubsync/pkg/errors"
	"clubsync/pkg/logger"
)

// BookingClient mutates the club's own reservation records through the
// booking subsystem's API. The engine never owns canonical bookings; it only
// attaches/detaches owners and links external ids. Write failures are
// surfaced, never swallowed: an ignored failure leaves a record half-resolved.
type BookingClient struct {
	http *HttpClient
	log  *logger.Logger
}

func NewBookingClient(log *logger.Logger, baseURL string) *BookingClient {
	return &BookingClient{
		http: NewHttpClient(baseURL),
		log:  log,
	}
}

// LookupBooking finds the canonical booking occupying a resource at a start
// time. Returns an empty id when no booking exists for the slot.
func (c *BookingClient) LookupBooking(ctx context.Context, resourceID string, date time.Time, startTime string) (string, error) {
	q := url.Values{}
	q.Set("resource_id", resourceID)
	q.Set("date", date.Format("2006-01-02"))
	q.Set("start_time", startTime)

	resp, err := c.http.GET(ctx, "/api/v1/bookings/lookup?"+q.Encode())
	if err != nil {
		return "", apperrors.Unavailable("booking service")
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Unavailable("booking service")
	}

	var wrapper struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := resp.DecodeJSON(&wrapper); err != nil {
		return "", apperrors.Internal("Failed to decode booking lookup response", err)
	}

	return wrapper.Data.ID, nil
}

func (c *BookingClient) AttachOwner(ctx context.Context, bookingID, memberEmail string) error {
	body := map[string]string{"member_email": memberEmail}
	resp, err := c.http.PUT(ctx, "/api/v1/bookings/"+url.PathEscape(bookingID)+"/owner", body)
	if err != nil {
		return apperrors.Unavailable("booking service")
	}
	return c.checkWriteStatus(resp, bookingID, "attach owner")
}

func (c *BookingClient) DetachOwner(ctx context.Context, bookingID string) error {
	resp, err := c.http.DELETE(ctx, "/api/v1/bookings/"+url.PathEscape(bookingID)+"/owner")
	if err != nil {
		return apperrors.Unavailable("booking service")
	}
	return c.checkWriteStatus(resp, bookingID, "detach owner")
}

// SetTrackmanID links or clears (nil) the external record id on a booking.
func (c *BookingClient) SetTrackmanID(ctx context.Context, bookingID string, externalID *string) error {
	body := map[string]*string{"trackman_id": externalID}
	resp, err := c.http.PUT(ctx, "/api/v1/bookings/"+url.PathEscape(bookingID)+"/trackman-id", body)
	if err != nil {
		return apperrors.Unavailable("booking service")
	}
	return c.checkWriteStatus(resp, bookingID, "set trackman id")
}

func (c *BookingClient) checkWriteStatus(resp *Response, bookingID, operation string) error {
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFoundWithID("Booking", bookingID)
	case resp.StatusCode == http.StatusConflict:
		return apperrors.Conflict(fmt.Sprintf("Booking %s rejected %s: %s", bookingID, operation, GetErrorMessage(resp)))
	default:
		c.log.Error("Booking write failed",
			"booking_id", bookingID,
			"operation", operation,
			"status", resp.StatusCode,
		)
		return apperrors.Unavailable("booking service")
	}
}
