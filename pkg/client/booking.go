package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"roombook/pkg/model"
)

const (
	HeaderUserID  = "X-User-ID"
	HeaderAdminID = "X-Admin-ID"
)

// BookingClient drives the booking API on behalf of one caller.
type BookingClient struct {
	httpClient *HttpClient
	headers    map[string]string
}

func NewBookingClient(baseURL string, timeout time.Duration) *BookingClient {
	return &BookingClient{
		httpClient: NewHttpClient(baseURL, timeout),
		headers:    map[string]string{},
	}
}

// AsUser returns a copy of the client that identifies as the given user.
func (c *BookingClient) AsUser(userID int64) *BookingClient {
	return c.with(HeaderUserID, strconv.FormatInt(userID, 10))
}

// AsAdmin returns a copy of the client that identifies as the given admin.
func (c *BookingClient) AsAdmin(adminID int64) *BookingClient {
	return c.with(HeaderAdminID, strconv.FormatInt(adminID, 10))
}

func (c *BookingClient) with(key, value string) *BookingClient {
	headers := make(map[string]string, len(c.headers)+1)
	for k, v := range c.headers {
		headers[k] = v
	}
	headers[key] = value
	return &BookingClient{httpClient: c.httpClient, headers: headers}
}

func (c *BookingClient) Create(ctx context.Context, req model.BookingRequest) (*Response, error) {
	return c.httpClient.WithHeaders(ctx, http.MethodPost, "/api/v1/bookings", req, c.headers)
}

func (c *BookingClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.WithHeaders(ctx, http.MethodGet, "/api/v1/bookings/"+url.PathEscape(id), nil, c.headers)
}

func (c *BookingClient) Cancel(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.WithHeaders(ctx, http.MethodPut, "/api/v1/bookings/"+url.PathEscape(id)+"/cancel", nil, c.headers)
}

func (c *BookingClient) Modify(ctx context.Context, id string, mod model.BookingModification) (*Response, error) {
	return c.httpClient.WithHeaders(ctx, http.MethodPatch, "/api/v1/bookings/"+url.PathEscape(id), mod, c.headers)
}

func (c *BookingClient) LockStatus(ctx context.Context, roomID int64, checkIn, checkOut string) (*Response, error) {
	q := url.Values{}
	q.Set("roomId", strconv.FormatInt(roomID, 10))
	q.Set("checkIn", checkIn)
	q.Set("checkOut", checkOut)
	return c.httpClient.WithHeaders(ctx, http.MethodGet, "/api/v1/locks/status?"+q.Encode(), nil, c.headers)
}

func (c *BookingClient) SetStatus(ctx context.Context, id string, req model.StatusUpdateRequest) (*Response, error) {
	return c.httpClient.WithHeaders(ctx, http.MethodPut, "/api/v1/admin/bookings/"+url.PathEscape(id)+"/status", req, c.headers)
}
