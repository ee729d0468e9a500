package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"roombook/pkg/model"
)

// RoomClient talks to the room service.
type RoomClient struct {
	httpClient *HttpClient
}

func NewRoomClient(baseURL string, timeout time.Duration) *RoomClient {
	return &RoomClient{httpClient: NewHttpClient(baseURL, timeout)}
}

func (c *RoomClient) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	resp, err := c.httpClient.GET(ctx, fmt.Sprintf("/rooms/%d", id))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("room %d: %w", id, ErrNotFound)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var room model.Room
	if err := resp.DecodeJSON(&room); err != nil {
		return nil, fmt.Errorf("failed to decode room %d: %w", id, err)
	}
	return &room, nil
}

func (c *RoomClient) SetStatus(ctx context.Context, id int64, status model.RoomStatus) error {
	resp, err := c.httpClient.PATCH(ctx, fmt.Sprintf("/rooms/%d", id), map[string]model.RoomStatus{"status": status})
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("room %d: %w", id, ErrNotFound)
	}
	return resp.Err()
}
