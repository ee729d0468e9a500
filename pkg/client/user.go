package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"roombook/pkg/model"
)

// UserClient talks to the user directory.
type UserClient struct {
	httpClient *HttpClient
}

func NewUserClient(baseURL string, timeout time.Duration) *UserClient {
	return &UserClient{httpClient: NewHttpClient(baseURL, timeout)}
}

func (c *UserClient) GetUser(ctx context.Context, id int64) (*model.User, error) {
	resp, err := c.httpClient.GET(ctx, fmt.Sprintf("/users/%d", id))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var user model.User
	if err := resp.DecodeJSON(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user %d: %w", id, err)
	}
	if user.TrustLevel == "" {
		user.TrustLevel = model.TrustLow
	}
	return &user, nil
}
