//go:build integration

package bookings_test

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"roombook/pkg/client"
	"roombook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These run against a live bookings service with room and user services
// behind it. Users 1000-1009, 2001 and 2002 must exist in the user service:
//
//	TEST_SERVER_URL=http://localhost:8080 TEST_ROOM_ID=1 go test -tags integration ./internal/bookings/
func setup(t *testing.T) (*client.BookingClient, int64) {
	t.Helper()

	serverURL := os.Getenv("TEST_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	roomID, err := strconv.ParseInt(os.Getenv("TEST_ROOM_ID"), 10, 64)
	if err != nil || roomID <= 0 {
		t.Skip("TEST_ROOM_ID not set")
	}
	return client.NewBookingClient(serverURL, 10*time.Second), roomID
}

// stay picks a distinct interval per run so reruns do not collide with the
// bookings a previous run left behind.
func stay(offsetDays int) (string, string) {
	base := time.Now().UTC().AddDate(1, 0, offsetDays+int(time.Now().Unix()%300))
	return base.Format("2006-01-02"), base.AddDate(0, 0, 2).Format("2006-01-02")
}

func TestConcurrentCreatesBookOnce(t *testing.T) {
	api, roomID := setup(t)
	checkIn, checkOut := stay(0)

	const callers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			resp, err := api.AsUser(userID).Create(context.Background(), model.BookingRequest{
				RoomID:        roomID,
				CheckIn:       checkIn,
				CheckOut:      checkOut,
				Guests:        2,
				PaymentMethod: model.PaymentCard,
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			statuses[resp.StatusCode]++
			mu.Unlock()
		}(int64(1000 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, statuses[http.StatusCreated], "statuses: %v", statuses)
	assert.Equal(t, callers-1, statuses[http.StatusConflict], "statuses: %v", statuses)
}

func TestBookingLifecycle(t *testing.T) {
	api, roomID := setup(t)
	guest := api.AsUser(2001)
	admin := api.AsAdmin(1)
	checkIn, checkOut := stay(10)

	resp, err := guest.Create(context.Background(), model.BookingRequest{
		RoomID:        roomID,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		Guests:        1,
		PaymentMethod: model.PaymentTransfer,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(resp.Body))

	var created struct {
		Data model.Booking `json:"data"`
	}
	require.NoError(t, resp.DecodeJSON(&created))
	assert.Equal(t, model.StatusPending, created.Data.Status)

	resp, err = api.AsUser(2002).GetByID(context.Background(), created.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = admin.SetStatus(context.Background(), created.Data.ID, model.StatusUpdateRequest{Status: model.StatusConfirmed})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.Body))

	resp, err = guest.Cancel(context.Background(), created.Data.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(resp.Body))

	resp, err = guest.Cancel(context.Background(), created.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
