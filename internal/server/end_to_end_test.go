package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partyboard/internal/domain"
)

type wsFrame struct {
	Type     string           `json:"type"`
	Channel  string           `json:"channel,omitempty"`
	Listings []domain.Listing `json:"listings,omitempty"`
	Message  string           `json:"message,omitempty"`
}

func dialViewer(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWSFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame wsFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

// TestSubmitAndObserveLiveFeed walks the full path: a listing comes in over
// HTTP, a connected viewer sees it on the live feed, a refresh of the same
// listing arrives as a second frame, and the read API still shows a single
// record carrying the original creation time.
func TestSubmitAndObserveLiveFeed(t *testing.T) {
	store := newMemStore()
	s := newTestServer(t, store, nil)

	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	conn := dialViewer(t, ts)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "listings"}))
	ack := readWSFrame(t, conn)
	require.Equal(t, "subscribed", ack.Type)
	require.Equal(t, "listings", ack.Channel)

	// The forwarder subscribes to the bus asynchronously after the ack.
	deadline := time.Now().Add(2 * time.Second)
	for s.bus.SubscriberCount() == 0 {
		require.True(t, time.Now().Before(deadline), "forwarder never attached to the bus")
		time.Sleep(2 * time.Millisecond)
	}

	body := `{"id":1,"last_server_restart":10,"created_world":1,"home_world":1,"current_world":1,"seconds_remaining":100,"search_area":1}`
	resp, err := http.Post(ts.URL+"/contribute", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frame := readWSFrame(t, conn)
	require.Equal(t, "listings", frame.Type)
	require.Len(t, frame.Listings, 1)
	assert.Equal(t, uint32(1), frame.Listings[0].ID)

	var firstCreatedAt time.Time
	for _, rec := range store.records {
		firstCreatedAt = rec.createdAt
	}
	require.False(t, firstCreatedAt.IsZero())

	// Same key again: refreshes the record and produces another frame.
	time.Sleep(10 * time.Millisecond)
	resp, err = http.Post(ts.URL+"/contribute", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frame = readWSFrame(t, conn)
	require.Equal(t, "listings", frame.Type)
	require.Len(t, frame.Listings, 1)

	require.Len(t, store.records, 1, "same key must update in place")
	for _, rec := range store.records {
		assert.Equal(t, firstCreatedAt, rec.createdAt, "refresh must not touch creation time")
		assert.True(t, rec.updatedAt.After(rec.createdAt))
	}

	listResp, err := http.Get(ts.URL + "/api/listings")
	require.NoError(t, err)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var results []domain.QueriedListing
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].Listing.ID)
	assert.InDelta(t, 100, results[0].TimeLeft, 5)
}

// TestRejectedListingNeverReachesViewer pins the gate in front of the feed.
func TestRejectedListingNeverReachesViewer(t *testing.T) {
	store := newMemStore()
	s := newTestServer(t, store, nil)

	ts := httptest.NewServer(s.echo)
	defer ts.Close()

	conn := dialViewer(t, ts)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "listings"}))
	require.Equal(t, "subscribed", readWSFrame(t, conn).Type)

	deadline := time.Now().Add(2 * time.Second)
	for s.bus.SubscriberCount() == 0 {
		require.True(t, time.Now().Before(deadline))
		time.Sleep(2 * time.Millisecond)
	}

	body := `{"id":9,"last_server_restart":10,"created_world":1,"seconds_remaining":9999,"search_area":1}`
	resp, err := http.Post(ts.URL+"/contribute", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(250*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "nothing should arrive for a rejected listing")
}
