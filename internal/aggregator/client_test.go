package aggregator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundercrm/commitment-engine/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.AggregatorConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
	}, srv.Client())
}

func TestInstanceIDFallback(t *testing.T) {
	assert.Equal(t, "ti_1", TriggerInstance{ID: "ti_1", TriggerID: "legacy"}.InstanceID())
	assert.Equal(t, "legacy", TriggerInstance{TriggerID: "legacy"}.InstanceID())
	assert.Equal(t, "", TriggerInstance{}.InstanceID())
}

func TestMessageHeaderCaseInsensitive(t *testing.T) {
	msg := &Message{Payload: &MessagePart{Headers: []Header{
		{Name: "Message-ID", Value: "<abc@mail>"},
		{Name: "From", Value: "Jane <jane@acme.com>"},
	}}}
	assert.Equal(t, "<abc@mail>", msg.Header("message-id"))
	assert.Equal(t, "Jane <jane@acme.com>", msg.Header("FROM"))
	assert.Equal(t, "", msg.Header("To"))
	assert.Equal(t, "", (&Message{}).Header("From"))
}

func TestActiveGmailConnection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "user-1", r.URL.Query().Get("user_id"))
		json.NewEncoder(w).Encode(map[string]any{"items": []Connection{
			{ID: "conn_slack", Toolkit: "slack", Status: "ACTIVE"},
			{ID: "conn_dead", Toolkit: "gmail", Status: "EXPIRED"},
			{ID: "conn_live", Toolkit: "gmail", Status: "ACTIVE"},
		}})
	})

	conn, err := client.ActiveGmailConnection(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, "conn_live", conn.ID)
}

func TestActiveGmailConnectionNone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": []Connection{}})
	})

	conn, err := client.ActiveGmailConnection(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, conn)
}

func TestCreateTrigger(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/triggers", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "GMAIL_EMAIL_SENT_TRIGGER", body["slug"])
		assert.Equal(t, "conn_1", body["connected_account_id"])
		cfg, ok := body["trigger_config"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(1), cfg["interval"])

		json.NewEncoder(w).Encode(TriggerInstance{TriggerID: "ti_sent"})
	})

	inst, err := client.CreateTrigger(context.Background(), "GMAIL_EMAIL_SENT_TRIGGER", "conn_1",
		map[string]any{"interval": 1, "userId": "me"})
	require.NoError(t, err)
	assert.Equal(t, "ti_sent", inst.InstanceID())
}

func TestSearchMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var params SearchParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, []string{"INBOX", "CATEGORY_PRIMARY"}, params.LabelIDs)
		assert.Equal(t, "after:2026/03/07 before:2026/03/10", params.Query)
		assert.Equal(t, 50, params.MaxResults)

		json.NewEncoder(w).Encode(SearchResult{
			Messages:      []Message{{ID: "m1"}, {ID: "m2"}},
			NextPageToken: "tok",
		})
	})

	page, err := client.SearchMessages(context.Background(), SearchParams{
		ConnectionID: "conn_1",
		Query:        "after:2026/03/07 before:2026/03/10",
		LabelIDs:     []string{"INBOX", "CATEGORY_PRIMARY"},
		MaxResults:   50,
	})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "tok", page.NextPageToken)
}

func TestErrorStatusIncludesBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"connection not found"}`, http.StatusNotFound)
	})

	_, err := client.GetMessage(context.Background(), "conn_1", "m1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "connection not found")
}
