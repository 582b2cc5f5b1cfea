package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordSendsEmbeds(t *testing.T) {
	var got []DiscordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var msg DiscordMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		got = append(got, msg)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, srv.URL)
	require.NoError(t, d.Error(context.Background(), "boom"))
	require.NoError(t, d.Success(context.Background(), "3 tasks submitted"))

	require.Len(t, got, 2)
	assert.Equal(t, colorRed, got[0].Embeds[0].Color)
	assert.Contains(t, got[0].Embeds[0].Description, "boom")
	assert.Equal(t, colorGreen, got[1].Embeds[0].Color)
	assert.Equal(t, "3 tasks submitted", got[1].Embeds[0].Description)
}

func TestDiscordSkipsUnconfigured(t *testing.T) {
	d := NewDiscord("", "")
	assert.NoError(t, d.Error(context.Background(), "boom"))

	var nilDiscord *Discord
	assert.NoError(t, nilDiscord.Success(context.Background(), "ok"))
}

func TestDiscordReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscord(srv.URL, "").Error(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
