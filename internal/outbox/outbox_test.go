package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWireFormatRoundTrip(t *testing.T) {
	frame := encodeWireFormat(513, []byte(`{"activity_id":"a1"}`))
	require.Equal(t, byte(0), frame[0])

	id, payload, err := DecodeWireFormat(frame)
	require.NoError(t, err)
	require.Equal(t, 513, id)
	require.JSONEq(t, `{"activity_id":"a1"}`, string(payload))

	_, _, err = DecodeWireFormat([]byte(`{}`))
	require.Error(t, err)
}

func TestDLQBackoffDelay(t *testing.T) {
	m := NewDLQManager(nil, 0, 0)
	require.Equal(t, 5, m.maxRetries)
	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 4*time.Minute, m.backoffDelay(3))
	require.Equal(t, time.Hour, m.backoffDelay(10))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}

func TestSchemaCatalogCoversLifecycleEvents(t *testing.T) {
	for eventType, entry := range schemaCatalog {
		require.Truef(t, json.Valid([]byte(entry.Schema)), "schema for %s", eventType)
	}
	require.Len(t, schemaCatalog, 3)
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/activity_started-value/versions/latest":
			if !registered {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(`{"id":11}`))
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/activity_started-value/versions":
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["schemaType"] != "JSON" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			registered = true
			_, _ = w.Write([]byte(`{"id":11}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")
	id, err := client.EnsureSchema(context.Background(), "activity_started-value", activityStartedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.True(t, registered)

	id, err = client.EnsureSchema(context.Background(), "activity_started-value", activityStartedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
}

func TestSchemaRegistrySurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.ErrorContains(t, err, "503")
}
