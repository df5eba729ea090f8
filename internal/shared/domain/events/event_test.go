package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type classCreated struct {
	ClassID string `json:"classId"`
	Title   string `json:"title"`
}

func TestDomainEvent_JSONRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	evt := NewAt("class.created", at, classCreated{ClassID: "c-1", Title: "Algebra"})

	data, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"name":"class.created","occurredOn":"2025-03-01T10:00:00Z","payload":{"classId":"c-1","title":"Algebra"}}`,
		string(data))

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "class.created", got.Name())
	assert.True(t, at.Equal(got.OccurredOn()))

	payload, err := DecodePayload[classCreated](got)
	require.NoError(t, err)
	assert.Equal(t, classCreated{ClassID: "c-1", Title: "Algebra"}, payload)
}

func TestDecode_RejectsMissingName(t *testing.T) {
	_, err := Decode([]byte(`{"occurredOn":"2025-03-01T10:00:00Z","payload":{}}`))
	assert.ErrorIs(t, err, ErrMissingEventName)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodePayload_TypedAndPointer(t *testing.T) {
	p := classCreated{ClassID: "c-2"}

	got, err := DecodePayload[classCreated](New("class.created", p))
	require.NoError(t, err)
	assert.Equal(t, p, got)

	got, err = DecodePayload[classCreated](New("class.created", &p))
	require.NoError(t, err)
	assert.Equal(t, p, got)

	got, err = DecodePayload[classCreated](New("class.created", map[string]any{"classId": "c-3"}))
	require.NoError(t, err)
	assert.Equal(t, "c-3", got.ClassID)
}

func TestDecodePayload_BadJSON(t *testing.T) {
	evt := New("class.created", json.RawMessage(`{"classId":1}`))

	_, err := DecodePayload[classCreated](evt)
	assert.Error(t, err)
}

func TestNew_NilPayload(t *testing.T) {
	data, err := json.Marshal(New("ping", nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"payload":null`)
}

func TestToIntegration(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ie, err := ToIntegration(NewAt("alert.generated", at, map[string]string{"level": "high"}))
	require.NoError(t, err)

	assert.Equal(t, "alert.generated", ie.Type)
	assert.Equal(t, at, ie.Timestamp)
	assert.JSONEq(t, `{"level":"high"}`, string(ie.Data))
}
