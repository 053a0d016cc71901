package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	payload := []byte(`{"type":"capture"}`)
	id1, err := pub.Publish(context.Background(), "captures", payload)
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "alerts", []byte(`{"type":"flood_alert"}`))
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	payload[0] = 'X'
	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.JSONEq(t, `{"type":"capture"}`, string(msgs[0].Payload))

	msgs[0].Topic = "modified"
	require.Equal(t, "captures", pub.Messages()[0].Topic)

	alerts := pub.Topic("alerts")
	require.Len(t, alerts, 1)
	require.Equal(t, "memory-2", alerts[0].ID)
}
