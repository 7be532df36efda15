package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLowStockEvent(t *testing.T) {
	t.Run("parses valid event", func(t *testing.T) {
		value := []byte(`{
			"eventType": "inventory.low_stock",
			"productId": "prod-a",
			"stock": 3,
			"threshold": 5,
			"occurredAt": "2025-10-30T12:00:00Z"
		}`)

		event, err := parseLowStockEvent(value)
		require.NoError(t, err)
		assert.Equal(t, "inventory.low_stock", event.EventType)
		assert.Equal(t, "prod-a", event.ProductID)
		assert.Equal(t, 3, event.Stock)
		assert.Equal(t, 5, event.Threshold)
		assert.Equal(t, time.Date(2025, 10, 30, 12, 0, 0, 0, time.UTC), event.OccurredAt)
	})

	t.Run("missing productId", func(t *testing.T) {
		_, err := parseLowStockEvent([]byte(`{"eventType": "inventory.low_stock", "stock": 3}`))

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "productId", parseErr.Field)
	})

	t.Run("invalid occurredAt", func(t *testing.T) {
		_, err := parseLowStockEvent([]byte(`{"productId": "prod-a", "occurredAt": "yesterday"}`))

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "occurredAt", parseErr.Field)
	})

	t.Run("missing occurredAt", func(t *testing.T) {
		// occurredAt участвует в idempotency ключе, событие без него уходит в DLQ
		_, err := parseLowStockEvent([]byte(`{"productId": "prod-a", "stock": 3}`))

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "occurredAt", parseErr.Field)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parseLowStockEvent([]byte(`{not json`))
		assert.Error(t, err)
	})
}

func TestParseRestockedEvent(t *testing.T) {
	t.Run("parses valid event", func(t *testing.T) {
		value := []byte(`{
			"eventType": "inventory.restocked",
			"item": {"productId": "prod-a", "added": 50, "stockAfter": 53},
			"occurredAt": "2025-10-31T09:00:00Z"
		}`)

		event, err := parseRestockedEvent(value)
		require.NoError(t, err)
		assert.Equal(t, "inventory.restocked", event.EventType)
		assert.Equal(t, "prod-a", event.Item.ProductID)
		assert.Equal(t, 50, event.Item.Added)
		assert.Equal(t, 53, event.Item.StockAfter)
		assert.Equal(t, time.Date(2025, 10, 31, 9, 0, 0, 0, time.UTC), event.OccurredAt)
	})

	t.Run("missing item productId", func(t *testing.T) {
		_, err := parseRestockedEvent([]byte(`{"eventType": "inventory.restocked", "item": {"added": 50}}`))

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "item.productId", parseErr.Field)
	})

	t.Run("invalid occurredAt", func(t *testing.T) {
		_, err := parseRestockedEvent([]byte(`{"item": {"productId": "prod-a"}, "occurredAt": "not-a-time"}`))

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "occurredAt", parseErr.Field)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parseRestockedEvent([]byte(`[]`))
		assert.Error(t, err)
	})
}
