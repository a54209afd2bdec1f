package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestReportCache(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip through redis", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		cache := NewReportCache(rdb)

		report := []MonthlyRevenueExpense{{Month: "Jan", Revenue: dec("100"), Expense: dec("40")}}
		data, err := json.Marshal(report)
		assert.NoError(t, err)

		mock.ExpectSet(monthlyCacheKey(2025), data, 5*time.Minute).SetVal("OK")
		cache.SetJSON(ctx, monthlyCacheKey(2025), report)

		mock.ExpectGet(monthlyCacheKey(2025)).SetVal(string(data))
		var loaded []MonthlyRevenueExpense
		assert.True(t, cache.GetJSON(ctx, monthlyCacheKey(2025), &loaded))
		assert.Len(t, loaded, 1)
		assert.True(t, loaded[0].Revenue.Equal(dec("100")))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss returns false", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		cache := NewReportCache(rdb)

		mock.ExpectGet(monthlyCacheKey(2024)).RedisNil()
		var loaded []MonthlyRevenueExpense
		assert.False(t, cache.GetJSON(ctx, monthlyCacheKey(2024), &loaded))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt entry is dropped and reported as a miss", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		cache := NewReportCache(rdb)

		mock.ExpectGet(monthlyCacheKey(2025)).SetVal("{not json")
		mock.ExpectDel(monthlyCacheKey(2025)).SetVal(1)

		var loaded []MonthlyRevenueExpense
		assert.False(t, cache.GetJSON(ctx, monthlyCacheKey(2025), &loaded))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalidate drops both report keys for the year", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		cache := NewReportCache(rdb)

		mock.ExpectDel(monthlyCacheKey(2025), netSurplusCacheKey(2025)).SetVal(2)
		cache.InvalidateYear(ctx, 2025)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil client degrades to a no-op miss", func(t *testing.T) {
		cache := NewReportCache(nil)

		var loaded []MonthlyRevenueExpense
		assert.False(t, cache.GetJSON(ctx, monthlyCacheKey(2025), &loaded))
		cache.SetJSON(ctx, monthlyCacheKey(2025), loaded)
		cache.InvalidateYear(ctx, 2025)
	})
}
