package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pharmasuite/lifecycle-engine/utils"
)

func TestPlanFor(t *testing.T) {
	t.Run("should return every catalog plan", func(t *testing.T) {
		for _, planType := range []PlanType{PlanTrial, PlanMonthly, PlanQuarterly, PlanAnnual, PlanLifetime} {
			result := PlanFor(planType)
			assert.True(t, result.Success())
			assert.Equal(t, planType, result.Value().Type)
			assert.Equal(t, "EUR", result.Value().Currency)
		}
	})

	t.Run("should fail with validation error for unknown plan", func(t *testing.T) {
		result := PlanFor(PlanType("platinum"))
		assert.True(t, result.Failure())
		assert.Equal(t, utils.KindValidation, result.ErrorKind())
		assert.False(t, result.IsRetryable())
	})
}

func TestBillingWindow(t *testing.T) {
	start := time.Date(2026, time.January, 31, 10, 0, 0, 0, time.UTC)

	t.Run("trial uses the override, defaulting to 7 days", func(t *testing.T) {
		end := BillingWindow(PlanTrial, start, 14)
		assert.Equal(t, start.AddDate(0, 0, 14), *end)

		end = BillingWindow(PlanTrial, start, 0)
		assert.Equal(t, start.AddDate(0, 0, 7), *end)
	})

	t.Run("monthly uses calendar month arithmetic", func(t *testing.T) {
		end := BillingWindow(PlanMonthly, start, 0)
		// Jan 31 + 1 month normalizes to Mar 3 (2026 is not a leap year).
		assert.Equal(t, time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC), *end)
		assert.True(t, end.After(start))
	})

	t.Run("quarterly adds three calendar months", func(t *testing.T) {
		end := BillingWindow(PlanQuarterly, start, 0)
		assert.Equal(t, start.AddDate(0, 3, 0), *end)
	})

	t.Run("annual adds one year", func(t *testing.T) {
		end := BillingWindow(PlanAnnual, start, 0)
		assert.Equal(t, time.Date(2027, time.January, 31, 10, 0, 0, 0, time.UTC), *end)
	})

	t.Run("lifetime has no end date", func(t *testing.T) {
		assert.Nil(t, BillingWindow(PlanLifetime, start, 0))
	})
}
