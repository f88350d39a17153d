package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shop-service/models"
)

var allStatuses = []models.OrderStatus{
	models.StatusPending,
	models.StatusProcessing,
	models.StatusShipped,
	models.StatusDelivered,
	models.StatusCancelled,
	models.StatusReturned,
	models.StatusRefunded,
	models.StatusCompleted,
	models.StatusOnHold,
	models.StatusFailed,
}

func TestPrimaryPathTransitions(t *testing.T) {
	assert.True(t, CanTransition(models.StatusPending, models.StatusProcessing))
	assert.True(t, CanTransition(models.StatusPending, models.StatusCancelled))
	assert.True(t, CanTransition(models.StatusProcessing, models.StatusShipped))
	assert.True(t, CanTransition(models.StatusProcessing, models.StatusCancelled))
	assert.True(t, CanTransition(models.StatusShipped, models.StatusDelivered))
	assert.True(t, CanTransition(models.StatusShipped, models.StatusReturned))
	assert.True(t, CanTransition(models.StatusDelivered, models.StatusReturned))
	assert.True(t, CanTransition(models.StatusReturned, models.StatusRefunded))
}

func TestTerminalStatusesHaveNoOutboundTransitions(t *testing.T) {
	for _, terminal := range []models.OrderStatus{
		models.StatusCancelled, models.StatusRefunded, models.StatusCompleted, models.StatusFailed,
	} {
		assert.Empty(t, AllowedTargets(terminal), "status %s must be terminal", terminal)
	}
}

// Closure: every pair not in the table is rejected; the table itself is the
// one source of truth.
func TestTransitionClosure(t *testing.T) {
	for _, from := range allStatuses {
		allowed := make(map[models.OrderStatus]bool)
		for _, to := range AllowedTargets(from) {
			allowed[to] = true
		}
		for _, to := range allStatuses {
			got := CanTransition(from, to)
			assert.Equal(t, allowed[to], got, "transition %s -> %s", from, to)
			if !allowed[to] {
				assert.Error(t, checkTransition(from, to))
			} else {
				assert.NoError(t, checkTransition(from, to))
			}
		}
	}
}

func TestCancellability(t *testing.T) {
	for _, status := range []models.OrderStatus{
		models.StatusShipped, models.StatusDelivered, models.StatusCompleted,
		models.StatusCancelled, models.StatusRefunded,
	} {
		assert.False(t, IsCancellable(status), "status %s must not be cancellable", status)
	}
	for _, status := range []models.OrderStatus{
		models.StatusPending, models.StatusProcessing, models.StatusOnHold,
	} {
		assert.True(t, IsCancellable(status), "status %s must be cancellable", status)
	}
}
