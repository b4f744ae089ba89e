package checkout

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swishtrade/swish/internal/models"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to models.PurchaseStatus }{
		{models.PurchasePending, models.PurchasePaid},
		{models.PurchasePending, models.PurchaseCancelled},
		{models.PurchasePaid, models.PurchaseShipped},
		{models.PurchasePaid, models.PurchaseCancelled},
		{models.PurchasePaid, models.PurchaseRefunded},
		{models.PurchaseShipped, models.PurchaseDelivered},
		{models.PurchaseShipped, models.PurchaseRefunded},
		{models.PurchaseDelivered, models.PurchaseCompleted},
		{models.PurchaseDelivered, models.PurchaseRefunded},
	}
	for _, tc := range allowed {
		require.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to models.PurchaseStatus }{
		{models.PurchasePending, models.PurchaseShipped},
		{models.PurchasePending, models.PurchaseDelivered},
		{models.PurchasePaid, models.PurchaseDelivered},
		{models.PurchaseShipped, models.PurchaseCancelled},
		{models.PurchaseShipped, models.PurchaseCompleted},
		{models.PurchaseDelivered, models.PurchaseCancelled},
		{models.PurchasePaid, models.PurchasePending},
		{models.PurchaseShipped, models.PurchasePaid},
	}
	for _, tc := range denied {
		require.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	terminals := []models.PurchaseStatus{
		models.PurchaseCompleted,
		models.PurchaseCancelled,
		models.PurchaseRefunded,
	}
	all := []models.PurchaseStatus{
		models.PurchasePending,
		models.PurchasePaid,
		models.PurchaseShipped,
		models.PurchaseDelivered,
		models.PurchaseCompleted,
		models.PurchaseCancelled,
		models.PurchaseRefunded,
	}
	for _, from := range terminals {
		for _, to := range all {
			require.False(t, CanTransition(from, to), "terminal %s must not reach %s", from, to)
		}
	}
}

func TestValidateTransitionError(t *testing.T) {
	require.NoError(t, ValidateTransition(models.PurchasePaid, models.PurchaseShipped))

	err := ValidateTransition(models.PurchaseCompleted, models.PurchaseShipped)
	require.EqualError(t, err, "invalid status transition from COMPLETED to SHIPPED")

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, models.PurchaseCompleted, te.From)
	require.Equal(t, models.PurchaseShipped, te.To)
}
