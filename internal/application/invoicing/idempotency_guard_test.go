package invoicing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/invoicing/backend/internal/domain/invoicing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestIdempotencyGuard_Admit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guard := NewIdempotencyGuard(env.payments, env.metrics, zaptest.NewLogger(t))

	_, err := guard.Admit(ctx, "")
	var validation *invoicing.ValidationError
	require.ErrorAs(t, err, &validation)

	admission, err := guard.Admit(ctx, "FLW-999")
	require.NoError(t, err)
	assert.True(t, admission.Proceed)
	assert.False(t, admission.AlreadyProcessed)

	inv := env.createInvoice(t, uuid.New(), 112500, testNow.AddDate(0, 0, 14))
	ref := "FLW-999"
	cmd := allocateCmd(inv, 10000)
	cmd.ExternalReference = &ref
	res, err := env.allocator.Allocate(ctx, cmd)
	require.NoError(t, err)

	admission, err = guard.Admit(ctx, "FLW-999")
	require.NoError(t, err)
	assert.False(t, admission.Proceed)
	assert.True(t, admission.AlreadyProcessed)
	assert.Equal(t, res.Payment.ID, admission.ExistingPaymentID)
	assert.Equal(t, 1, env.metrics.totalDuplicates())
}

func TestIdempotencyGuard_Resolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	guard := NewIdempotencyGuard(env.payments, env.metrics, zaptest.NewLogger(t))

	_, ok := guard.Resolve(ctx, "FLW-1", errors.New("connection reset"))
	assert.False(t, ok)
	_, ok = guard.Resolve(ctx, "FLW-1", nil)
	assert.False(t, ok)

	inv := env.createInvoice(t, uuid.New(), 112500, testNow.AddDate(0, 0, 14))
	ref := "FLW-1"
	cmd := allocateCmd(inv, 10000)
	cmd.ExternalReference = &ref
	winner, err := env.allocator.Allocate(ctx, cmd)
	require.NoError(t, err)

	// the losing insert of a concurrent delivery
	_, err = env.allocator.Allocate(ctx, cmd)
	require.Error(t, err)

	admission, ok := guard.Resolve(ctx, ref, err)
	require.True(t, ok)
	assert.True(t, admission.AlreadyProcessed)
	assert.Equal(t, winner.Payment.ID, admission.ExistingPaymentID)

	// a conflict whose row is not readable still counts as processed
	admission, ok = guard.Resolve(ctx, "FLW-gone", &invoicing.ConflictError{ExternalReference: "FLW-gone"})
	require.True(t, ok)
	assert.Equal(t, uuid.Nil, admission.ExistingPaymentID)
}
