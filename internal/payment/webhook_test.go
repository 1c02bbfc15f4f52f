package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clearmedia-api/internal/credit"
)

const testSecret = "whsec_test"

func checkoutBody(tx, user, product string) []byte {
	return []byte(fmt.Sprintf(`{"eventType":"checkout.completed","object":{"order":{"status":"paid","transaction":%q,"product":%q},"metadata":{"internal_customer_id":%q}}}`,
		tx, product, user))
}

func newTestReconciler(t *testing.T) (*WebhookReconciler, *credit.MemoryLedger, *MemoryRepository) {
	t.Helper()
	ledger := credit.NewMemoryLedger()
	repo := NewMemoryRepository(ledger)
	w, err := NewWebhookReconciler(repo, ProductCredits{"prod_basic": 30}, testSecret, nil)
	require.NoError(t, err)
	return w, ledger, repo
}

func TestNewWebhookReconciler_RequiresSecret(t *testing.T) {
	_, err := NewWebhookReconciler(NewMemoryRepository(credit.NewMemoryLedger()), nil, "", nil)
	assert.ErrorIs(t, err, ErrSecretRequired)
}

func TestWebhookReconciler_DuplicateDeliveryCreditsOnce(t *testing.T) {
	w, ledger, repo := newTestReconciler(t)
	ctx := context.Background()
	body := checkoutBody("tx_abc", "user-1", "prod_basic")
	sig := Sign(body, testSecret)

	first, err := w.Handle(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, first.Outcome)
	assert.Equal(t, 30, first.Credits)
	assert.Equal(t, 30, first.Balance)

	second, err := w.Handle(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, 0, second.Credits)
	assert.Equal(t, 30, second.Balance)

	acct, _ := ledger.GetBalance(ctx, "user-1")
	assert.Equal(t, 30, acct.Balance)

	tx, err := repo.FindByID(ctx, "tx_abc")
	require.NoError(t, err)
	assert.Equal(t, "prod_basic", tx.ProductID)
	assert.Equal(t, EventCheckoutCompleted, tx.EventType)
	assert.JSONEq(t, string(body), string(tx.Payload))
}

func TestWebhookReconciler_ConcurrentDeliveries(t *testing.T) {
	w, ledger, _ := newTestReconciler(t)
	ctx := context.Background()
	body := checkoutBody("tx_race", "user-1", "prod_basic")
	sig := Sign(body, testSecret)

	var wg sync.WaitGroup
	var mu sync.Mutex
	credited := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := w.Handle(ctx, body, sig)
			assert.NoError(t, err)
			if res.Outcome == OutcomeCredited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited)
	acct, _ := ledger.GetBalance(ctx, "user-1")
	assert.Equal(t, 30, acct.Balance)
}

func TestWebhookReconciler_InvalidSignature(t *testing.T) {
	w, ledger, repo := newTestReconciler(t)
	ctx := context.Background()
	body := checkoutBody("tx_bad", "user-1", "prod_basic")

	_, err := w.Handle(ctx, body, Sign(body, "wrong"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = repo.FindByID(ctx, "tx_bad")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
	acct, _ := ledger.GetBalance(ctx, "user-1")
	assert.Equal(t, 0, acct.Balance)
}

func TestWebhookReconciler_MissingSignatureAccepted(t *testing.T) {
	w, ledger, _ := newTestReconciler(t)
	ctx := context.Background()

	res, err := w.Handle(ctx, checkoutBody("tx_unsigned", "user-1", "prod_basic"), "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, res.Outcome)

	acct, _ := ledger.GetBalance(ctx, "user-1")
	assert.Equal(t, 30, acct.Balance)
}

func TestWebhookReconciler_UnknownProductRecordedWithZeroCredits(t *testing.T) {
	w, ledger, repo := newTestReconciler(t)
	ctx := context.Background()
	body := checkoutBody("tx_unknown", "user-1", "prod_mystery")

	res, err := w.Handle(ctx, body, Sign(body, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, res.Outcome)
	assert.Equal(t, 0, res.Credits)

	tx, err := repo.FindByID(ctx, "tx_unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, tx.Credits)
	acct, _ := ledger.GetBalance(ctx, "user-1")
	assert.Equal(t, 0, acct.Balance)
}

func TestWebhookReconciler_IgnoresEventsWithoutTransactionOrUser(t *testing.T) {
	w, _, repo := newTestReconciler(t)
	ctx := context.Background()

	for _, body := range [][]byte{
		checkoutBody("", "user-1", "prod_basic"),
		checkoutBody("tx_nouser", "", "prod_basic"),
		[]byte(`{"eventType":"refund.created","object":{}}`),
	} {
		res, err := w.Handle(ctx, body, Sign(body, testSecret))
		require.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, res.Outcome)
	}

	_, err := repo.FindByID(ctx, "tx_nouser")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestWebhookReconciler_InvalidPayload(t *testing.T) {
	w, _, _ := newTestReconciler(t)
	body := []byte(`not json`)

	_, err := w.Handle(context.Background(), body, Sign(body, testSecret))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

type failingLedger struct {
	*credit.MemoryLedger
}

func (failingLedger) Credit(context.Context, string, int) (int, error) {
	return 0, errors.New("ledger unavailable")
}

func TestWebhookReconciler_CreditFailureKeepsTransaction(t *testing.T) {
	repo := NewMemoryRepository(failingLedger{credit.NewMemoryLedger()})
	w, err := NewWebhookReconciler(repo, ProductCredits{"prod_basic": 30}, testSecret, nil)
	require.NoError(t, err)
	body := checkoutBody("tx_fail", "user-1", "prod_basic")

	_, err = w.Handle(context.Background(), body, Sign(body, testSecret))
	require.Error(t, err)

	tx, err := repo.FindByID(context.Background(), "tx_fail")
	require.NoError(t, err)
	assert.Equal(t, 30, tx.Credits)
}
