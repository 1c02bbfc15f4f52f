package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clearmedia-api/internal/store"
)

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) Audit(ctx context.Context, userID string) (store.Audit, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(store.Audit), args.Error(1)
}

func (m *mockAuditor) Repair(ctx context.Context, userID string) (store.Audit, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(store.Audit), args.Error(1)
}

func (m *mockAuditor) AccountIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func TestReconcile_ReportsDrift(t *testing.T) {
	a := &mockAuditor{}
	a.On("Audit", mock.Anything, "u1").Return(store.Audit{UserID: "u1", Balance: 30, Granted: 30, Expected: 30}, nil)
	a.On("Audit", mock.Anything, "u2").Return(store.Audit{UserID: "u2", Balance: 10, Granted: 30, Charged: 5, Expected: 25}, nil)

	var out bytes.Buffer
	drifted, err := reconcile(context.Background(), a, []string{"u1", "u2"}, false, &out)

	require.NoError(t, err)
	assert.Equal(t, 1, drifted)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "ok")
	assert.Contains(t, lines[2], "-15")
	assert.Contains(t, lines[2], "drift")
	a.AssertNotCalled(t, "Repair", mock.Anything, mock.Anything)
}

func TestReconcile_Repairs(t *testing.T) {
	a := &mockAuditor{}
	before := store.Audit{UserID: "u2", Balance: 40, Granted: 30, Expected: 30}
	a.On("Audit", mock.Anything, "u2").Return(before, nil)
	a.On("Repair", mock.Anything, "u2").Return(before, nil).Once()

	var out bytes.Buffer
	drifted, err := reconcile(context.Background(), a, []string{"u2"}, true, &out)

	require.NoError(t, err)
	assert.Equal(t, 1, drifted)
	assert.Contains(t, out.String(), "repaired")
	a.AssertExpectations(t)
}

func TestReconcile_AuditError(t *testing.T) {
	a := &mockAuditor{}
	a.On("Audit", mock.Anything, "u1").Return(store.Audit{}, errors.New("db down"))

	_, err := reconcile(context.Background(), a, []string{"u1"}, false, &bytes.Buffer{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit u1")
}

func TestRun_RequiresExactlyOneTarget(t *testing.T) {
	assert.Error(t, run(nil))
	assert.Error(t, run([]string{"-user", "u1", "-all"}))
}

func TestRun_AuditsSQLiteFile(t *testing.T) {
	t.Setenv("CONFIG_ENV_PATH", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", t.TempDir()+"/audit.db")
	t.Setenv("LOG_LEVEL", "error")

	assert.NoError(t, run([]string{"-all"}))
	assert.NoError(t, run([]string{"-user", "nobody"}))
}
