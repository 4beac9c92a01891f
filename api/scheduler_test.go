package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stay-engine/engine"
	"github.com/warp/stay-engine/logging"
)

type stubAuditor struct {
	calls  atomic.Int32
	report engine.AuditReport
	err    error
}

func (s *stubAuditor) Audit(context.Context) (engine.AuditReport, error) {
	s.calls.Add(1)
	return s.report, s.err
}

func TestLedgerAuditor_RunNowStoresReport(t *testing.T) {
	// GIVEN: A ledger with one escrow mismatch
	// WHEN: The auditor runs once
	// THEN: The report is returned, kept as the last report and not repaired

	stub := &stubAuditor{report: engine.AuditReport{
		Bookings:      1,
		Entries:       1,
		EscrowBalance: decimal.NewFromInt(90),
		Violations: []engine.Finding{
			{Code: engine.FindingEscrowMismatch, BookingID: "bkg-1", Message: "escrowed 90, total 100"},
		},
	}}
	a := NewLedgerAuditor(stub, logging.Discard())

	_, ok := a.LastReport()
	assert.False(t, ok)

	report, err := a.RunNow(context.Background())
	require.NoError(t, err)
	assert.False(t, report.OK())

	last, ok := a.LastReport()
	require.True(t, ok)
	assert.Equal(t, engine.FindingEscrowMismatch, last.Violations[0].Code)
}

func TestLedgerAuditor_FailureKeepsPreviousReport(t *testing.T) {
	stub := &stubAuditor{report: engine.AuditReport{Bookings: 3}}
	a := NewLedgerAuditor(stub, logging.Discard())

	_, err := a.RunNow(context.Background())
	require.NoError(t, err)

	stub.err = errors.New("disk on fire")
	_, err = a.RunNow(context.Background())
	assert.Error(t, err)

	last, ok := a.LastReport()
	require.True(t, ok)
	assert.Equal(t, 3, last.Bookings)
}

func TestLedgerAuditor_StartStop(t *testing.T) {
	stub := &stubAuditor{}
	a := NewLedgerAuditor(stub, logging.Discard())
	a.Interval = 10 * time.Millisecond

	a.Start()
	a.Start() // second start is a no-op
	require.Eventually(t, func() bool { return stub.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	a.Stop()
	a.Stop()

	after := stub.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, stub.calls.Load(), "no runs after Stop")

	_, ok := a.LastReport()
	assert.True(t, ok)
}

func TestLedgerAuditor_Disabled(t *testing.T) {
	stub := &stubAuditor{}
	a := NewLedgerAuditor(stub, logging.Discard())
	a.Enabled = false

	a.Start()
	a.Stop()
	assert.Zero(t, stub.calls.Load())
}
