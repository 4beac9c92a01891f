/*
scheduler.go - Periodic ledger audit

PURPOSE:
  Runs engine.Ledger.Audit on a fixed interval and keeps the latest report
  for GET /api/ledger/admin/audit. The audit only reads; violations are
  logged at WARN so an operator can investigate, nothing is repaired.

DESIGN:
  - One background goroutine driven by a ticker
  - Runs once immediately on Start
  - Stop is idempotent and waits for an in-flight run
  - RunNow runs synchronously (tests, admin tooling)

USAGE:
  auditor := NewLedgerAuditor(eng.Ledger, log)
  auditor.Interval = cfg.Audit.Interval
  auditor.Start()
  defer auditor.Stop()

SEE ALSO:
  - engine/audit.go: Audit checks
  - ledger.go: AuditReport endpoint
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/stay-engine/engine"
)

// Auditor is the part of engine.Ledger the scheduler needs.
type Auditor interface {
	Audit(ctx context.Context) (engine.AuditReport, error)
}

// LedgerAuditor runs ledger audits in the background.
type LedgerAuditor struct {
	Ledger   Auditor
	Interval time.Duration
	Enabled  bool
	Log      logrus.FieldLogger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	reportMu sync.RWMutex
	last     *engine.AuditReport
}

func NewLedgerAuditor(ledger Auditor, log logrus.FieldLogger) *LedgerAuditor {
	return &LedgerAuditor{
		Ledger:   ledger,
		Interval: 5 * time.Minute,
		Enabled:  true,
		Log:      log.WithField("component", "ledger_auditor"),
	}
}

// Start begins periodic audits.
func (a *LedgerAuditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Enabled || a.Interval <= 0 {
		a.Log.Info("ledger auditor disabled")
		return
	}
	if a.ticker != nil {
		return
	}

	a.ticker = time.NewTicker(a.Interval)
	a.stop = make(chan struct{})
	a.wg.Add(1)
	go a.run(a.ticker, a.stop)

	a.Log.WithField("interval", a.Interval).Info("ledger auditor started")
}

// Stop halts the auditor and waits for the current run.
func (a *LedgerAuditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker == nil {
		return
	}
	a.ticker.Stop()
	close(a.stop)
	a.wg.Wait()
	a.ticker = nil
	a.Log.Info("ledger auditor stopped")
}

func (a *LedgerAuditor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer a.wg.Done()

	a.RunNow(context.Background())
	for {
		select {
		case <-ticker.C:
			a.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow audits once and stores the report.
func (a *LedgerAuditor) RunNow(ctx context.Context) (engine.AuditReport, error) {
	report, err := a.Ledger.Audit(ctx)
	if err != nil {
		a.Log.WithError(err).Error("ledger audit failed")
		return engine.AuditReport{}, err
	}

	a.reportMu.Lock()
	a.last = &report
	a.reportMu.Unlock()

	fields := logrus.Fields{
		"bookings":   report.Bookings,
		"entries":    report.Entries,
		"escrow":     report.EscrowBalance.StringFixed(2),
		"commission": report.CommissionTotal.StringFixed(2),
		"notices":    len(report.Notices),
	}
	if report.OK() {
		a.Log.WithFields(fields).Debug("ledger audit clean")
		return report, nil
	}
	for _, v := range report.Violations {
		a.Log.WithFields(logrus.Fields{
			"code":       v.Code,
			"booking_id": v.BookingID,
		}).Warn(v.Message)
	}
	fields["violations"] = len(report.Violations)
	a.Log.WithFields(fields).Warn("ledger audit found violations")
	return report, nil
}

// LastReport returns the most recent report, or false before the first run.
func (a *LedgerAuditor) LastReport() (engine.AuditReport, bool) {
	a.reportMu.RLock()
	defer a.reportMu.RUnlock()
	if a.last == nil {
		return engine.AuditReport{}, false
	}
	return *a.last, true
}
