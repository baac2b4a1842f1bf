package scheduler

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/smallbiznis/bizbooks/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"go.uber.org/zap"
)

// Sweep outcomes recorded on bizbooks_integrity_sweeps_total.
const (
	SweepOutcomeClean      = "clean"
	SweepOutcomeViolations = "violations"
	SweepOutcomeError      = "error"
)

// SweepReport summarizes one integrity sweep.
type SweepReport struct {
	RunID         string
	Organizations int
	Violations    []*ledgerdomain.IntegrityViolation
}

// IntegritySweepJob recomputes the trial balance of every organization with
// ledger activity. Violations are logged, audited and counted; they do not
// stop the sweep.
func (s *Scheduler) IntegritySweepJob(ctx context.Context) (SweepReport, error) {
	ctx, run, owner := s.ensureJobRun(ctx, JobIntegritySweep, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	start := s.clock.Now()
	report := SweepReport{RunID: run.runID}

	orgIDs, err := s.trialBalance.ListLedgerOrganizations(ctx)
	if err != nil {
		s.telemetry.RecordIntegritySweep(SweepOutcomeError, 0, s.clock.Now().Sub(start))
		return report, err
	}

	asOf := s.clock.Now()
	var jobErr error
	for _, orgID := range orgIDs {
		if ctx.Err() != nil {
			jobErr = errors.Join(jobErr, ctx.Err())
			break
		}
		report.Organizations++
		run.AddProcessed(1)

		_, err := s.trialBalance.GetTrialBalance(s.withOrg(ctx, orgID), orgID, asOf)
		var violation *ledgerdomain.IntegrityViolation
		switch {
		case err == nil:
		case errors.As(err, &violation):
			report.Violations = append(report.Violations, violation)
			s.recordViolation(ctx, run, violation)
		default:
			jobErr = errors.Join(jobErr, err)
			s.logJobError(ctx, run, "scheduler.integrity.failed", orgID, err)
		}
	}

	outcome := SweepOutcomeClean
	switch {
	case len(report.Violations) > 0:
		outcome = SweepOutcomeViolations
	case jobErr != nil:
		outcome = SweepOutcomeError
	}
	s.telemetry.RecordIntegritySweep(outcome, len(report.Violations), s.clock.Now().Sub(start))
	return report, jobErr
}

func (s *Scheduler) recordViolation(ctx context.Context, run *jobRun, violation *ledgerdomain.IntegrityViolation) {
	run.IncError()
	s.logger(s.withOrg(ctx, violation.OrgID)).Error("scheduler.integrity.violation",
		zap.String("run_id", run.runID),
		zap.String("total_debits", violation.TotalDebits.String()),
		zap.String("total_credits", violation.TotalCredits.String()),
		zap.Int("unbalanced_transactions", len(violation.UnbalancedTransactions)),
	)
	if s.auditSvc == nil {
		return
	}

	orgID := violation.OrgID
	actorID := "scheduler"
	targetID := orgID.String()
	unbalanced := make([]string, 0, len(violation.UnbalancedTransactions))
	for _, id := range violation.UnbalancedTransactions {
		unbalanced = append(unbalanced, id.String())
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Record{
		OrgID:      &orgID,
		ActorType:  string(auditdomain.ActorTypeSystem),
		ActorID:    &actorID,
		Action:     auditdomain.ActionIntegrityViolation,
		TargetType: "ledger",
		TargetID:   &targetID,
		Metadata: map[string]any{
			"run_id":                  run.runID,
			"as_of":                   violation.AsOf.Format(time.RFC3339),
			"total_debits":            violation.TotalDebits.String(),
			"total_credits":           violation.TotalCredits.String(),
			"unbalanced_transactions": unbalanced,
		},
	}); err != nil {
		s.log.Warn("failed to audit integrity violation", zap.String("org_id", idString(orgID)), zap.Error(err))
	}
}
