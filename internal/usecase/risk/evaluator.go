package risk

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"halonet-payments/internal/domain/batch"
	domain "halonet-payments/internal/domain/risk"
	"halonet-payments/pkg/aba"
	"halonet-payments/pkg/id"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const defaultDelayHours = 24

// History gives read access to a company's recent batches.
type History interface {
	ListCreatedSince(ctx context.Context, companyID string, since time.Time) ([]batch.Batch, error)
}

type Evaluator struct {
	controls domain.ControlRepository
	history  History
	now      func() time.Time
}

func NewEvaluator(controls domain.ControlRepository, history History) *Evaluator {
	return &Evaluator{controls: controls, history: history, now: func() time.Time { return time.Now().UTC() }}
}

// Snapshot is the rule set and batch history read at the start of one evaluation.
type Snapshot struct {
	Controls []domain.Control
	History  []batch.Batch
	Now      time.Time
}

type Result struct {
	Action           domain.Action
	Events           []domain.Event
	RequiresApproval bool
	HoldUntil        *time.Time
	BlockedBy        string
}

// Snapshot re-reads the company's active controls; nothing is cached across calls.
func (e *Evaluator) Snapshot(ctx context.Context, companyID string) (*Snapshot, error) {
	controls, err := e.controls.ListActive(ctx, companyID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(controls, func(i, j int) bool { return controls[i].Priority < controls[j].Priority })

	now := e.now()
	window := 0
	for i := range controls {
		if controls[i].ControlType != domain.ControlVelocityCheck {
			continue
		}
		cfg, err := controls[i].Config()
		if err != nil {
			return nil, err
		}
		if w := cfg.(domain.VelocityCheckConfig).WindowHours; w > window {
			window = w
		}
	}
	snap := &Snapshot{Controls: controls, Now: now}
	if window > 0 {
		hist, err := e.history.ListCreatedSince(ctx, companyID, now.Add(-time.Duration(window)*time.Hour))
		if err != nil {
			return nil, err
		}
		snap.History = hist
	}
	return snap, nil
}

// Evaluate is Snapshot followed by Snapshot.Evaluate.
func (e *Evaluator) Evaluate(ctx context.Context, b *batch.Batch, entries []batch.Entry) (*Result, error) {
	snap, err := e.Snapshot(ctx, b.CompanyID)
	if err != nil {
		return nil, err
	}
	return snap.Evaluate(b, entries)
}

type finding struct {
	fired   bool
	score   int
	kind    string
	factors map[string]any
}

// Evaluate runs controls in ascending priority. The first block stops evaluation;
// otherwise the most severe fired action wins. Every fired control yields one event.
func (s *Snapshot) Evaluate(b *batch.Batch, entries []batch.Entry) (*Result, error) {
	res := &Result{Action: domain.ActionAllow}
	for i := range s.Controls {
		c := &s.Controls[i]
		f, err := s.check(c, b, entries)
		if err != nil {
			return nil, err
		}
		if !f.fired {
			continue
		}

		verdict := c.ActionType.Verdict()
		if c.ControlType == domain.ControlAccountValidation {
			// malformed bank details never reach a provider
			verdict = domain.ActionBlock
		}
		if c.ActionType == domain.ActionTypeRequireApproval {
			res.RequiresApproval = true
		}
		if verdict == domain.ActionDelay {
			acfg, err := c.Actions()
			if err != nil {
				return nil, err
			}
			hours := acfg.DelayHours
			if hours <= 0 {
				hours = defaultDelayHours
			}
			hold := s.Now.Add(time.Duration(hours) * time.Hour)
			if res.HoldUntil == nil || hold.After(*res.HoldUntil) {
				res.HoldUntil = &hold
			}
			f.factors["hold_until"] = hold
		}

		res.Events = append(res.Events, newEvent(c, b, f, verdict))
		res.Action = domain.Max(res.Action, verdict)
		if verdict == domain.ActionBlock {
			res.BlockedBy = c.Name
			break
		}
	}
	return res, nil
}

// RequiresApproval considers only require_approval controls and records nothing.
func (s *Snapshot) RequiresApproval(b *batch.Batch, entries []batch.Entry) (bool, error) {
	for i := range s.Controls {
		c := &s.Controls[i]
		if c.ActionType != domain.ActionTypeRequireApproval {
			continue
		}
		f, err := s.check(c, b, entries)
		if err != nil {
			return false, err
		}
		if f.fired {
			return true, nil
		}
	}
	return false, nil
}

func (s *Snapshot) check(c *domain.Control, b *batch.Batch, entries []batch.Entry) (finding, error) {
	cfg, err := c.Config()
	if err != nil {
		return finding{}, err
	}
	switch v := cfg.(type) {
	case domain.AmountThresholdConfig:
		return checkAmount(v, b, entries), nil
	case domain.VelocityCheckConfig:
		return s.checkVelocity(v, b), nil
	case domain.AccountValidationConfig:
		return checkAccounts(v, entries), nil
	case domain.TimeRestrictionConfig:
		return s.checkTime(v, b), nil
	}
	return finding{}, nil
}

func checkAmount(cfg domain.AmountThresholdConfig, b *batch.Batch, entries []batch.Entry) finding {
	f := finding{kind: "amount_threshold_exceeded", factors: map[string]any{}}
	if cfg.MaxBatchAmount != nil && b.TotalAmount.GreaterThan(*cfg.MaxBatchAmount) {
		f.fired = true
		f.factors["total_amount"] = b.TotalAmount.StringFixed(2)
		f.factors["max_batch_amount"] = cfg.MaxBatchAmount.StringFixed(2)
		f.score = max(f.score, ratioScore(b.TotalAmount, *cfg.MaxBatchAmount))
	}
	if cfg.MaxEntryAmount != nil {
		var over []int
		for _, e := range entries {
			if e.Amount.GreaterThan(*cfg.MaxEntryAmount) {
				over = append(over, e.Sequence)
				f.score = max(f.score, ratioScore(e.Amount, *cfg.MaxEntryAmount))
			}
		}
		if len(over) > 0 {
			f.fired = true
			f.factors["entries_over_limit"] = over
			f.factors["max_entry_amount"] = cfg.MaxEntryAmount.StringFixed(2)
		}
	}
	if cfg.MaxEntryCount != nil && b.TotalCount > *cfg.MaxEntryCount {
		f.fired = true
		f.factors["total_count"] = b.TotalCount
		f.factors["max_entry_count"] = *cfg.MaxEntryCount
		f.score = max(f.score, ratioScore(decimal.NewFromInt(int64(b.TotalCount)), decimal.NewFromInt(int64(*cfg.MaxEntryCount))))
	}
	return f
}

func (s *Snapshot) checkVelocity(cfg domain.VelocityCheckConfig, b *batch.Batch) finding {
	f := finding{kind: "velocity_exceeded", factors: map[string]any{"window_hours": cfg.WindowHours}}
	since := s.Now.Add(-time.Duration(cfg.WindowHours) * time.Hour)
	count := 1
	amount := b.TotalAmount
	for _, h := range s.History {
		if h.ID == b.ID || h.CompanyID != b.CompanyID || h.CreatedAt.Before(since) || h.Status == batch.StatusCancelled {
			continue
		}
		count++
		amount = amount.Add(h.TotalAmount)
	}
	f.factors["batch_count"] = count
	f.factors["window_amount"] = amount.StringFixed(2)
	if cfg.MaxBatches != nil && count > *cfg.MaxBatches {
		f.fired = true
		f.factors["max_batches"] = *cfg.MaxBatches
		f.score = max(f.score, ratioScore(decimal.NewFromInt(int64(count)), decimal.NewFromInt(int64(*cfg.MaxBatches))))
	}
	if cfg.MaxAmount != nil && amount.GreaterThan(*cfg.MaxAmount) {
		f.fired = true
		f.factors["max_amount"] = cfg.MaxAmount.StringFixed(2)
		f.score = max(f.score, ratioScore(amount, *cfg.MaxAmount))
	}
	return f
}

func checkAccounts(cfg domain.AccountValidationConfig, entries []batch.Entry) finding {
	f := finding{kind: "account_validation_failed", score: 90, factors: map[string]any{}}
	var problems []map[string]any
	for _, e := range entries {
		var reasons []string
		if !aba.ValidRouting(e.RoutingNumber) {
			reasons = append(reasons, "routing checksum")
		}
		if !aba.ValidAccount(e.AccountNumber) {
			reasons = append(reasons, "account format")
		}
		if len(cfg.AllowedAccountTypes) > 0 && !contains(cfg.AllowedAccountTypes, string(e.AccountType)) {
			reasons = append(reasons, "account type "+string(e.AccountType))
		}
		if len(reasons) > 0 {
			problems = append(problems, map[string]any{
				"sequence": e.Sequence,
				"account":  e.AccountMask,
				"reasons":  strings.Join(reasons, ", "),
			})
		}
	}
	if len(problems) > 0 {
		f.fired = true
		f.factors["invalid_entries"] = problems
	}
	return f
}

func (s *Snapshot) checkTime(cfg domain.TimeRestrictionConfig, b *batch.Batch) finding {
	f := finding{kind: "time_restriction_violated", score: 50, factors: map[string]any{}}
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		}
	}
	now := s.Now.In(loc)
	if len(cfg.AllowedWeekdays) > 0 && !containsInt(cfg.AllowedWeekdays, int(now.Weekday())) {
		f.fired = true
		f.factors["weekday"] = now.Weekday().String()
	}
	if cfg.StartHour != nil && cfg.EndHour != nil && (now.Hour() < *cfg.StartHour || now.Hour() >= *cfg.EndHour) {
		f.fired = true
		f.factors["hour"] = now.Hour()
		f.factors["window"] = []int{*cfg.StartHour, *cfg.EndHour}
	}
	eff := time.Date(b.EffectiveDate.Year(), b.EffectiveDate.Month(), b.EffectiveDate.Day(), 0, 0, 0, 0, loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	lead := int(eff.Sub(today).Hours() / 24)
	if lead < cfg.MinLeadDays {
		f.fired = true
		f.factors["lead_days"] = lead
		f.factors["min_lead_days"] = cfg.MinLeadDays
		f.score = 70
	}
	if cfg.RejectWeekendEffectiveDate && (eff.Weekday() == time.Saturday || eff.Weekday() == time.Sunday) {
		f.fired = true
		f.factors["effective_weekday"] = eff.Weekday().String()
	}
	return f
}

func newEvent(c *domain.Control, b *batch.Batch, f finding, verdict domain.Action) domain.Event {
	raw, _ := json.Marshal(f.factors)
	controlID := c.ControlID
	ev := domain.Event{
		EventID:     id.NewID32(),
		CompanyID:   b.CompanyID,
		ControlID:   &controlID,
		EventType:   f.kind,
		Severity:    domain.SeverityForScore(f.score),
		RiskScore:   f.score,
		RiskFactors: datatypes.JSON(raw),
		ActionTaken: verdict,
		Status:      domain.EventActive,
	}
	if b.ID != 0 {
		bid := b.ID
		ev.BatchID = &bid
	}
	return ev
}

// ratioScore maps observed/limit onto 40..100: at the limit 40, double the limit 100.
func ratioScore(observed, limit decimal.Decimal) int {
	if !limit.IsPositive() {
		return 100
	}
	over := observed.Div(limit).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(60)).IntPart()
	return int(min(100, max(40, 40+over)))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
