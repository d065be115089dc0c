package approval

import (
	"context"
	"testing"
	"time"

	"halonet-payments/internal/adapter/repository/mysql"
	"halonet-payments/internal/adapter/twofactor"
	"halonet-payments/internal/apperrors"
	domain "halonet-payments/internal/domain/approval"
	"halonet-payments/internal/domain/batch"
	"halonet-payments/internal/domain/company"
	"halonet-payments/internal/domain/events"
	"halonet-payments/internal/domain/uow"
	"halonet-payments/internal/testutil/dbtest"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type inbox struct{ notes []events.Notification }

func (i *inbox) Notify(_ context.Context, n events.Notification) { i.notes = append(i.notes, n) }

func (i *inbox) lastCode(t *testing.T) string {
	t.Helper()
	for j := len(i.notes) - 1; j >= 0; j-- {
		if c := i.notes[j].Secret; c != "" {
			return c
		}
	}
	t.Fatal("no code delivered")
	return ""
}

type fixture struct {
	uc    *Usecase
	db    *gorm.DB
	inbox *inbox
	batch *batch.Batch
}

func setup(t *testing.T, threshold int, twoFA bool) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	ctx := context.Background()

	s := company.Defaults("co-1")
	s.SetApprovers([]string{"alice", "bob", "carol"})
	s.ApprovalThreshold = threshold
	s.Require2FA = twoFA
	require.NoError(t, mysql.NewCompanyRepository(db).Upsert(ctx, s))

	b, _ := dbtest.SeedBatch(t, db, "co-1", batch.StatusDraft, dbtest.Credit("5000"))
	require.NoError(t, db.Model(b).Updates(map[string]any{"requires_approval": true, "approval_status": batch.ApprovalPending}).Error)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	in := &inbox{}
	uc := NewUsecase(mysql.NewGormUoW(db), mysql.NewApprovalRepository(db), mysql.NewBatchRepository(db),
		mysql.NewCompanyRepository(db), twofactor.NewRedisCodes(rdb, bcrypt.MinCost), in, nil)
	return &fixture{uc: uc, db: db, inbox: in, batch: b}
}

func (f *fixture) reload(t *testing.T) *batch.Batch {
	t.Helper()
	b, err := mysql.NewBatchRepository(f.db).GetByBatchID(context.Background(), f.batch.BatchID)
	require.NoError(t, err)
	return b
}

func TestApprove_ThresholdReached(t *testing.T) {
	f := setup(t, 2, false)
	ctx := context.Background()

	req, err := f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: f.batch.BatchID, RequestedBy: "payroll-admin"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Equal(t, 2, req.ApprovalThreshold)
	assert.Equal(t, []string{"alice", "bob", "carol"}, req.Approvers())
	assert.Equal(t, batch.StatusPendingApproval, f.reload(t).Status)
	require.NotEmpty(t, f.inbox.notes)
	assert.Equal(t, "approval.requested", f.inbox.notes[0].Kind)

	one, err := f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, one.Status)
	assert.Equal(t, 1, one.ApprovedCount)
	assert.Equal(t, batch.StatusPendingApproval, f.reload(t).Status)

	two, err := f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, two.Status)
	assert.Len(t, two.Actions, 2)
	assert.NotNil(t, two.ResolvedAt)

	b := f.reload(t)
	assert.Equal(t, batch.StatusApproved, b.Status)
	assert.Equal(t, batch.ApprovalApproved, b.ApprovalStatus)

	_, err = f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "carol"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState, "terminal requests accept no more decisions")
}

func TestApprove_AuthorizationErrors(t *testing.T) {
	f := setup(t, 2, false)
	ctx := context.Background()
	req, err := f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: f.batch.BatchID})
	require.NoError(t, err)

	_, err = f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "mallory"})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)

	_, err = f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "alice"})
	require.NoError(t, err)
	_, err = f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrAuthorization, "one decision per approver")

	got, err := f.uc.Get(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ApprovedCount)

	_, err = f.uc.Approve(ctx, ApproveInput{RequestID: "missing", ApproverID: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestApprove_TwoFactor(t *testing.T) {
	f := setup(t, 1, true)
	ctx := context.Background()
	req, err := f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: f.batch.BatchID})
	require.NoError(t, err)
	assert.True(t, req.Requires2FA)

	_, err = f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrTwoFactor)

	_, err = f.uc.IssueTwoFactorChallenge(ctx, req.RequestID, "mallory")
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)

	exp, err := f.uc.IssueTwoFactorChallenge(ctx, req.RequestID, "alice")
	require.NoError(t, err)
	assert.False(t, exp.IsZero())
	code := f.inbox.lastCode(t)

	wrong := "000000"
	if code == wrong {
		wrong = "999999"
	}
	_, err = f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "alice", TwoFactorCode: wrong})
	assert.ErrorIs(t, err, apperrors.ErrTwoFactor)

	done, err := f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "alice", TwoFactorCode: code})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, done.Status)
	require.Len(t, done.Actions, 1)
	assert.True(t, done.Actions[0].TwoFactorVerified)
}

// lostRace rolls back the next n transactions after their body succeeds.
type lostRace struct {
	uow.UnitOfWork
	n int
}

func (l *lostRace) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return l.UnitOfWork.WithinTx(ctx, func(r uow.Repos) error {
		if err := fn(r); err != nil {
			return err
		}
		if l.n > 0 {
			l.n--
			return apperrors.Wrap(apperrors.ErrConflict, "request changed concurrently")
		}
		return nil
	})
}

func TestApprove_RolledBackDecisionKeepsCode(t *testing.T) {
	f := setup(t, 1, true)
	ctx := context.Background()
	req, err := f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: f.batch.BatchID})
	require.NoError(t, err)
	_, err = f.uc.IssueTwoFactorChallenge(ctx, req.RequestID, "alice")
	require.NoError(t, err)
	code := f.inbox.lastCode(t)

	f.uc.uow = &lostRace{UnitOfWork: f.uc.uow, n: 1}
	_, err = f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "alice", TwoFactorCode: code})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	got, err := f.uc.Get(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Empty(t, got.Actions)

	done, err := f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "alice", TwoFactorCode: code})
	require.NoError(t, err, "the code survives a rolled back decision")
	assert.Equal(t, domain.StatusApproved, done.Status)

	ok, err := f.uc.codes.Verify(ctx, req.RequestID, "alice", code)
	require.NoError(t, err)
	assert.False(t, ok, "consumed once the decision committed")
}

func TestApprove_LazyExpiryIsCommitted(t *testing.T) {
	f := setup(t, 1, false)
	ctx := context.Background()
	req, err := f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: f.batch.BatchID})
	require.NoError(t, err)

	later := time.Now().UTC().Add(72 * time.Hour)
	f.uc.now = func() time.Time { return later }

	_, err = f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrExpired)

	got, err := f.uc.Get(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
	assert.Empty(t, got.Actions)
	b := f.reload(t)
	assert.Equal(t, batch.ApprovalExpired, b.ApprovalStatus)
	assert.Equal(t, batch.StatusPendingApproval, b.Status)

	again, err := f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: f.batch.BatchID})
	require.NoError(t, err, "an expired request can be replaced")
	assert.NotEqual(t, req.RequestID, again.RequestID)
	assert.Equal(t, batch.ApprovalPending, f.reload(t).ApprovalStatus)
}

func TestReject(t *testing.T) {
	f := setup(t, 2, true)
	ctx := context.Background()
	req, err := f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: f.batch.BatchID})
	require.NoError(t, err)

	_, err = f.uc.Reject(ctx, RejectInput{RequestID: req.RequestID, ApproverID: "bob", Comments: "  "})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	out, err := f.uc.Reject(ctx, RejectInput{RequestID: req.RequestID, ApproverID: "bob", Comments: "wrong bank for emp-1"})
	require.NoError(t, err, "rejection needs no second factor")
	assert.Equal(t, domain.StatusRejected, out.Status)
	assert.Equal(t, batch.ApprovalRejected, f.reload(t).ApprovalStatus)

	_, err = f.uc.Approve(ctx, ApproveInput{RequestID: req.RequestID, ApproverID: "alice", TwoFactorCode: "123456"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: f.batch.BatchID})
	assert.NoError(t, err, "a rejected request can be replaced")
}

func TestRequestApproval_Eligibility(t *testing.T) {
	f := setup(t, 1, false)
	ctx := context.Background()

	_, err := f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: f.batch.BatchID})
	require.NoError(t, err)
	_, err = f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: f.batch.BatchID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState, "only one pending request per batch")

	plain, _ := dbtest.SeedBatch(t, f.db, "co-1", batch.StatusDraft, dbtest.Credit("10"))
	_, err = f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: plain.BatchID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	other, _ := dbtest.SeedBatch(t, f.db, "co-without-approvers", batch.StatusDraft, dbtest.Credit("10"))
	_, err = f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: other.BatchID})
	assert.ErrorIs(t, err, apperrors.ErrPrecondition)

	_, err = f.uc.RequestApproval(ctx, RequestApprovalInput{BatchID: "missing"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
