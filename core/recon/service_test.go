package recon_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/coursepay/recon/core"
	"github.com/coursepay/recon/core/bepaid"
	"github.com/coursepay/recon/core/contact"
	"github.com/coursepay/recon/core/order"
	"github.com/coursepay/recon/core/payment"
	"github.com/coursepay/recon/core/recon"
	emailsvc "github.com/coursepay/recon/services/email"
	dummydb "github.com/coursepay/recon/storage/database/dummy"
	"github.com/coursepay/recon/tests"
)

var ctx = context.Background()

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type testEnv struct {
	svc         *recon.Service
	contactSvc  *contact.Service
	contactRepo contact.Repository
	paymentRepo payment.Repository
	orderRepo   order.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	contactRepo := dummydb.NewContactRepository(db)
	contactSvc := contact.NewService(contactRepo)
	paymentRepo := dummydb.NewPaymentRepository(db)
	reconRepo := dummydb.NewReconRepository(db)

	emailsvc.SentMessages = emailsvc.SentMessages[:0]
	svc := recon.NewService(reconRepo, reconRepo, contactSvc, paymentRepo, emailsvc.NewConsoleServiceMock(), nopLogger{})
	return &testEnv{
		svc:         svc,
		contactSvc:  contactSvc,
		contactRepo: contactRepo,
		paymentRepo: paymentRepo,
		orderRepo:   dummydb.NewOrderRepository(db),
	}
}

// stageFixture stages one export covering every bucket:
// line 1 match, 2 new (matched), 3 new (no contact), 4 conflict, 5 update, 6 error.
func (env *testEnv) stageFixture(t *testing.T) (recon.Batch, []recon.StagedPayment, contact.Contact) {
	t.Helper()

	jane := testutil.CreateContact(t, env.contactRepo, "Jane Doe", "jane@test.by", "", "", "", false)
	testutil.CreateContact(t, env.contactRepo, "Eve Adams", "eve@test.by", "", "", "fp-dup", false)
	testutil.CreateContact(t, env.contactRepo, "Eve Clone", "clone@test.by", "", "", "fp-dup", false)

	testutil.CreatePayment(t, env.paymentRepo, "known-1", jane.ID, "jane@test.by", "Jane Doe", 9990, "BYN", bepaid.StatusSucceeded)
	testutil.CreatePayment(t, env.paymentRepo, "known-2", jane.ID, "jane@test.by", "Jane Doe", 5000, "BYN", bepaid.StatusPending)

	data := "UID,Email,Customer,Amount,Currency,Status,Card fingerprint\n" +
		"known-1,jane@test.by,Jane Doe,99.90,BYN,succeeded,\n" +
		"new-1,jane@test.by,Jane Doe,10.00,BYN,succeeded,\n" +
		"new-2,ghost@test.by,Ghost Person,20.00,BYN,succeeded,\n" +
		"conf-1,,Somebody New,30.00,BYN,succeeded,fp-dup\n" +
		"known-2,jane@test.by,Jane Doe,50.00,BYN,succeeded,\n" +
		"bad-1,x@test.by,X,free,BYN,succeeded,\n"

	batch, rows, err := env.svc.Stage(ctx, "march.csv", strings.NewReader(data))
	require.NoError(t, err)
	return batch, rows, jane
}

func TestService_Stage(t *testing.T) {
	env := newTestEnv(t)
	batch, rows, jane := env.stageFixture(t)

	assert.Equal(t, "march.csv", batch.Filename)
	assert.Equal(t, string(bepaid.KindTransactions), batch.Kind)
	assert.Equal(t, recon.BatchStaged, batch.Status)
	assert.Equal(t, 6, batch.TotalRows)
	assert.Equal(t, 2, batch.NewRows)
	assert.Equal(t, 1, batch.UpdateRows)
	assert.Equal(t, 1, batch.MatchRows)
	assert.Equal(t, 1, batch.ConflictRows)
	assert.Equal(t, 1, batch.ErrorRows)

	require.Len(t, rows, 6)

	// rows are persisted and queryable by batch
	persisted, err := env.svc.Queue(ctx, recon.QueryFilter{BatchID: batch.ID})
	require.NoError(t, err)
	require.Len(t, persisted, 6)

	byUID := make(map[string]recon.StagedPayment, len(persisted))
	for _, sp := range persisted {
		assert.Equal(t, recon.ResolutionPending, sp.Resolution)
		byUID[sp.ProviderUID] = sp
	}

	assert.Equal(t, recon.BucketMatch, byUID["known-1"].Bucket)
	assert.Equal(t, recon.StrategyProviderUID, byUID["known-1"].MatchStrategy)

	assert.Equal(t, recon.BucketNew, byUID["new-1"].Bucket)
	assert.Equal(t, jane.ID, byUID["new-1"].MatchContactID.String)
	assert.Equal(t, recon.StrategyEmail, byUID["new-1"].MatchStrategy)
	assert.Equal(t, 1.0, byUID["new-1"].MatchConfidence)

	assert.Equal(t, recon.BucketNew, byUID["new-2"].Bucket)
	assert.False(t, byUID["new-2"].MatchContactID.Valid)

	assert.Equal(t, recon.BucketConflict, byUID["conf-1"].Bucket)
	assert.Equal(t, recon.BucketUpdate, byUID["known-2"].Bucket)

	errRow := byUID[""] // failed rows carry no UID
	assert.Equal(t, recon.BucketError, errRow.Bucket)
	assert.Equal(t, 6, errRow.Line)
	assert.Contains(t, errRow.Error, "amount")
	assert.Equal(t, "free", errRow.Raw["Amount"])

	// bucket filter
	conflicts, err := env.svc.Queue(ctx, recon.QueryFilter{BatchID: batch.ID, Bucket: recon.BucketConflict})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "conf-1", conflicts[0].ProviderUID)
}

func TestService_Stage_unparsable(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.Stage(ctx, "empty.csv", strings.NewReader(""))
	require.Error(t, err)
	vErr := new(core.ValidationError)
	assert.True(t, errors.As(err, &vErr))
}

func TestService_Commit(t *testing.T) {
	env := newTestEnv(t)
	batch, _, jane := env.stageFixture(t)

	rpt, err := env.svc.Commit(ctx, batch.ID)
	require.NoError(t, err)

	assert.Equal(t, batch.ID, rpt.BatchID)
	assert.Equal(t, 6, rpt.Total)
	assert.Equal(t, 2, rpt.Created) // new-1, new-2
	assert.Equal(t, 1, rpt.Updated) // known-2
	assert.Equal(t, 1, rpt.Skipped) // known-1
	assert.Equal(t, 1, rpt.Conflicts)
	assert.Equal(t, 1, rpt.Errors)
	assert.Equal(t, 1, rpt.Ghosts)
	require.Len(t, rpt.RowErrors, 1)
	assert.Equal(t, 6, rpt.RowErrors[0].Line)

	committed, err := env.svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, recon.BatchCommitted, committed.Status)

	// new-1 was linked to the matched contact
	p, err := env.paymentRepo.GetPaymentByProviderUID(ctx, "new-1")
	require.NoError(t, err)
	assert.Equal(t, jane.ID, p.ContactID.String)
	assert.Equal(t, batch.ID, p.ImportBatchID.String)

	// new-2 got a ghost profile
	ghost, err := env.contactSvc.GetByEmail(ctx, "ghost@test.by")
	require.NoError(t, err)
	assert.True(t, ghost.IsGhost)
	assert.Equal(t, "Ghost Person", ghost.Name)
	p, err = env.paymentRepo.GetPaymentByProviderUID(ctx, "new-2")
	require.NoError(t, err)
	assert.Equal(t, ghost.ID, p.ContactID.String)

	// known-2 took the export's status
	p, err = env.paymentRepo.GetPaymentByProviderUID(ctx, "known-2")
	require.NoError(t, err)
	assert.Equal(t, bepaid.StatusSucceeded, p.Status)
	assert.Equal(t, jane.ID, p.ContactID.String)

	// the conflict row was held
	_, err = env.paymentRepo.GetPaymentByProviderUID(ctx, "conf-1")
	assert.Equal(t, payment.ErrNotFound, errors.Cause(err))

	// the import report went out
	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	assert.Contains(t, msg.Subject, "march.csv")
	assert.Contains(t, msg.TextContent, "ghost profiles: 1")
}

func TestService_Commit_idempotent(t *testing.T) {
	env := newTestEnv(t)
	batch, _, jane := env.stageFixture(t)

	_, err := env.svc.Commit(ctx, batch.ID)
	require.NoError(t, err)

	// second run: everything applied is skipped, nothing is created twice
	rpt, err := env.svc.Commit(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, rpt.Created)
	assert.Equal(t, 0, rpt.Updated)
	assert.Equal(t, 4, rpt.Skipped)
	assert.Equal(t, 1, rpt.Conflicts)
	assert.Equal(t, 1, rpt.Errors)
	assert.Equal(t, 0, rpt.Ghosts)

	// confirming the held conflict makes the third run apply just that row
	conflicts, err := env.svc.Queue(ctx, recon.QueryFilter{BatchID: batch.ID, Bucket: recon.BucketConflict})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	_, err = env.svc.ConfirmRow(ctx, conflicts[0].ID, jane.ID)
	require.NoError(t, err)

	rpt, err = env.svc.Commit(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rpt.Created)
	assert.Equal(t, 0, rpt.Conflicts)
	assert.Equal(t, 5, rpt.Skipped)

	p, err := env.paymentRepo.GetPaymentByProviderUID(ctx, "conf-1")
	require.NoError(t, err)
	assert.Equal(t, jane.ID, p.ContactID.String)
}

func TestService_Commit_rejectedRowNeverApplied(t *testing.T) {
	env := newTestEnv(t)
	batch, _, _ := env.stageFixture(t)

	rows, err := env.svc.Queue(ctx, recon.QueryFilter{BatchID: batch.ID, Bucket: recon.BucketNew})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var rejectedUID string
	for _, sp := range rows {
		if sp.ProviderUID == "new-2" {
			rejectedUID = sp.ProviderUID
			_, err = env.svc.RejectRow(ctx, sp.ID)
			require.NoError(t, err)
		}
	}
	require.NotEmpty(t, rejectedUID)

	rpt, err := env.svc.Commit(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rpt.Created) // only new-1
	assert.Equal(t, 0, rpt.Ghosts)

	_, err = env.paymentRepo.GetPaymentByProviderUID(ctx, rejectedUID)
	assert.Equal(t, payment.ErrNotFound, errors.Cause(err))
}

func TestService_Commit_batchNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Commit(ctx, "nope")
	assert.Equal(t, recon.ErrBatchNotFound, errors.Cause(err))
}

func TestService_ConfirmRow(t *testing.T) {
	env := newTestEnv(t)
	batch, _, jane := env.stageFixture(t)

	rows, err := env.svc.Queue(ctx, recon.QueryFilter{BatchID: batch.ID})
	require.NoError(t, err)
	byUID := make(map[string]recon.StagedPayment, len(rows))
	for _, sp := range rows {
		byUID[sp.ProviderUID] = sp
	}

	t.Run("accepts the proposed link", func(t *testing.T) {
		sp, err := env.svc.ConfirmRow(ctx, byUID["new-1"].ID, "")
		require.NoError(t, err)
		assert.Equal(t, recon.ResolutionConfirmed, sp.Resolution)
		assert.Equal(t, recon.StrategyEmail, sp.MatchStrategy)
	})

	t.Run("operator override goes manual", func(t *testing.T) {
		sp, err := env.svc.ConfirmRow(ctx, byUID["new-2"].ID, jane.ID)
		require.NoError(t, err)
		assert.Equal(t, recon.ResolutionConfirmed, sp.Resolution)
		assert.Equal(t, jane.ID, sp.MatchContactID.String)
		assert.Equal(t, recon.StrategyManual, sp.MatchStrategy)
		assert.Equal(t, 1.0, sp.MatchConfidence)
	})

	t.Run("conflict needs an explicit contact", func(t *testing.T) {
		_, err := env.svc.ConfirmRow(ctx, byUID["conf-1"].ID, "")
		require.Error(t, err)
		vErr := new(core.ValidationError)
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("unknown contact is rejected", func(t *testing.T) {
		_, err := env.svc.ConfirmRow(ctx, byUID["conf-1"].ID, "nope")
		assert.Equal(t, contact.ErrNotFound, errors.Cause(err))
	})

	t.Run("error rows cannot be confirmed", func(t *testing.T) {
		_, err := env.svc.ConfirmRow(ctx, byUID[""].ID, jane.ID)
		require.Error(t, err)
		vErr := new(core.ValidationError)
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("unknown row", func(t *testing.T) {
		_, err := env.svc.ConfirmRow(ctx, "nope", "")
		assert.Equal(t, recon.ErrRowNotFound, errors.Cause(err))
	})
}

func TestService_RejectRow(t *testing.T) {
	env := newTestEnv(t)
	batch, _, _ := env.stageFixture(t)

	rows, err := env.svc.Queue(ctx, recon.QueryFilter{BatchID: batch.ID, Bucket: recon.BucketConflict})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	sp, err := env.svc.RejectRow(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, recon.ResolutionRejected, sp.Resolution)

	// applied rows are final
	_, err = env.svc.Commit(ctx, batch.ID)
	require.NoError(t, err)
	applied, err := env.svc.Queue(ctx, recon.QueryFilter{BatchID: batch.ID, Resolution: recon.ResolutionApplied})
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	_, err = env.svc.RejectRow(ctx, applied[0].ID)
	require.Error(t, err)
	vErr := new(core.ValidationError)
	assert.True(t, errors.As(err, &vErr))
}

func TestService_Autolink(t *testing.T) {
	env := newTestEnv(t)

	jane := testutil.CreateContact(t, env.contactRepo, "Jane Doe", "jane@test.by", "", "", "", false)
	testutil.CreateContact(t, env.contactRepo, "Eve Adams", "eve@test.by", "", "", "fp-dup", false)
	testutil.CreateContact(t, env.contactRepo, "Eve Clone", "clone@test.by", "", "", "fp-dup", false)
	mary := testutil.CreateContact(t, env.contactRepo, "Mary Major", "mary@test.by", "", "0051", "", false)

	p1 := testutil.CreatePayment(t, env.paymentRepo, "al-1", "", "jane@test.by", "Jane Doe", 100, "BYN", bepaid.StatusSucceeded)
	p2, _, err := env.paymentRepo.UpsertPaymentByProviderUID(ctx, payment.Payment{
		ProviderUID:     "al-2",
		CardFingerprint: null.StringFrom("fp-dup"),
		AmountMinor:     200,
		Currency:        "BYN",
		Status:          bepaid.StatusSucceeded,
	})
	require.NoError(t, err)
	p3, _, err := env.paymentRepo.UpsertPaymentByProviderUID(ctx, payment.Payment{
		ProviderUID: "al-3",
		CardLast4:   null.StringFrom("0051"),
		AmountMinor: 300,
		Currency:    "BYN",
		Status:      bepaid.StatusSucceeded,
	})
	require.NoError(t, err)

	rpt, err := env.svc.Autolink(ctx)
	require.NoError(t, err)
	assert.Equal(t, recon.AutolinkReport{Scanned: 3, Linked: 1, Ambiguous: 1, Unmatched: 1}, rpt)

	linked, err := env.paymentRepo.GetPaymentByID(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, jane.ID, linked.ContactID.String)

	// a last4-only match clears a lowered confidence floor
	rpt, err = env.svc.WithMinAutolinkConfidence(0.7).Autolink(ctx)
	require.NoError(t, err)
	assert.Equal(t, recon.AutolinkReport{Scanned: 2, Linked: 1, Ambiguous: 1, Unmatched: 0}, rpt)

	linked, err = env.paymentRepo.GetPaymentByID(ctx, p3.ID)
	require.NoError(t, err)
	assert.Equal(t, mary.ID, linked.ContactID.String)

	// the ambiguous one stays unlinked
	ambiguous, err := env.paymentRepo.GetPaymentByID(ctx, p2.ID)
	require.NoError(t, err)
	assert.False(t, ambiguous.Linked())
}

func TestService_Autolink_keepsOperatorLinks(t *testing.T) {
	env := newTestEnv(t)

	alice := testutil.CreateContact(t, env.contactRepo, "Alice Smith", "alice@test.by", "", "", "", false)
	bob := testutil.CreateContact(t, env.contactRepo, "Bob Brown", "bob@test.by", "", "", "", false)
	o := testutil.CreateOrder(t, env.orderRepo, bob.ID, "Course X", 9990, "BYN")

	// an operator linked p1 to alice even though its email matches bob
	p1 := testutil.CreatePayment(t, env.paymentRepo, "kol-1", "", "bob@test.by", "Bob Brown", 100, "BYN", bepaid.StatusSucceeded)
	_, err := env.paymentRepo.LinkPayment(ctx, p1.ID, &alice.ID, nil)
	require.NoError(t, err)

	// p2 has its order linked but no contact yet
	p2 := testutil.CreatePayment(t, env.paymentRepo, "kol-2", "", "bob@test.by", "Bob Brown", 200, "BYN", bepaid.StatusSucceeded)
	_, err = env.paymentRepo.LinkPayment(ctx, p2.ID, nil, &o.ID)
	require.NoError(t, err)

	rpt, err := env.svc.Autolink(ctx)
	require.NoError(t, err)
	assert.Equal(t, recon.AutolinkReport{Scanned: 1, Linked: 1}, rpt)

	// the manual link survives the run
	got, err := env.paymentRepo.GetPaymentByID(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ContactID.String)

	// p2 gains its contact without losing its order
	got, err = env.paymentRepo.GetPaymentByID(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.ContactID.String)
	assert.Equal(t, o.ID, got.OrderID.String)
}

func TestService_UnlinkedDetail(t *testing.T) {
	env := newTestEnv(t)

	jane := testutil.CreateContact(t, env.contactRepo, "Jane Doe", "jane@test.by", "", "0051", "", false)
	p := testutil.CreatePayment(t, env.paymentRepo, "ud-1", "", "jane@test.by", "Jane Doe", 100, "BYN", bepaid.StatusSucceeded)

	got, candidates, err := env.svc.UnlinkedDetail(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	require.NotEmpty(t, candidates)
	assert.Equal(t, jane.ID, candidates[0].ContactID)
	assert.Equal(t, recon.StrategyEmail, candidates[0].Strategy)

	_, _, err = env.svc.UnlinkedDetail(ctx, "nope")
	assert.Equal(t, payment.ErrNotFound, errors.Cause(err))
}

func TestService_Purge(t *testing.T) {
	env := newTestEnv(t)
	batch, _, _ := env.stageFixture(t)

	data := "UID,Amount,Status\nother-1,10.00,succeeded\n"
	other, _, err := env.svc.Stage(ctx, "april.csv", strings.NewReader(data))
	require.NoError(t, err)

	t.Run("needs a cutoff or IDs", func(t *testing.T) {
		_, err := env.svc.Purge(ctx, time.Time{})
		require.Error(t, err)
		vErr := new(core.ValidationError)
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("by ID, rows cascade", func(t *testing.T) {
		n, err := env.svc.Purge(ctx, time.Time{}, batch.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = env.svc.GetBatch(ctx, batch.ID)
		assert.Equal(t, recon.ErrBatchNotFound, errors.Cause(err))
		rows, err := env.svc.Queue(ctx, recon.QueryFilter{BatchID: batch.ID})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("by cutoff", func(t *testing.T) {
		n, err := env.svc.Purge(ctx, time.Now().UTC().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = env.svc.GetBatch(ctx, other.ID)
		assert.Equal(t, recon.ErrBatchNotFound, errors.Cause(err))
	})
}
