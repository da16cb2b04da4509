package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/outreach/pkg/database/dbtest"
	"github.com/jordanlanch/outreach/pkg/delivery"
	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/enrollment"
	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/prospects"
	"github.com/jordanlanch/outreach/pkg/providers"
	"github.com/jordanlanch/outreach/pkg/suppression"
)

type replies struct {
	sent []delivery.Message
	err  error
}

func (r *replies) Send(_ context.Context, msg delivery.Message) (delivery.Result, error) {
	if r.err != nil {
		return delivery.Result{}, r.err
	}
	r.sent = append(r.sent, msg)
	return delivery.Result{ProviderMessageID: "r-1"}, nil
}

type fixture struct {
	handler     *Handler
	ledger      *suppression.Ledger
	prospects   *prospects.Store
	enrollments *enrollment.Store
	replies     *replies
}

func setup(t *testing.T) *fixture {
	db := dbtest.Open(t)
	f := &fixture{
		ledger:      suppression.NewLedger(db),
		prospects:   prospects.NewStore(db),
		enrollments: enrollment.NewStore(db),
		replies:     &replies{},
	}
	f.handler = NewHandler(db, f.ledger, f.prospects, f.enrollments, f.replies, "", logger.Nop())
	return f
}

func (f *fixture) prospect(t *testing.T, tenantID, externalID, phoneNumber string) *prospects.Prospect {
	db := f.handler.db
	intake := prospects.NewIntake(db, prospects.NewFilterStore(db), providers.NewRegistry(), logger.Nop())
	_, err := intake.Ingest(context.Background(), tenantID, providers.Filters{}, []providers.Record{{
		Provider:   "apollo",
		ExternalID: externalID,
		FirstName:  "Ada",
		Phone:      phoneNumber,
	}})
	require.NoError(t, err)
	p, err := f.prospects.FindByKey(context.Background(), tenantID, "apollo", externalID)
	require.NoError(t, err)
	return p
}

func TestClassify(t *testing.T) {
	for _, kw := range []string{"STOP", "STOPALL", "UNSUBSCRIBE", "CANCEL", "END", "QUIT"} {
		assert.Equal(t, ActionStop, Classify(kw), kw)
	}
	assert.Equal(t, ActionHelp, Classify("HELP"))
	assert.Equal(t, ActionHelp, Classify("INFO"))
	assert.Equal(t, ActionIgnore, Classify("THANKS"))
	assert.Equal(t, ActionIgnore, Classify(""))
}

func TestNormalizeKeyword(t *testing.T) {
	assert.Equal(t, "STOP", NormalizeKeyword("  stop "))
	assert.Equal(t, "STOP", NormalizeKeyword("Stop."))
	assert.Equal(t, "HELP", NormalizeKeyword("help me please"))
	assert.Empty(t, NormalizeKeyword("   "))
}

func TestStopOptsOutEveryLiveEnrollment(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	now := time.Now()

	p := f.prospect(t, "t1", "p-1", "+1 (650) 253-0000")
	other := f.prospect(t, "t1", "p-2", "+442071838750")

	a, err := f.enrollments.Enroll(ctx, "t1", p.ID, "seq-a", now)
	require.NoError(t, err)
	b, err := f.enrollments.Enroll(ctx, "t1", p.ID, "seq-b", now)
	require.NoError(t, err)
	_, err = f.enrollments.Pause(ctx, "t1", b.ID, now)
	require.NoError(t, err)
	untouched, err := f.enrollments.Enroll(ctx, "t1", other.ID, "seq-a", now)
	require.NoError(t, err)

	out, err := f.handler.HandleInbound(ctx, Inbound{TenantID: "t1", From: "+16502530000", Keyword: " stop ", EventID: "ev-1"})
	require.NoError(t, err)
	assert.Equal(t, ActionStop, out.Action)
	assert.Equal(t, 2, out.OptedOut)

	for _, id := range []string{a.ID, b.ID} {
		e, err := f.enrollments.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, enrollment.StatusOptedOut, e.Status)
	}
	e, err := f.enrollments.GetByID(ctx, untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, e.Status)

	suppressed, err := f.ledger.IsSuppressed(ctx, "t1", "+16502530000")
	require.NoError(t, err)
	assert.True(t, suppressed)
	suppressed, err = f.ledger.IsSuppressed(ctx, "t2", "+16502530000")
	require.NoError(t, err)
	assert.False(t, suppressed, "a tenant STOP does not leak to other tenants")
}

func TestGlobalStopWithoutTenant(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.prospect(t, "t9", "p-1", "+16502530000")
	e, err := f.enrollments.Enroll(ctx, "t9", p.ID, "seq-a", time.Now())
	require.NoError(t, err)

	out, err := f.handler.HandleInbound(ctx, Inbound{From: "+16502530000", Keyword: "QUIT"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.OptedOut)

	got, err := f.enrollments.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusOptedOut, got.Status)

	suppressed, err := f.ledger.IsSuppressed(ctx, "any-tenant", "+16502530000")
	require.NoError(t, err)
	assert.True(t, suppressed)
}

func TestDuplicateEventIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	out, err := f.handler.HandleInbound(ctx, Inbound{TenantID: "t1", From: "+16502530000", Keyword: "HELP", EventID: "ev-9"})
	require.NoError(t, err)
	assert.True(t, out.Replied)

	out, err = f.handler.HandleInbound(ctx, Inbound{TenantID: "t1", From: "+16502530000", Keyword: "HELP", EventID: "ev-9"})
	require.NoError(t, err)
	assert.Equal(t, ActionDuplicate, out.Action)
	assert.Len(t, f.replies.sent, 1)
}

func TestHelpRepliesWithoutStateChange(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p := f.prospect(t, "t1", "p-1", "+16502530000")
	e, err := f.enrollments.Enroll(ctx, "t1", p.ID, "seq-a", time.Now())
	require.NoError(t, err)

	out, err := f.handler.HandleInbound(ctx, Inbound{TenantID: "t1", From: "+16502530000", Keyword: "info"})
	require.NoError(t, err)
	assert.Equal(t, ActionHelp, out.Action)

	require.Len(t, f.replies.sent, 1)
	assert.Equal(t, domain.ChannelSMS, f.replies.sent[0].Channel)
	assert.Equal(t, "+16502530000", f.replies.sent[0].To)
	assert.Equal(t, DefaultHelpText, f.replies.sent[0].Body)

	got, err := f.enrollments.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, got.Status)
}

func TestHelpReplyFailure(t *testing.T) {
	f := setup(t)
	f.replies.err = errors.New("twilio down")

	_, err := f.handler.HandleInbound(context.Background(), Inbound{TenantID: "t1", From: "+16502530000", Keyword: "HELP", EventID: "ev-2"})
	require.Error(t, err)

	f.replies.err = nil
	out, err := f.handler.HandleInbound(context.Background(), Inbound{TenantID: "t1", From: "+16502530000", Keyword: "HELP", EventID: "ev-2"})
	require.NoError(t, err)
	assert.True(t, out.Replied, "a failed event is not recorded, so the provider retry is processed")
}

func TestOtherKeywordsAreIgnored(t *testing.T) {
	f := setup(t)
	out, err := f.handler.HandleInbound(context.Background(), Inbound{TenantID: "t1", From: "Ada@Example.com", Keyword: "thanks!"})
	require.NoError(t, err)
	assert.Equal(t, ActionIgnore, out.Action)
	assert.Equal(t, "ada@example.com", out.Identity)
	assert.Empty(t, f.replies.sent)
}

func TestMissingSender(t *testing.T) {
	f := setup(t)
	_, err := f.handler.HandleInbound(context.Background(), Inbound{TenantID: "t1", Keyword: "STOP"})
	assert.True(t, domain.IsBadRequest(err))
}
