package stats

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jordanlanch/outreach/pkg/database/dbtest"
	"github.com/jordanlanch/outreach/pkg/delivery"
	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/enrollment"
)

var day = time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)
	log := delivery.NewAttemptLog(db)

	record := func(seq string, outcome delivery.Outcome, at time.Time) {
		require.NoError(t, log.Record(ctx, &delivery.Attempt{
			TenantID: "t1", EnrollmentID: "e-" + seq, SequenceID: seq, StepOrder: 1,
			Channel: domain.ChannelEmail, Recipient: "a@example.com", Outcome: outcome, CreatedAt: at,
		}))
	}
	record("s1", delivery.OutcomeSent, day.Add(9*time.Hour))
	record("s1", delivery.OutcomeSent, day.Add(10*time.Hour))
	record("s2", delivery.OutcomeFailed, day.Add(11*time.Hour))
	record("s2", delivery.OutcomeBounced, day.Add(12*time.Hour))
	record("s1", delivery.OutcomeSent, day.Add(-time.Hour))
	require.NoError(t, log.Record(ctx, &delivery.Attempt{
		TenantID: "t2", EnrollmentID: "x", SequenceID: "s9", StepOrder: 1,
		Channel: domain.ChannelSMS, Recipient: "+16502530000", Outcome: delivery.OutcomeSent, CreatedAt: day.Add(time.Hour),
	}))

	es := enrollment.NewStore(db)
	a, err := es.Enroll(ctx, "t1", "p1", "s1", day)
	require.NoError(t, err)
	_, err = es.OptOut(ctx, "t1", a.ID, day.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = es.Enroll(ctx, "t1", "p2", "s1", day)
	require.NoError(t, err)

	return NewService(db)
}

func TestSummary(t *testing.T) {
	svc := seed(t)
	sum, err := svc.Summary(context.Background(), Query{TenantID: "t1", From: day, To: day.Add(24 * time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Sent)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Bounced)
	assert.Equal(t, 1, sum.OptedOut)
	assert.Equal(t, 0, sum.Completed)
	assert.Equal(t, 1, sum.Active)
}

func TestSummaryBySequence(t *testing.T) {
	svc := seed(t)
	sum, err := svc.Summary(context.Background(), Query{TenantID: "t1", SequenceID: "s2", From: day, To: day.Add(24 * time.Hour)})
	require.NoError(t, err)

	assert.Zero(t, sum.Sent)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Bounced)
	assert.Zero(t, sum.Active)
}

func TestAttemptsAndWorkbook(t *testing.T) {
	ctx := context.Background()
	svc := seed(t)
	q := Query{TenantID: "t1", From: day, To: day.Add(24 * time.Hour)}

	attempts, err := svc.Attempts(ctx, q, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 4)
	assert.Equal(t, delivery.OutcomeSent, attempts[0].Outcome)
	assert.Equal(t, domain.ChannelEmail, attempts[0].Channel)

	sum, err := svc.Summary(ctx, q)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sum, attempts))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Attempts"}, f.GetSheetList())
	v, err := f.GetCellValue("Summary", "B4")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	rows, err := f.GetRows("Attempts")
	require.NoError(t, err)
	assert.Len(t, rows, 5)
	assert.Equal(t, "Outcome", rows[0][6])
}
