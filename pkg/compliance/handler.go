// Package compliance handles inbound STOP and HELP replies.
package compliance

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/delivery"
	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/enrollment"
	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/phone"
	"github.com/jordanlanch/outreach/pkg/prospects"
	"github.com/jordanlanch/outreach/pkg/suppression"
)

// DefaultHelpText is sent in reply to HELP when none is configured.
const DefaultHelpText = "You are receiving these messages because you were added to an outreach sequence. Reply STOP to opt out."

// Replier sends the HELP reply.
type Replier interface {
	Send(ctx context.Context, msg delivery.Message) (delivery.Result, error)
}

// Inbound is one reply received from a provider webhook.
type Inbound struct {
	TenantID string `json:"tenant_id"`
	From     string `json:"from"`
	Keyword  string `json:"keyword"`
	EventID  string `json:"event_id"`
}

// Outcome reports what HandleInbound did.
type Outcome struct {
	Action   Action `json:"action"`
	Identity string `json:"identity"`
	Keyword  string `json:"keyword"`
	OptedOut int    `json:"opted_out"`
	Replied  bool   `json:"replied"`
}

// Handler applies inbound compliance keywords.
type Handler struct {
	db         *database.Client
	suppressor *suppression.Suppressor
	replier    Replier
	helpText   string
	log        logger.Logger
	now        func() time.Time
}

// NewHandler creates an inbound handler. An empty helpText uses DefaultHelpText.
func NewHandler(db *database.Client, ledger *suppression.Ledger, ps *prospects.Store, es *enrollment.Store, replier Replier, helpText string, log logger.Logger) *Handler {
	if helpText == "" {
		helpText = DefaultHelpText
	}
	return &Handler{
		db:         db,
		suppressor: suppression.NewSuppressor(ledger, ps, es),
		replier:    replier,
		helpText:   helpText,
		log:        log,
		now:        time.Now,
	}
}

// HandleInbound applies one inbound reply. STOP suppresses the sender and
// opts every live enrollment reachable at that identity out; HELP sends the
// informational reply; anything else is recorded and ignored. A repeated
// EventID is ignored.
func (h *Handler) HandleInbound(ctx context.Context, in Inbound) (*Outcome, error) {
	identity := suppression.NormalizeIdentity(in.From)
	if identity == "" {
		return nil, domain.NewBadRequestError("from is required")
	}
	keyword := NormalizeKeyword(in.Keyword)
	out := &Outcome{Action: Classify(keyword), Identity: identity, Keyword: keyword}

	if in.EventID != "" {
		seen, err := h.seen(ctx, in.EventID)
		if err != nil {
			return nil, err
		}
		if seen {
			out.Action = ActionDuplicate
			return out, nil
		}
	}

	switch out.Action {
	case ActionStop:
		n, err := h.stop(ctx, in.TenantID, identity)
		if err != nil {
			return nil, err
		}
		out.OptedOut = n
	case ActionHelp:
		if err := h.help(ctx, identity); err != nil {
			return nil, err
		}
		out.Replied = true
	}

	if err := h.record(ctx, in, out); err != nil {
		return nil, err
	}
	h.log.Info("inbound keyword handled",
		"tenant_id", in.TenantID,
		"keyword", keyword,
		"action", out.Action,
		"opted_out", out.OptedOut,
	)
	return out, nil
}

func (h *Handler) stop(ctx context.Context, tenantID, identity string) (int, error) {
	res, err := h.suppressor.Suppress(ctx, suppression.Entry{
		TenantID: tenantID,
		Identity: identity,
		Reason:   suppression.ReasonStop,
	}, h.now())
	if err != nil {
		return 0, err
	}
	return res.OptedOut, nil
}

func (h *Handler) help(ctx context.Context, identity string) error {
	msg := delivery.Message{Channel: domain.ChannelSMS, To: identity, Body: h.helpText}
	if !phone.LooksLikePhone(identity) {
		msg.Channel = domain.ChannelEmail
		msg.Subject = "Help"
	}
	if _, err := h.replier.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed sending help reply: %w", err)
	}
	return nil
}

func (h *Handler) seen(ctx context.Context, eventID string) (bool, error) {
	n, err := h.db.Count(ctx, h.db.Builder().Select().Count("*").
		From(entsql.Table(database.TableInboundEvents)).
		Where(entsql.EQ("provider_event_id", eventID)))
	if err != nil {
		return false, fmt.Errorf("failed checking inbound events: %w", err)
	}
	return n > 0, nil
}

func (h *Handler) record(ctx context.Context, in Inbound, out *Outcome) error {
	_, err := h.db.Exec(ctx, h.db.Builder().Insert(database.TableInboundEvents).
		Columns("id", "tenant_id", "identity", "keyword", "action", "provider_event_id", "created_at").
		Values(uuid.NewString(), in.TenantID, out.Identity, out.Keyword, string(out.Action),
			database.NullString(in.EventID), database.Timestamp(h.now())).
		OnConflict(entsql.ConflictColumns("provider_event_id"), entsql.DoNothing()))
	if err != nil {
		return fmt.Errorf("failed recording inbound event: %w", err)
	}
	return nil
}
