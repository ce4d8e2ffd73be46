// Package disbursement hands materialized payouts to the payment rail. The
// rail confirms asynchronously through payout.Service.MarkPayoutComplete.
package disbursement

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrMethodNotSupported = errors.New("payout_method_not_supported")
	ErrInvalidRequest     = errors.New("invalid_disbursement_request")
)

// Request is one payout handed to a rail.
type Request struct {
	PayoutID    snowflake.ID
	CreatorID   snowflake.ID
	Amount      decimal.Decimal
	Currency    string
	Method      string
	Destination string
}

func (r Request) Validate() error {
	switch {
	case r.PayoutID == 0:
		return errors.Join(ErrInvalidRequest, errors.New("payout id is required"))
	case r.CreatorID == 0:
		return errors.Join(ErrInvalidRequest, errors.New("creator id is required"))
	case !r.Amount.IsPositive():
		return errors.Join(ErrInvalidRequest, errors.New("amount must be positive"))
	case strings.TrimSpace(r.Destination) == "":
		return errors.Join(ErrInvalidRequest, errors.New("destination is required"))
	}
	return nil
}

// Dispatcher accepts a payout for disbursement. A nil error means the rail
// took ownership; it does not mean funds moved.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// MethodDispatcher is a Dispatcher bound to one payout method.
type MethodDispatcher interface {
	Dispatcher
	Method() string
}

// LogDispatcher records the hand-off and accepts it. It stands in for rails
// that confirm out of band.
type LogDispatcher struct {
	method string
	log    *zap.Logger
}

func NewLogDispatcher(method string, log *zap.Logger) *LogDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDispatcher{
		method: normalizeMethod(method),
		log:    log.Named("disbursement"),
	}
}

func (d *LogDispatcher) Method() string { return d.method }

func (d *LogDispatcher) Dispatch(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d.log.Info("disbursement.handoff",
		zap.String("payout_id", req.PayoutID.String()),
		zap.String("creator_id", req.CreatorID.String()),
		zap.String("method", d.method),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("currency", req.Currency),
	)
	return nil
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}
