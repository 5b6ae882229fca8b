package middleware

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/vitwit/payless/types"
	"github.com/vitwit/payless/utils"
	"github.com/vitwit/payless/verification"
	"github.com/vitwit/payless/webhooks"
)

// PaymentEvents is notified of confirmed payments.
type PaymentEvents interface {
	EmitPaymentConfirmed(ctx context.Context, data types.PaymentEventData) (*webhooks.Batch, error)
}

type price struct {
	text   string
	amount decimal.Decimal
}

// PaymentGate requires a valid X-Payment proof for every priced path. The
// wrapped handler runs at most once per request, and only after the proof
// verified.
type PaymentGate struct {
	base
	verifier    *verification.Service
	events      PaymentEvents
	pricing     map[string]price
	free        map[string]bool
	currency    string
	facilitator string
}

// PaymentOption configures a PaymentGate.
type PaymentOption func(*PaymentGate)

// WithPaymentEvents sends payment.confirmed events after successful requests.
func WithPaymentEvents(e PaymentEvents) PaymentOption {
	return func(g *PaymentGate) {
		g.events = e
	}
}

// WithGateOptions applies shared gate options.
func WithGateOptions(opts ...Option) PaymentOption {
	return func(g *PaymentGate) {
		for _, opt := range opts {
			opt(&g.base)
		}
	}
}

// NewPaymentGate builds a gate from the pricing, free endpoint and currency
// settings of cfg.
func NewPaymentGate(cfg *types.Config, verifier *verification.Service, opts ...PaymentOption) (*PaymentGate, error) {
	g := &PaymentGate{
		base:        newBase("payment", nil),
		verifier:    verifier,
		pricing:     make(map[string]price, len(cfg.Pricing)),
		free:        make(map[string]bool, len(cfg.FreeEndpoints)),
		currency:    cfg.Currency,
		facilitator: cfg.FacilitatorURL,
	}
	for path, text := range cfg.Pricing {
		amount, err := utils.ValidateAmount(text)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidConfig, "price for %s: %v", path, err)
		}
		g.pricing[path] = price{text: text, amount: *amount}
	}
	for _, path := range cfg.FreeEndpoints {
		g.free[path] = true
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Wrap gates next using the configured price of the request path.
func (g *PaymentGate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, func(w *statusRecorder, ev *types.AnalyticsEvent) {
			g.handle(w, r, ev, next, nil)
		})
	})
}

// WrapPrice gates next at a fixed price regardless of the pricing table.
func (g *PaymentGate) WrapPrice(amount string, next http.Handler) (http.Handler, error) {
	d, err := utils.ValidateAmount(amount)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfig, "price: %v", err)
	}
	fixed := &price{text: amount, amount: *d}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, func(w *statusRecorder, ev *types.AnalyticsEvent) {
			g.handle(w, r, ev, next, fixed)
		})
	}), nil
}

// Challenge returns the 402 body for amount.
func (g *PaymentGate) Challenge(amount string) types.PaymentChallenge {
	return types.PaymentChallenge{
		Status:  http.StatusPaymentRequired,
		Message: "Payment Required",
		Payment: types.PaymentRequirements{
			Amount:      amount,
			Currency:    g.currency,
			Facilitator: g.facilitator,
			Chains:      g.verifier.PaymentInfo(),
		},
	}
}

func (g *PaymentGate) handle(w *statusRecorder, r *http.Request, ev *types.AnalyticsEvent, next http.Handler, fixed *price) {
	path := r.URL.Path
	if fixed == nil && g.free[path] {
		next.ServeHTTP(w, r)
		return
	}

	ev.PaymentRequired = true
	p, ok := g.pricing[path]
	if fixed != nil {
		p, ok = *fixed, true
	}
	if !ok {
		ev.Error = "endpoint not configured"
		g.log.Error("no price configured for gated endpoint", map[string]any{"endpoint": path})
		WriteError(w, http.StatusInternalServerError, types.CodeEndpointNotConfigured, "Endpoint not configured", "")
		return
	}
	amount := p.amount
	ev.Amount = &amount

	header := r.Header.Get(types.HeaderPayment)
	if header == "" {
		WriteJSON(w, http.StatusPaymentRequired, g.Challenge(p.text))
		return
	}
	ev.PaymentProvided = true

	proof, err := utils.ParsePaymentProof(header)
	if err != nil {
		ev.Error = err.Error()
		WriteError(w, http.StatusPaymentRequired, types.CodePaymentMalformed, "Malformed payment header", err.Error())
		return
	}
	ev.Wallet = proof.From
	ev.Chain = proof.Chain

	res, err := g.verifier.Verify(r.Context(), proof, p.amount)
	if err != nil {
		ev.Error = err.Error()
		WriteError(w, http.StatusInternalServerError, types.CodeInternalError, "Payment verification unavailable", "")
		return
	}
	if !res.Valid {
		ev.Error = res.Reason()
		code := types.CodeInvalidPayment
		switch res.Kind() {
		case types.VerifyUnsupportedChain:
			code = types.CodeUnsupportedChain
		case types.VerifyMalformed:
			code = types.CodePaymentMalformed
		}
		WriteError(w, http.StatusPaymentRequired, code, "Payment verification failed", res.Reason())
		return
	}
	ev.PaymentValid = true

	w.Header().Set(types.HeaderPaymentConfirmed, res.Signature)
	w.Header().Set(types.HeaderPaymentChain, string(res.Chain))

	next.ServeHTTP(w, r)

	g.notify(r, proof, res, p.text)
}

func (g *PaymentGate) notify(r *http.Request, proof *types.PaymentProof, res types.VerificationResult, amount string) {
	if g.events == nil {
		return
	}
	data := types.PaymentEventData{
		PaymentID: proof.Nonce,
		Signature: res.Signature,
		Chain:     res.Chain,
		From:      res.Payer,
		To:        res.Recipient,
		Amount:    amount,
		Token:     res.Token,
		Endpoint:  r.URL.Path,
		Timestamp: g.now().UnixMilli(),
		Status:    "confirmed",
		Method:    r.Method,
		UserAgent: r.UserAgent(),
	}
	if _, err := g.events.EmitPaymentConfirmed(context.WithoutCancel(r.Context()), data); err != nil {
		g.log.Warn("payment webhook not triggered", map[string]any{"endpoint": data.Endpoint, "error": err})
	}
}
