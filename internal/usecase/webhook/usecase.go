package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"halonet-payments/internal/apperrors"
	domain "halonet-payments/internal/domain/webhook"
	"halonet-payments/internal/infrastructure/logging"
	"halonet-payments/internal/usecase/submission"
	"halonet-payments/pkg/id"
)

const (
	SignatureHeader = "X-Halonet-Signature"
	TimestampHeader = "X-Halonet-Timestamp"
	maxSkew         = 5 * time.Minute
)

var knownTypes = map[string]bool{
	domain.EventPaymentProcessing: true,
	domain.EventPaymentCompleted:  true,
	domain.EventPaymentReturned:   true,
	domain.EventPaymentFailed:     true,
}

// Applier moves entries as providers report them.
type Applier interface {
	ApplyProviderEvent(ctx context.Context, ev submission.ProviderEvent) (*submission.EntryDTO, error)
}

type Usecase struct {
	endpoints domain.Repository
	applier   Applier
	now       func() time.Time
}

func NewUsecase(endpoints domain.Repository, applier Applier) *Usecase {
	return &Usecase{endpoints: endpoints, applier: applier, now: time.Now}
}

func (u *Usecase) Register(ctx context.Context, in RegisterInput) (*EndpointDTO, error) {
	ve := &apperrors.ValidationError{}
	if in.CompanyID == "" {
		ve.Add(-1, "company_id is required")
	}
	if parsed, err := url.Parse(in.WebhookURL); err != nil || parsed.Host == "" || (parsed.Scheme != "https" && parsed.Scheme != "http") {
		ve.Add(-1, "webhook_url must be an absolute http(s) url")
	}
	for _, t := range in.EventTypes {
		if !knownTypes[t] {
			ve.Add(-1, "unknown event type "+t)
		}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	secret := in.Secret
	if secret == "" {
		secret = id.NewID32() + id.NewID32()
	}

	ep := &domain.Endpoint{
		EndpointID: id.NewID32(),
		CompanyID:  in.CompanyID,
		WebhookURL: in.WebhookURL,
		Secret:     secret,
		IsActive:   true,
	}
	ep.SetEventTypes(in.EventTypes)
	if err := u.endpoints.Create(ctx, ep); err != nil {
		logging.LogError(ctx, "webhook", "Register", "create endpoint", in.CompanyID, err)
		return nil, err
	}
	logging.FromContext(ctx).WithFields(map[string]any{
		"company_id": in.CompanyID, "endpoint_id": ep.EndpointID,
	}).Info("webhook: endpoint registered")
	return &EndpointDTO{Endpoint: *ep, Secret: secret}, nil
}

// Sign produces the signature header value for a body sent at ts.
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Receive authenticates a provider callback and applies it. Event types the
// endpoint did not subscribe to are acknowledged and dropped, returning nil.
func (u *Usecase) Receive(ctx context.Context, d Delivery) (*submission.EntryDTO, error) {
	ep, err := u.endpoints.GetByEndpointID(ctx, d.EndpointID)
	if err != nil {
		return nil, err
	}
	if err := u.verify(ep, d); err != nil {
		logging.FromContext(ctx).WithField("endpoint_id", d.EndpointID).Warn("webhook: " + err.Error())
		return nil, err
	}

	var cb Callback
	if err := json.Unmarshal(d.Body, &cb); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "callback body: %v", err)
	}
	if !ep.Accepts(cb.Type) {
		logging.FromContext(ctx).WithFields(map[string]any{
			"endpoint_id": ep.EndpointID, "event_type": cb.Type,
		}).Info("webhook: event type not subscribed, ignored")
		return nil, nil
	}
	return u.applier.ApplyProviderEvent(ctx, submission.ProviderEvent{
		CompanyID:         ep.CompanyID,
		Type:              cb.Type,
		EntryID:           cb.EntryID,
		ProviderPaymentID: cb.ProviderPaymentID,
		ReturnCode:        cb.ReturnCode,
		ReturnReason:      cb.ReturnReason,
		Reason:            cb.Reason,
		OccurredAt:        cb.OccurredAt,
	})
}

func (u *Usecase) verify(ep *domain.Endpoint, d Delivery) error {
	secs, err := strconv.ParseInt(strings.TrimSpace(d.Timestamp), 10, 64)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrAuthorization, "missing or malformed %s", TimestampHeader)
	}
	skew := u.now().Sub(time.Unix(secs, 0))
	if skew > maxSkew || skew < -maxSkew {
		return apperrors.Wrap(apperrors.ErrAuthorization, "callback timestamp outside the allowed window")
	}
	want := Sign(ep.Secret, d.Timestamp, d.Body)
	if !hmac.Equal([]byte(want), []byte(strings.TrimSpace(d.Signature))) {
		return apperrors.Wrap(apperrors.ErrAuthorization, "signature mismatch")
	}
	return nil
}
