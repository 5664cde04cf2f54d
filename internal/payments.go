package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"ingenico/config"
	"ingenico/entity"
	"ingenico/gateway"
	"ingenico/services"
)

var validate = validator.New()

// Payments runs the gateway operations shared by DirectLink and e-Commerce:
// maintenance of existing payments, status queries and the plumbing every
// gateway call goes through.
// Work on a single payment is serialized by the locker, so concurrent
// maintenance calls and feedback callbacks cannot interleave.
type Payments struct {
	conf      *config.Config
	database  services.Database
	logger    services.LogHandler
	locker    services.Locker
	publisher services.Publisher
	transport services.Transport
	metrics   *Metrics
	now       func() time.Time
}

func NewPayments(conf *config.Config) *Payments {
	return &Payments{
		conf:      conf,
		logger:    NewLogger("payments", conf.IsDebug, nil),
		locker:    NewLocalLocker(),
		transport: NewHttpTransport(conf.Gateway.Timeout),
		now:       time.Now,
	}
}

func (p *Payments) SetDatabase(database services.Database) {
	p.database = database
}

func (p *Payments) SetLogger(logger services.LogHandler) {
	p.logger = logger
	if _, err := p.credentials(); err != nil {
		p.logger.Warn(fmt.Sprintf("gateway not configured: %v", err))
	} else {
		p.logger.Info(fmt.Sprintf("gateway enabled: pspid %s; mode %s", p.conf.Gateway.PspId, p.conf.Gateway.Mode))
	}
}

func (p *Payments) SetLocker(locker services.Locker) {
	p.locker = locker
}

func (p *Payments) SetPublisher(publisher services.Publisher) {
	p.publisher = publisher
}

func (p *Payments) SetTransport(transport services.Transport) {
	p.transport = transport
}

func (p *Payments) SetMetrics(metrics *Metrics) {
	p.metrics = metrics
}

func (p *Payments) credentials() (gateway.Credentials, error) {
	algorithm, err := gateway.ParseHashAlgorithm(p.conf.Gateway.ShaAlgorithm)
	if err != nil {
		return gateway.Credentials{}, err
	}
	return gateway.Credentials{
		PspId:     p.conf.Gateway.PspId,
		UserId:    p.conf.Gateway.UserId,
		Password:  p.conf.Gateway.Password,
		ShaIn:     p.conf.Gateway.ShaIn,
		ShaOut:    p.conf.Gateway.ShaOut,
		Algorithm: algorithm,
	}, nil
}

func (p *Payments) outSigner() (*gateway.Signer, error) {
	credentials, err := p.credentials()
	if err != nil {
		return nil, err
	}
	if credentials.ShaOut == "" {
		return nil, gateway.NewConfigError("sha_out", "SHA-OUT passphrase is not set")
	}
	return gateway.NewSigner(credentials.ShaOut, credentials.Algorithm), nil
}

func (p *Payments) endpoints() (gateway.Endpoints, error) {
	environment, err := gateway.ParseEnvironment(p.conf.Gateway.Mode)
	if err != nil {
		return gateway.Endpoints{}, err
	}
	return gateway.NewEndpoints(environment, p.conf.Gateway.WhitelabelUrl()), nil
}

// build validates and signs a request without sending it.
func (p *Payments) build(request gateway.Request) (*gateway.SignedRequest, error) {
	credentials, err := p.credentials()
	if err != nil {
		return nil, err
	}
	builder, err := gateway.NewBuilder(credentials)
	if err != nil {
		return nil, err
	}
	return builder.Build(request)
}

// send builds the request and posts it.
func (p *Payments) send(ctx context.Context, request gateway.Request, success gateway.StatusSet) (*gateway.Response, error) {
	signed, err := p.build(request)
	if err != nil {
		p.metrics.observeRequest(request.Kind(), p.now(), err)
		return nil, err
	}
	return p.post(ctx, signed, success)
}

// post sends a signed request and checks the reply. Signed replies are always
// verified; alias replies must be signed. When the status is outside the
// success set the response is returned together with a *gateway.DeclineError.
// A nil success set only checks NCERROR.
func (p *Payments) post(ctx context.Context, signed *gateway.SignedRequest, success gateway.StatusSet) (*gateway.Response, error) {
	started := time.Now()
	response, err := p.exchange(ctx, signed)
	if err == nil && !accepted(response, success) {
		err = response.Decline()
	}
	p.metrics.observeRequest(signed.Kind, started, err)
	return response, err
}

func (p *Payments) exchange(ctx context.Context, signed *gateway.SignedRequest) (*gateway.Response, error) {
	endpoints, err := p.endpoints()
	if err != nil {
		return nil, err
	}
	url := endpoints.Url(signed.Kind)
	if p.conf.Gateway.LogRequests {
		p.logger.Debug(fmt.Sprintf("[%s] %s request %s: %s", GetRequestID(ctx), signed.Kind, url, signed.Masked()))
	}

	raw, err := p.transport.Post(ctx, url, signed.Encode())
	if err != nil {
		return nil, err
	}
	response, err := gateway.ParseResponse(signed.Kind, raw)
	if err != nil {
		return nil, err
	}
	if p.conf.Gateway.LogResponses {
		p.logger.Debug(fmt.Sprintf("[%s] %s response: %s", GetRequestID(ctx), signed.Kind, gateway.MaskFields(response.Fields).Encode()))
	}

	if signed.Kind == gateway.KindAlias || response.IsSigned() || p.conf.Gateway.SignedReplies {
		signer, err := p.outSigner()
		if err != nil {
			return nil, err
		}
		if err = response.Verify(signer); err != nil {
			return response, err
		}
	}
	return response, nil
}

func accepted(response *gateway.Response, success gateway.StatusSet) bool {
	if response.RequiresIdentification() {
		return true
	}
	if success == nil {
		code := response.ErrorCode()
		return code == "" || code == "0"
	}
	return response.Successful(success)
}

func (p *Payments) checkDatabase() error {
	if p.database == nil {
		return fmt.Errorf("database not set")
	}
	return nil
}

func (p *Payments) lockPayment(ctx context.Context, id string) (func(), error) {
	unlock, err := p.locker.Lock(ctx, "payment:"+id)
	if err != nil {
		return nil, fmt.Errorf("lock payment %s: %w", id, err)
	}
	return unlock, nil
}

// savePayment persists the payment and announces a state change.
func (p *Payments) savePayment(ctx context.Context, payment *entity.Payment, from entity.PaymentState) error {
	if err := p.database.UpdatePayment(ctx, payment); err != nil {
		return fmt.Errorf("save payment %s: %w", payment.Id, err)
	}
	if payment.State == from {
		return nil
	}
	p.logger.Info(fmt.Sprintf("payment %s: %s -> %s; remote %s status %s", payment.Id, from, payment.State, payment.RemoteId, payment.RemoteState))
	p.metrics.observeTransition(from, payment.State)
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, entity.NewPaymentEvent(payment, from)); err != nil {
			p.logger.Error(fmt.Sprintf("publish payment %s event", payment.Id), err)
		}
	}
	return nil
}

// applyPaymentStatus books a successful payment reply. It reports whether the
// payment changed; a repeated reply changes nothing.
func (p *Payments) applyPaymentStatus(payment *entity.Payment, response *gateway.Response) bool {
	status := response.Status()
	if gateway.IsCaptured(status) {
		return payment.Complete(response.PayId(), status, p.now())
	}
	return payment.Authorize(response.PayId(), status, p.now())
}

// withPayment loads a payment under its lock.
func (p *Payments) withPayment(ctx context.Context, id string, fn func(payment *entity.Payment) error) (*entity.Payment, error) {
	if err := p.checkDatabase(); err != nil {
		return nil, err
	}
	unlock, err := p.lockPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	payment, err := p.database.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err = fn(payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (p *Payments) GetPayment(ctx context.Context, id string) (*entity.Payment, error) {
	if err := p.checkDatabase(); err != nil {
		return nil, err
	}
	return p.database.GetPayment(ctx, id)
}

// CapturePayment captures amount, or the whole uncaptured balance when amount
// is nil. The balance is checked locally before anything is sent.
func (p *Payments) CapturePayment(ctx context.Context, id string, amount *decimal.Decimal) (*entity.Payment, error) {
	return p.withPayment(ctx, id, func(payment *entity.Payment) error {
		balance := payment.UncapturedAmount()
		value := balance
		if amount != nil {
			value = gateway.TruncateAmount(*amount)
		}
		if err := payment.ValidateCapture(value); err != nil {
			return err
		}
		operation := gateway.CaptureOperation(balance, value)
		response, err := p.maintain(ctx, payment, operation, value)
		if err != nil {
			return err
		}
		from := payment.State
		payment.ApplyCapture(value, response.Status(), p.now())
		return p.savePayment(ctx, payment, from)
	})
}

func (p *Payments) VoidPayment(ctx context.Context, id string) (*entity.Payment, error) {
	return p.withPayment(ctx, id, func(payment *entity.Payment) error {
		if err := payment.ValidateVoid(); err != nil {
			return err
		}
		response, err := p.maintain(ctx, payment, gateway.OperationAuthorizationDeleteAndClose, decimal.Zero)
		if err != nil {
			return err
		}
		from := payment.State
		payment.ApplyVoid(response.Status(), p.now())
		return p.savePayment(ctx, payment, from)
	})
}

// RefundPayment refunds amount, or the whole captured balance when amount is
// nil.
func (p *Payments) RefundPayment(ctx context.Context, id string, amount *decimal.Decimal) (*entity.Payment, error) {
	return p.withPayment(ctx, id, func(payment *entity.Payment) error {
		balance := payment.UnrefundedAmount()
		value := balance
		if amount != nil {
			value = gateway.TruncateAmount(*amount)
		}
		if err := payment.ValidateRefund(value); err != nil {
			return err
		}
		operation := gateway.RefundOperation(balance, value)
		response, err := p.maintain(ctx, payment, operation, value)
		if err != nil {
			return err
		}
		from := payment.State
		payment.ApplyRefund(value, response.Status(), p.now())
		return p.savePayment(ctx, payment, from)
	})
}

// RenewAuthorization extends the authorization; only the remote status is
// recorded.
func (p *Payments) RenewAuthorization(ctx context.Context, id string) (*entity.Payment, error) {
	return p.withPayment(ctx, id, func(payment *entity.Payment) error {
		if err := payment.ValidateRenew(); err != nil {
			return err
		}
		response, err := p.maintain(ctx, payment, gateway.OperationAuthorizationRenew, decimal.Zero)
		if err != nil {
			return err
		}
		if payment.UpdateRemoteState(response.Status(), p.now()) {
			return p.savePayment(ctx, payment, payment.State)
		}
		return nil
	})
}

// QueryPayment refreshes the remote status for reconciliation. The local
// state is never changed by a query. payIdSub selects one maintenance
// operation of the payment; empty means the payment itself.
func (p *Payments) QueryPayment(ctx context.Context, id string, payIdSub string) (*entity.Payment, error) {
	return p.withPayment(ctx, id, func(payment *entity.Payment) error {
		if payment.RemoteId == "" {
			return fmt.Errorf("%w: payment %s has no gateway reference", entity.ErrInvalidState, payment.Id)
		}
		response, err := p.send(ctx, &gateway.QueryRequest{PayId: payment.RemoteId, PayIdSub: payIdSub}, nil)
		if err != nil {
			p.logger.Warn(fmt.Sprintf("query payment %s: %v", payment.Id, err))
			return err
		}
		if payment.UpdateRemoteState(response.Status(), p.now()) {
			return p.savePayment(ctx, payment, payment.State)
		}
		return nil
	})
}

// maintain sends a maintenance request. A decline or a failed call leaves the
// payment untouched.
func (p *Payments) maintain(ctx context.Context, payment *entity.Payment, operation gateway.MaintenanceOperation, amount decimal.Decimal) (*gateway.Response, error) {
	if payment.RemoteId == "" {
		return nil, fmt.Errorf("%w: payment %s has no gateway reference", entity.ErrInvalidState, payment.Id)
	}
	request := &gateway.MaintenanceRequest{
		PayId:     payment.RemoteId,
		Operation: operation,
		Amount:    amount,
	}
	response, err := p.send(ctx, request, gateway.MaintenanceSuccess(operation))
	if err != nil {
		var decline *gateway.DeclineError
		if errors.As(err, &decline) {
			p.logger.Warn(fmt.Sprintf("payment %s: %s declined: %v", payment.Id, operation, err))
		} else {
			p.logger.Error(fmt.Sprintf("payment %s: %s", payment.Id, operation), err)
		}
		return nil, err
	}
	return response, nil
}

// orderId makes ORDERID unique across retries of the same order.
func orderId(number string, now time.Time) string {
	return fmt.Sprintf("%s-%d", number, now.Unix())
}

func checkPaymentRequest(request *entity.PaymentRequest) error {
	if request == nil {
		return gateway.NewConfigError("", "empty payment request")
	}
	if err := validate.Struct(request); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			return gateway.NewConfigError(errs[0].Namespace(), fmt.Sprintf("failed %q validation", errs[0].Tag()))
		}
		return gateway.NewConfigError("", err.Error())
	}
	if gateway.MinorUnits(request.Amount) <= 0 {
		return gateway.NewConfigError(gateway.FieldAmount, fmt.Sprintf("payment amount %s must be positive", request.Amount))
	}
	request.Amount = gateway.TruncateAmount(request.Amount)
	return nil
}

func customer(order entity.Order, holder string) gateway.Customer {
	name := order.Billing.FullName()
	if name == "" {
		name = holder
	}
	return gateway.Customer{
		Name:    name,
		Email:   order.Email,
		Address: order.Billing.Street(),
		Zip:     order.Billing.PostalCode,
		Town:    order.Billing.Locality,
		Country: order.Billing.CountryCode,
	}
}

func paymentOperation(capture bool) gateway.PaymentOperation {
	if capture {
		return gateway.OperationSale
	}
	return gateway.OperationAuthorization
}

func secret(some string) string {
	if len(some) > 5 {
		return fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		return "?"
	}
	return "***"
}
