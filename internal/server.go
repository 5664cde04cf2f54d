package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"ingenico/config"
	"ingenico/entity"
	"ingenico/gateway"
	"ingenico/services"
)

const (
	paymentMethods      = "/directlink/payment-methods"
	paymentMethod       = "/directlink/payment-methods/:method_id"
	directPayments      = "/directlink/payments"
	ecommercePayments   = "/ecommerce/payments"
	ecommerceReturn     = "/ecommerce/return"
	ecommerceNotify     = "/ecommerce/notify"
	ecommerceCancel     = "/ecommerce/cancel"
	paymentById         = "/payments/:payment_id"
	paymentCapture      = "/payments/:payment_id/capture"
	paymentVoid         = "/payments/:payment_id/void"
	paymentRefund       = "/payments/:payment_id/refund"
	paymentRenew        = "/payments/:payment_id/renew"
	paymentQuery        = "/payments/:payment_id/query"
	metricsPath         = "/metrics"
	maxRequestBodyBytes = 1 << 20
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	payments   services.Payments
	directLink services.DirectLink
	ecommerce  services.ECommerce
	logger     services.LogHandler
}

type errorResponse struct {
	Error     string `json:"error"`
	Status    string `json:"status,omitempty"`
	ErrorCode string `json:"ncerror,omitempty"`
	RequestId string `json:"request_id,omitempty"`
}

func NewServer(conf *config.Config) *Server {

	server := Server{
		conf:   conf,
		logger: NewLogger("server", conf.IsDebug, nil),
	}

	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler: router,
	}

	return &server
}

func (s *Server) Register(router *httprouter.Router) {
	router.POST(paymentMethods, s.createPaymentMethod)
	router.DELETE(paymentMethod, s.deletePaymentMethod)
	router.POST(directPayments, s.createDirectPayment)

	router.POST(ecommercePayments, s.createRedirect)
	router.GET(ecommerceReturn, s.feedback(channelReturn))
	router.POST(ecommerceReturn, s.feedback(channelReturn))
	router.GET(ecommerceNotify, s.feedback(channelNotify))
	router.POST(ecommerceNotify, s.feedback(channelNotify))
	router.GET(ecommerceCancel, s.feedback(channelCancel))

	router.GET(paymentById, s.getPayment)
	router.POST(paymentCapture, s.capturePayment)
	router.POST(paymentVoid, s.voidPayment)
	router.POST(paymentRefund, s.refundPayment)
	router.POST(paymentRenew, s.renewAuthorization)
	router.GET(paymentQuery, s.queryPayment)

	router.Handler(http.MethodGet, metricsPath, promhttp.Handler())
}

func (s *Server) SetPaymentsService(payments services.Payments) {
	s.payments = payments
}

func (s *Server) SetDirectLinkService(directLink services.DirectLink) {
	s.directLink = directLink
}

func (s *Server) SetECommerceService(ecommerce services.ECommerce) {
	s.ecommerce = ecommerce
}

func (s *Server) SetLogger(logger services.LogHandler) {
	s.logger = logger
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	if s.conf == nil {
		return fmt.Errorf("configuration not loaded")
	}

	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	if s.conf.Listen.TLS {
		s.logger.Info(fmt.Sprintf("starting https TLS on %s", serverAddress))
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Info(fmt.Sprintf("starting http on %s", serverAddress))
		err = s.httpServer.Serve(listener)
	}

	return err
}

func (s *Server) createPaymentMethod(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)

	var request entity.PaymentMethodRequest
	if err := decodeBody(r, &request, false); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] create payment method: %v", reqID, err))
		s.writeError(w, reqID, err)
		return
	}

	paymentMethod, err := s.directLink.CreatePaymentMethod(ctx, &request)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] create payment method", reqID), err)
		s.writeError(w, reqID, err)
		return
	}
	s.writeJson(w, reqID, http.StatusCreated, paymentMethod)
}

func (s *Server) deletePaymentMethod(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)

	methodId := ps.ByName("method_id")
	if err := s.directLink.DeletePaymentMethod(ctx, methodId); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] delete payment method %s: %v", reqID, methodId, err))
		s.writeError(w, reqID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createDirectPayment(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)

	var request entity.PaymentRequest
	if err := decodeBody(r, &request, false); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] direct payment: %v", reqID, err))
		s.writeError(w, reqID, err)
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] processing request: direct payment for order %s, amount %s %s", reqID, request.Order.Number, request.Amount, request.Currency))
	result, err := s.directLink.CreatePayment(ctx, &request, clientInfo(r))
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] direct payment for order %s", reqID, request.Order.Number), err)
		s.writeError(w, reqID, err)
		return
	}
	s.writeJson(w, reqID, http.StatusCreated, result)
}

func (s *Server) createRedirect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)

	var request entity.PaymentRequest
	if err := decodeBody(r, &request, false); err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] redirect payment: %v", reqID, err))
		s.writeError(w, reqID, err)
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] processing request: redirect for order %s, amount %s %s", reqID, request.Order.Number, request.Amount, request.Currency))
	redirect, err := s.ecommerce.CreateRedirect(ctx, &request, clientInfo(r))
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] redirect for order %s", reqID, request.Order.Number), err)
		s.writeError(w, reqID, err)
		return
	}
	s.writeJson(w, reqID, http.StatusCreated, redirect)
}

// feedback serves return, notify and cancel. The parameters come in the query
// string or, for POST, in the form body.
func (s *Server) feedback(channel feedbackChannel) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ctx := RequestContext(r)
		reqID := GetRequestID(ctx)

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		if err := r.ParseForm(); err != nil {
			s.logger.Warn(fmt.Sprintf("[%s] %s: parse form: %v", reqID, channel, err))
			s.writeError(w, reqID, gateway.NewTransportError(0, "malformed feedback", err))
			return
		}

		var payment *entity.Payment
		var err error
		switch channel {
		case channelReturn:
			payment, err = s.ecommerce.OnReturn(ctx, r.Form)
		case channelNotify:
			payment, err = s.ecommerce.OnNotify(ctx, r.Form)
		default:
			payment, err = s.ecommerce.OnCancel(ctx, r.Form)
		}
		if err != nil {
			s.logger.Error(fmt.Sprintf("[%s] %s for order %s", reqID, channel, r.Form.Get(gateway.FieldOrderId)), err)
			s.writeError(w, reqID, err)
			return
		}
		s.writeJson(w, reqID, http.StatusOK, payment)
	}
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)

	payment, err := s.payments.GetPayment(ctx, ps.ByName("payment_id"))
	if err != nil {
		s.writeError(w, reqID, err)
		return
	}
	s.writeJson(w, reqID, http.StatusOK, payment)
}

func (s *Server) capturePayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)
	paymentId := ps.ByName("payment_id")

	var request entity.AmountRequest
	if err := decodeBody(r, &request, true); err != nil {
		s.writeError(w, reqID, err)
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] processing request: capture payment %s, amount %s", reqID, paymentId, amountText(request.Amount)))
	payment, err := s.payments.CapturePayment(ctx, paymentId, request.Amount)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] capture payment %s", reqID, paymentId), err)
		s.writeError(w, reqID, err)
		return
	}
	s.writeJson(w, reqID, http.StatusOK, payment)
}

func (s *Server) voidPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)
	paymentId := ps.ByName("payment_id")

	s.logger.Info(fmt.Sprintf("[%s] processing request: void payment %s", reqID, paymentId))
	payment, err := s.payments.VoidPayment(ctx, paymentId)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] void payment %s", reqID, paymentId), err)
		s.writeError(w, reqID, err)
		return
	}
	s.writeJson(w, reqID, http.StatusOK, payment)
}

func (s *Server) refundPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)
	paymentId := ps.ByName("payment_id")

	var request entity.AmountRequest
	if err := decodeBody(r, &request, true); err != nil {
		s.writeError(w, reqID, err)
		return
	}

	s.logger.Info(fmt.Sprintf("[%s] processing request: refund payment %s, amount %s", reqID, paymentId, amountText(request.Amount)))
	payment, err := s.payments.RefundPayment(ctx, paymentId, request.Amount)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] refund payment %s", reqID, paymentId), err)
		s.writeError(w, reqID, err)
		return
	}
	s.writeJson(w, reqID, http.StatusOK, payment)
}

func (s *Server) renewAuthorization(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)
	paymentId := ps.ByName("payment_id")

	payment, err := s.payments.RenewAuthorization(ctx, paymentId)
	if err != nil {
		s.logger.Error(fmt.Sprintf("[%s] renew payment %s", reqID, paymentId), err)
		s.writeError(w, reqID, err)
		return
	}
	s.writeJson(w, reqID, http.StatusOK, payment)
}

func (s *Server) queryPayment(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := RequestContext(r)
	reqID := GetRequestID(ctx)
	paymentId := ps.ByName("payment_id")
	payIdSub := r.URL.Query().Get("payidsub")

	payment, err := s.payments.QueryPayment(ctx, paymentId, payIdSub)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("[%s] query payment %s: %v", reqID, paymentId, err))
		s.writeError(w, reqID, err)
		return
	}
	s.writeJson(w, reqID, http.StatusOK, payment)
}

func (s *Server) writeJson(w http.ResponseWriter, reqID string, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(requestIDHeader, reqID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Error(fmt.Sprintf("[%s] encode response", reqID), err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, reqID string, err error) {
	response := errorResponse{
		Error:     err.Error(),
		RequestId: reqID,
	}
	var decline *gateway.DeclineError
	if errors.As(err, &decline) {
		response.Status = decline.Status
		response.ErrorCode = decline.ErrorCode
	}
	s.writeJson(w, reqID, httpStatus(err), response)
}

// httpStatus maps the error kinds onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, gateway.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidState), errors.Is(err, entity.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, entity.ErrInvalidAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gateway.ErrDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, gateway.ErrVerification):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrInvalidResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeBody reads a JSON body. An empty body is accepted when optional.
func decodeBody(r *http.Request, value any, optional bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		return gateway.NewConfigError("", fmt.Sprintf("read request body: %v", err))
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if optional {
			return nil
		}
		return gateway.NewConfigError("", "empty request body")
	}
	if err = json.Unmarshal(body, value); err != nil {
		return gateway.NewConfigError("", fmt.Sprintf("decode request body: %v", err))
	}
	return nil
}

// clientInfo takes the customer's address and browser headers from the
// inbound request.
func clientInfo(r *http.Request) entity.ClientInfo {
	ip := ""
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if ip == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip = host
	}
	if net.ParseIP(ip) == nil {
		ip = ""
	}
	return entity.ClientInfo{
		Ip:        ip,
		Accept:    r.Header.Get("Accept"),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

func amountText(amount *decimal.Decimal) string {
	if amount == nil {
		return "balance"
	}
	return amount.String()
}
