package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ingenico/config"
	"ingenico/entity"
	"ingenico/services"
)

const (
	collectionLog            = "payment_log"
	collectionPayments       = "payments"
	collectionPaymentMethods = "payment_methods"
)

type MongoDB struct {
	client   *mongo.Client
	database string
}

// paymentRecord is the stored form of entity.Payment; amounts are kept as
// decimal strings so no precision is lost.
type paymentRecord struct {
	Id               string              `bson:"payment_id"`
	Gateway          string              `bson:"gateway"`
	Test             bool                `bson:"test"`
	Order            entity.Order        `bson:"order"`
	OrderId          string              `bson:"order_id"`
	PaymentMethodId  string              `bson:"payment_method_id,omitempty"`
	Amount           string              `bson:"amount"`
	Currency         string              `bson:"currency"`
	State            entity.PaymentState `bson:"state"`
	RemoteId         string              `bson:"remote_id,omitempty"`
	RemoteState      string              `bson:"remote_state,omitempty"`
	AuthorizedAmount string              `bson:"authorized_amount"`
	CapturedAmount   string              `bson:"captured_amount"`
	RefundedAmount   string              `bson:"refunded_amount"`
	AuthorizedTime   *time.Time          `bson:"authorized_time,omitempty"`
	CompletedTime    *time.Time          `bson:"completed_time,omitempty"`
	CreatedTime      time.Time           `bson:"created_time"`
	ChangedTime      time.Time           `bson:"changed_time"`
	Version          int64               `bson:"version"`
}

func newPaymentRecord(p *entity.Payment) *paymentRecord {
	return &paymentRecord{
		Id:               p.Id,
		Gateway:          p.Gateway,
		Test:             p.Test,
		Order:            p.Order,
		OrderId:          p.OrderId,
		PaymentMethodId:  p.PaymentMethodId,
		Amount:           p.Amount.String(),
		Currency:         p.Currency,
		State:            p.State,
		RemoteId:         p.RemoteId,
		RemoteState:      p.RemoteState,
		AuthorizedAmount: p.AuthorizedAmount.String(),
		CapturedAmount:   p.CapturedAmount.String(),
		RefundedAmount:   p.RefundedAmount.String(),
		AuthorizedTime:   p.AuthorizedTime,
		CompletedTime:    p.CompletedTime,
		CreatedTime:      p.CreatedTime,
		ChangedTime:      p.ChangedTime,
		Version:          p.Version,
	}
}

func (r *paymentRecord) payment() (*entity.Payment, error) {
	amounts := make([]decimal.Decimal, 4)
	for i, value := range []string{r.Amount, r.AuthorizedAmount, r.CapturedAmount, r.RefundedAmount} {
		if value == "" {
			continue
		}
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("payment %s: amount %q: %w", r.Id, value, err)
		}
		amounts[i] = amount
	}
	return &entity.Payment{
		Id:               r.Id,
		Gateway:          r.Gateway,
		Test:             r.Test,
		Order:            r.Order,
		OrderId:          r.OrderId,
		PaymentMethodId:  r.PaymentMethodId,
		Amount:           amounts[0],
		Currency:         r.Currency,
		State:            r.State,
		RemoteId:         r.RemoteId,
		RemoteState:      r.RemoteState,
		AuthorizedAmount: amounts[1],
		CapturedAmount:   amounts[2],
		RefundedAmount:   amounts[3],
		AuthorizedTime:   r.AuthorizedTime,
		CompletedTime:    r.CompletedTime,
		CreatedTime:      r.CreatedTime,
		ChangedTime:      r.ChangedTime,
		Version:          r.Version,
	}, nil
}

func NewMongoClient(ctx context.Context, conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	m := &MongoDB{
		client:   client,
		database: conf.Mongo.Database,
	}
	if err = m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *MongoDB) ensureIndexes(ctx context.Context) error {
	_, err := m.collection(collectionPayments).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "payment_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "order_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("payments indexes: %w", err)
	}
	_, err = m.collection(collectionPaymentMethods).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "method_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("payment methods index: %w", err)
	}
	return nil
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.client.Database(m.database).Collection(name)
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoDB) WriteLogMessage(ctx context.Context, data services.Data) error {
	_, err := m.collection(collectionLog).InsertOne(ctx, data)
	return err
}

func (m *MongoDB) GetPayment(ctx context.Context, id string) (*entity.Payment, error) {
	return m.findPayment(ctx, bson.D{{Key: "payment_id", Value: id}}, "payment "+id)
}

func (m *MongoDB) GetPaymentByOrderId(ctx context.Context, orderId string) (*entity.Payment, error) {
	return m.findPayment(ctx, bson.D{{Key: "order_id", Value: orderId}}, "payment for order "+orderId)
}

func (m *MongoDB) findPayment(ctx context.Context, filter bson.D, subject string) (*entity.Payment, error) {
	var record paymentRecord
	err := m.collection(collectionPayments).FindOne(ctx, filter).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", subject, entity.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return record.payment()
}

func (m *MongoDB) CreatePayment(ctx context.Context, payment *entity.Payment) error {
	payment.Version = 1
	_, err := m.collection(collectionPayments).InsertOne(ctx, newPaymentRecord(payment))
	if err != nil {
		payment.Version = 0
		return fmt.Errorf("insert payment %s: %w", payment.Id, err)
	}
	return nil
}

// UpdatePayment replaces the record only when the stored version still
// matches, then bumps the version.
func (m *MongoDB) UpdatePayment(ctx context.Context, payment *entity.Payment) error {
	record := newPaymentRecord(payment)
	record.Version = payment.Version + 1
	filter := bson.D{{Key: "payment_id", Value: payment.Id}, {Key: "version", Value: payment.Version}}
	result, err := m.collection(collectionPayments).ReplaceOne(ctx, filter, record)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", payment.Id, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("payment %s version %d: %w", payment.Id, payment.Version, entity.ErrVersionConflict)
	}
	payment.Version = record.Version
	return nil
}

func (m *MongoDB) GetPaymentMethod(ctx context.Context, id string) (*entity.PaymentMethod, error) {
	var paymentMethod entity.PaymentMethod
	err := m.collection(collectionPaymentMethods).FindOne(ctx, bson.D{{Key: "method_id", Value: id}}).Decode(&paymentMethod)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("payment method %s: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &paymentMethod, nil
}

func (m *MongoDB) SavePaymentMethod(ctx context.Context, paymentMethod *entity.PaymentMethod) error {
	filter := bson.D{{Key: "method_id", Value: paymentMethod.Id}}
	set := bson.M{"$set": paymentMethod}
	_, err := m.collection(collectionPaymentMethods).UpdateOne(ctx, filter, set, options.Update().SetUpsert(true))
	return err
}

func (m *MongoDB) DeletePaymentMethod(ctx context.Context, id string) error {
	result, err := m.collection(collectionPaymentMethods).DeleteOne(ctx, bson.D{{Key: "method_id", Value: id}})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("payment method %s: %w", id, entity.ErrNotFound)
	}
	return nil
}
