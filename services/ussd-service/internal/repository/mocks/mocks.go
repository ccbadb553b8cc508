// Package mocks holds testify doubles of the repository interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

var (
	_ repository.TransactionRepository = (*MockTransactionRepository)(nil)
	_ repository.SimCardRepository     = (*MockSimCardRepository)(nil)
	_ repository.DeviceRepository      = (*MockDeviceRepository)(nil)
	_ repository.UserRepository        = (*MockUserRepository)(nil)
	_ repository.TemplateRepository    = (*MockTemplateRepository)(nil)
	_ repository.ConfigRepository      = (*MockConfigRepository)(nil)
)

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	if args.Error(0) == nil && tx.ID.IsZero() {
		tx.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *MockTransactionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Resolve(ctx context.Context, id primitive.ObjectID, res models.Resolution) (*models.Transaction, error) {
	args := m.Called(ctx, id, res)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) RecordUnclassified(ctx context.Context, id primitive.ObjectID, raw string, dateResponse int64) (*models.Transaction, error) {
	args := m.Called(ctx, id, raw, dateResponse)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Transition(ctx context.Context, id primitive.ObjectID, from, to models.TransactionStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) MarkRefunded(ctx context.Context, id primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) CancelPending(ctx context.Context, op models.OperationType, message, batchID string) ([]models.Transaction, error) {
	args := m.Called(ctx, op, message, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTransactionRepository) Aggregate(ctx context.Context, pipeline interface{}, results interface{}) error {
	return m.Called(ctx, pipeline, results).Error(0)
}

type MockSimCardRepository struct {
	mock.Mock
}

func (m *MockSimCardRepository) Create(ctx context.Context, sim *models.SimCard) error {
	args := m.Called(ctx, sim)
	if args.Error(0) == nil && sim.ID.IsZero() {
		sim.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *MockSimCardRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.SimCard, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SimCard), args.Error(1)
}

func (m *MockSimCardRepository) List(ctx context.Context, filter repository.SimCardFilter) ([]models.SimCard, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SimCard), args.Error(1)
}

func (m *MockSimCardRepository) Update(ctx context.Context, sim *models.SimCard) error {
	return m.Called(ctx, sim).Error(0)
}

func (m *MockSimCardRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSimCardRepository) SetFlags(ctx context.Context, id primitive.ObjectID, activation, topup bool) (*models.SimCard, error) {
	args := m.Called(ctx, id, activation, topup)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SimCard), args.Error(1)
}

func (m *MockSimCardRepository) DisableByDevice(ctx context.Context, deviceID primitive.ObjectID) (int64, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSimCardRepository) Reserve(ctx context.Context, req repository.ReserveRequest) (*models.SimCard, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SimCard), args.Error(1)
}

func (m *MockSimCardRepository) Release(ctx context.Context, simID, txID primitive.ObjectID) error {
	return m.Called(ctx, simID, txID).Error(0)
}

func (m *MockSimCardRepository) Unreserve(ctx context.Context, simID, txID primitive.ObjectID, op models.OperationType) error {
	return m.Called(ctx, simID, txID, op).Error(0)
}

func (m *MockSimCardRepository) ResetDailyCounters(ctx context.Context, day string) (int64, error) {
	args := m.Called(ctx, day)
	return args.Get(0).(int64), args.Error(1)
}

type MockDeviceRepository struct {
	mock.Mock
}

func (m *MockDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	args := m.Called(ctx, device)
	if args.Error(0) == nil && device.ID.IsZero() {
		device.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *MockDeviceRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Device, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockDeviceRepository) List(ctx context.Context) ([]models.Device, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Device), args.Error(1)
}

func (m *MockDeviceRepository) Update(ctx context.Context, device *models.Device) error {
	return m.Called(ctx, device).Error(0)
}

func (m *MockDeviceRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockDeviceRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status bool) (*models.Device, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil && user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserRepository) Debit(ctx context.Context, id primitive.ObjectID, amount float64) (*models.User, error) {
	args := m.Called(ctx, id, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Credit(ctx context.Context, id primitive.ObjectID, amount float64) (*models.User, error) {
	args := m.Called(ctx, id, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) Create(ctx context.Context, tpl *models.MessageTemplate) error {
	args := m.Called(ctx, tpl)
	if args.Error(0) == nil && tpl.ID.IsZero() {
		tpl.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *MockTemplateRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.MessageTemplate, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessageTemplate), args.Error(1)
}

func (m *MockTemplateRepository) List(ctx context.Context) ([]models.MessageTemplate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MessageTemplate), args.Error(1)
}

func (m *MockTemplateRepository) Update(ctx context.Context, tpl *models.MessageTemplate) error {
	return m.Called(ctx, tpl).Error(0)
}

func (m *MockTemplateRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTemplateRepository) FindMatches(ctx context.Context, serverMessage, operator string, op models.OperationType) ([]models.MessageTemplate, error) {
	args := m.Called(ctx, serverMessage, operator, op)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.MessageTemplate), args.Error(1)
}

func (m *MockTemplateRepository) Upsert(ctx context.Context, tpl *models.MessageTemplate) (bool, error) {
	args := m.Called(ctx, tpl)
	return args.Bool(0), args.Error(1)
}

type MockConfigRepository struct {
	mock.Mock
}

func (m *MockConfigRepository) Create(ctx context.Context, entry *models.ConfigEntry) error {
	args := m.Called(ctx, entry)
	if args.Error(0) == nil && entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	return args.Error(0)
}

func (m *MockConfigRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.ConfigEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConfigEntry), args.Error(1)
}

func (m *MockConfigRepository) List(ctx context.Context) ([]models.ConfigEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConfigEntry), args.Error(1)
}

func (m *MockConfigRepository) Update(ctx context.Context, entry *models.ConfigEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockConfigRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockConfigRepository) Toggle(ctx context.Context, id primitive.ObjectID) (*models.ConfigEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConfigEntry), args.Error(1)
}
