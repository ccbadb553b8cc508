package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/grigta/simgate/pkg/crypto"
	"github.com/grigta/simgate/pkg/database"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/repository/mocks"
)

func boolPtr(b bool) *bool { return &b }

func TestDeviceService_DeactivationCascades(t *testing.T) {
	ctx := context.Background()
	devices := new(mocks.MockDeviceRepository)
	sims := new(mocks.MockSimCardRepository)
	svc := NewDeviceService(devices, sims, quietLogger())

	id := primitive.NewObjectID()
	devices.On("SetStatus", mock.Anything, id, false).Return(&models.Device{ID: id, Status: false}, nil)
	sims.On("DisableByDevice", mock.Anything, id).Return(int64(3), nil)

	device, disabled, err := svc.SetStatus(ctx, id.Hex(), false)
	require.NoError(t, err)
	assert.False(t, device.Status)
	assert.Equal(t, int64(3), disabled)

	devices.On("SetStatus", mock.Anything, id, true).Return(&models.Device{ID: id, Status: true}, nil)
	_, disabled, err = svc.SetStatus(ctx, id.Hex(), true)
	require.NoError(t, err)
	assert.Zero(t, disabled)
	sims.AssertNumberOfCalls(t, "DisableByDevice", 1)
}

func TestDeviceService_NotFound(t *testing.T) {
	ctx := context.Background()
	devices := new(mocks.MockDeviceRepository)
	sims := new(mocks.MockSimCardRepository)
	svc := NewDeviceService(devices, sims, quietLogger())

	id := primitive.NewObjectID()
	devices.On("SetStatus", mock.Anything, id, false).Return(nil, nil)
	devices.On("Delete", mock.Anything, id).Return(database.ErrNotFound)
	sims.On("DisableByDevice", mock.Anything, id).Return(int64(0), nil)

	_, _, err := svc.SetStatus(ctx, id.Hex(), false)
	assert.True(t, models.IsKind(err, models.KindNotFound))
	assert.EqualError(t, svc.Delete(ctx, id.Hex()), "device not found")
	assert.True(t, models.IsKind(svc.Delete(ctx, "xyz"), models.KindNotFound))
}

func TestDeviceService_DeleteDisablesSimCards(t *testing.T) {
	ctx := context.Background()
	devices := new(mocks.MockDeviceRepository)
	sims := new(mocks.MockSimCardRepository)
	svc := NewDeviceService(devices, sims, quietLogger())

	id := primitive.NewObjectID()
	sims.On("DisableByDevice", mock.Anything, id).Return(int64(2), nil).Once()
	devices.On("Delete", mock.Anything, id).Return(nil).Once()

	require.NoError(t, svc.Delete(ctx, id.Hex()))
	sims.AssertExpectations(t)
	devices.AssertExpectations(t)

	// A failed cascade keeps the device.
	other := primitive.NewObjectID()
	sims.On("DisableByDevice", mock.Anything, other).Return(int64(0), errors.New("connection reset")).Once()
	require.Error(t, svc.Delete(ctx, other.Hex()))
	devices.AssertNotCalled(t, "Delete", mock.Anything, other)
}

func TestSimCardService_UpdateChecksTargetDevice(t *testing.T) {
	ctx := context.Background()
	sims := new(mocks.MockSimCardRepository)
	devices := new(mocks.MockDeviceRepository)
	svc := NewSimCardService(sims, devices, quietLogger())

	inactive := &models.Device{ID: primitive.NewObjectID(), Status: false}
	devices.On("FindByID", mock.Anything, inactive.ID).Return(inactive, nil)

	moved := &models.SimCard{ID: primitive.NewObjectID(), Operator: "inwi", DeviceID: inactive.ID, ActivationEnabled: true, TopupEnabled: true}
	err := svc.Update(ctx, moved)
	var gwErr *models.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, models.CodeDeviceInactive, gwErr.Code)
	sims.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)

	// With both flags off the card may sit on an inactive device.
	parked := &models.SimCard{ID: moved.ID, Operator: "inwi", DeviceID: inactive.ID}
	sims.On("Update", mock.Anything, parked).Return(nil).Once()
	require.NoError(t, svc.Update(ctx, parked))
	devices.AssertNumberOfCalls(t, "FindByID", 1)
}

func TestSimCardService_SetFlagsChecksDevice(t *testing.T) {
	ctx := context.Background()
	sims := new(mocks.MockSimCardRepository)
	devices := new(mocks.MockDeviceRepository)
	svc := NewSimCardService(sims, devices, quietLogger())

	inactive := &models.Device{ID: primitive.NewObjectID(), Status: false}
	sim := &models.SimCard{ID: primitive.NewObjectID(), Operator: "inwi", DeviceID: inactive.ID}
	sims.On("FindByID", mock.Anything, sim.ID).Return(sim, nil)
	devices.On("FindByID", mock.Anything, inactive.ID).Return(inactive, nil)

	_, err := svc.SetFlags(ctx, sim.ID.Hex(), models.SimCardFlags{ActivationEnabled: boolPtr(true)})
	var gwErr *models.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, models.CodeDeviceInactive, gwErr.Code)

	// Disabling never needs the device.
	sims.On("SetFlags", mock.Anything, sim.ID, false, false).Return(sim, nil)
	_, err = svc.SetFlags(ctx, sim.ID.Hex(), models.SimCardFlags{TopupEnabled: boolPtr(false)})
	assert.NoError(t, err)
	devices.AssertNumberOfCalls(t, "FindByID", 1)
}

func TestSimCardService_SetFlagsActiveDevice(t *testing.T) {
	ctx := context.Background()
	sims := new(mocks.MockSimCardRepository)
	devices := new(mocks.MockDeviceRepository)
	svc := NewSimCardService(sims, devices, quietLogger())

	active := &models.Device{ID: primitive.NewObjectID(), Status: true}
	sim := &models.SimCard{ID: primitive.NewObjectID(), Operator: "inwi", DeviceID: active.ID, ActivationEnabled: true}
	sims.On("FindByID", mock.Anything, sim.ID).Return(sim, nil)
	devices.On("FindByID", mock.Anything, active.ID).Return(active, nil)
	sims.On("SetFlags", mock.Anything, sim.ID, true, true).Return(&models.SimCard{ID: sim.ID, ActivationEnabled: true, TopupEnabled: true}, nil)

	updated, err := svc.SetFlags(ctx, sim.ID.Hex(), models.SimCardFlags{TopupEnabled: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.TopupEnabled)
	assert.True(t, updated.ActivationEnabled)
}

func TestSimCardService_CreateCanonicalOperator(t *testing.T) {
	ctx := context.Background()
	sims := new(mocks.MockSimCardRepository)
	svc := NewSimCardService(sims, new(mocks.MockDeviceRepository), quietLogger())

	sims.On("Create", mock.Anything, mock.MatchedBy(func(s *models.SimCard) bool {
		return s.Operator == "Maroc Telecom"
	})).Return(nil)

	require.NoError(t, svc.Create(ctx, &models.SimCard{Operator: " maroc TELECOM "}))

	err := svc.Create(ctx, &models.SimCard{Operator: "Free"})
	assert.True(t, models.IsKind(err, models.KindValidation))
}

type fakeTokens struct{}

func (fakeTokens) GenerateToken(userID, phone, role string) (string, error) {
	return "token-" + userID + "-" + role, nil
}

func TestUserService_Login(t *testing.T) {
	ctx := context.Background()
	users := new(mocks.MockUserRepository)
	svc := NewUserService(users, NewAccounting(users, new(mocks.MockTransactionRepository), quietLogger()), fakeTokens{}, quietLogger())

	hash, err := crypto.HashPassword("s3cret")
	require.NoError(t, err)

	accepted := &models.User{ID: primitive.NewObjectID(), Phone: "0611111111", PasswordHash: hash, Role: models.RoleCustomer, Status: models.UserStatusAccept}
	blocked := &models.User{ID: primitive.NewObjectID(), Phone: "0622222222", PasswordHash: hash, Status: models.UserStatusBlock}
	users.On("FindByPhone", mock.Anything, "0611111111").Return(accepted, nil)
	users.On("FindByPhone", mock.Anything, "0622222222").Return(blocked, nil)
	users.On("FindByPhone", mock.Anything, "0633333333").Return(nil, nil)

	token, user, err := svc.Login(ctx, "06 11 11 11 11", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "token-"+accepted.ID.Hex()+"-CUSTOMER", token)
	assert.Equal(t, accepted.ID, user.ID)

	_, _, err = svc.Login(ctx, "0611111111", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "0622222222", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "0633333333", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserService_Create(t *testing.T) {
	ctx := context.Background()
	users := new(mocks.MockUserRepository)
	svc := NewUserService(users, nil, fakeTokens{}, quietLogger())

	users.On("Create", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.Phone == "0612345678" && u.Role == models.RoleCustomer && u.Status == models.UserStatusPending &&
			crypto.CheckPassword("pw", u.PasswordHash)
	})).Return(nil).Once()
	users.On("Create", mock.Anything, mock.Anything).Return(database.ErrDuplicate).Once()

	require.NoError(t, svc.Create(ctx, &models.User{Phone: "06-12-34-56-78", Role: "custmer"}, "pw"))

	err := svc.Create(ctx, &models.User{Phone: "0612345678"}, "pw")
	assert.True(t, models.IsKind(err, models.KindValidation))

	err = svc.Create(ctx, &models.User{Phone: "123"}, "pw")
	assert.True(t, models.IsKind(err, models.KindValidation))
}

func TestUserService_AdjustBalance(t *testing.T) {
	ctx := context.Background()
	users := new(mocks.MockUserRepository)
	svc := NewUserService(users, NewAccounting(users, new(mocks.MockTransactionRepository), quietLogger()), fakeTokens{}, quietLogger())

	user := &models.User{ID: primitive.NewObjectID(), Balance: 10}
	users.On("FindByID", mock.Anything, user.ID).Return(user, nil)
	users.On("Credit", mock.Anything, user.ID, 40.0).Return(&models.User{ID: user.ID, Balance: 50}, nil)
	users.On("Debit", mock.Anything, user.ID, 25.0).Return(nil, nil)

	updated, err := svc.AdjustBalance(ctx, user.ID.Hex(), 40)
	require.NoError(t, err)
	assert.Equal(t, 50.0, updated.Balance)

	_, err = svc.AdjustBalance(ctx, user.ID.Hex(), -25)
	assert.True(t, models.IsKind(err, models.KindInsufficientBalance))
}

const seedYAML = `
templates:
  - server_message: "Votre ligne est activee"
    customer_message: "Activation successful"
    operator: "inwi"
    operation: "activation"
    kind: "success"
  - server_message: "Solde insuffisant"
    customer_message: "Top-up failed"
    operator: "orange ma"
    operation: "TOPUP"
    kind: "FAILURE"
`

func TestReferenceService_SeedTemplates(t *testing.T) {
	ctx := context.Background()
	templates := new(mocks.MockTemplateRepository)
	svc := NewReferenceService(templates, new(mocks.MockConfigRepository), quietLogger())

	templates.On("Upsert", mock.Anything, mock.MatchedBy(func(tpl *models.MessageTemplate) bool {
		return tpl.Operator == "inwi" && tpl.Kind == models.OutcomeSuccess
	})).Return(true, nil).Once()
	templates.On("Upsert", mock.Anything, mock.MatchedBy(func(tpl *models.MessageTemplate) bool {
		return tpl.Operator == "Orange MA" && tpl.Operation == models.OperationTopup && tpl.Kind == models.OutcomeFailure
	})).Return(false, nil).Once()

	inserted, err := svc.SeedTemplatesFrom(ctx, []byte(seedYAML))
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	templates.AssertExpectations(t)
}

func TestReferenceService_SeedShippedTemplates(t *testing.T) {
	templates := new(mocks.MockTemplateRepository)
	svc := NewReferenceService(templates, new(mocks.MockConfigRepository), quietLogger())
	templates.On("Upsert", mock.Anything, mock.Anything).Return(true, nil)

	inserted, err := svc.SeedTemplates(context.Background(), "../../../../configs/message_templates.yaml")
	require.NoError(t, err)
	assert.Equal(t, 11, inserted)
}

func TestReferenceService_SeedRejectsBadTemplate(t *testing.T) {
	svc := NewReferenceService(new(mocks.MockTemplateRepository), new(mocks.MockConfigRepository), quietLogger())

	_, err := svc.SeedTemplatesFrom(context.Background(), []byte(`
templates:
  - server_message: "x"
    customer_message: "y"
    operator: "inwi"
    operation: "activation"
    kind: "maybe"
`))
	assert.Error(t, err)

	_, err = svc.SeedTemplatesFrom(context.Background(), []byte("templates: ["))
	assert.Error(t, err)
}

func TestReferenceService_ToggleConfig(t *testing.T) {
	ctx := context.Background()
	configs := new(mocks.MockConfigRepository)
	svc := NewReferenceService(new(mocks.MockTemplateRepository), configs, quietLogger())

	id := primitive.NewObjectID()
	configs.On("Toggle", mock.Anything, id).Return(&models.ConfigEntry{ID: id, Service: "topup", Enabled: false}, nil)

	entry, err := svc.ToggleConfig(ctx, id.Hex())
	require.NoError(t, err)
	assert.False(t, entry.Enabled)

	missing := primitive.NewObjectID()
	configs.On("Toggle", mock.Anything, missing).Return(nil, nil)
	_, err = svc.ToggleConfig(ctx, missing.Hex())
	assert.True(t, models.IsKind(err, models.KindNotFound))
}
