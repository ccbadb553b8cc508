package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/grigta/simgate/pkg/database"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

type DeviceService struct {
	devices repository.DeviceRepository
	sims    repository.SimCardRepository
	logger  *logrus.Logger
}

func NewDeviceService(devices repository.DeviceRepository, sims repository.SimCardRepository, logger *logrus.Logger) *DeviceService {
	return &DeviceService{devices: devices, sims: sims, logger: logger}
}

func (s *DeviceService) Create(ctx context.Context, device *models.Device) error {
	if device.Name == "" {
		return models.NewValidationError(models.CodeInvalidRequest, msgIncomplete)
	}
	if device.Type == "" {
		device.Type = models.DeviceTypeExecutor
	}
	return s.devices.Create(ctx, device)
}

func (s *DeviceService) Get(ctx context.Context, id string) (*models.Device, error) {
	oid, err := parseID(id, "device")
	if err != nil {
		return nil, err
	}
	device, err := s.devices.FindByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, models.NewNotFoundError("device")
	}
	return device, nil
}

func (s *DeviceService) List(ctx context.Context) ([]models.Device, error) {
	return s.devices.List(ctx)
}

func (s *DeviceService) Update(ctx context.Context, device *models.Device) error {
	return notFoundAs(s.devices.Update(ctx, device), "device")
}

// Delete removes the device after disabling its SIM cards, which stay in the pool unattached.
func (s *DeviceService) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id, "device")
	if err != nil {
		return err
	}

	disabled, err := s.sims.DisableByDevice(ctx, oid)
	if err != nil {
		return err
	}
	if err := s.devices.Delete(ctx, oid); err != nil {
		return notFoundAs(err, "device")
	}

	s.logger.WithFields(logrus.Fields{
		"device_id": id,
		"sim_cards": disabled,
	}).Info("Device deleted, SIM cards disabled")
	return nil
}

// SetStatus switches a device on or off. Switching it off disables every SIM card it owns; it
// returns the number of cards touched.
func (s *DeviceService) SetStatus(ctx context.Context, id string, status bool) (*models.Device, int64, error) {
	oid, err := parseID(id, "device")
	if err != nil {
		return nil, 0, err
	}

	device, err := s.devices.SetStatus(ctx, oid, status)
	if err != nil {
		return nil, 0, err
	}
	if device == nil {
		return nil, 0, models.NewNotFoundError("device")
	}
	if status {
		return device, 0, nil
	}

	disabled, err := s.sims.DisableByDevice(ctx, oid)
	if err != nil {
		return nil, 0, err
	}
	s.logger.WithFields(logrus.Fields{
		"device_id": id,
		"sim_cards": disabled,
	}).Info("Device deactivated, SIM cards disabled")
	return device, disabled, nil
}

func parseID(id, entity string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, models.NewNotFoundError(entity)
	}
	return oid, nil
}

func notFoundAs(err error, entity string) error {
	if errors.Is(err, database.ErrNotFound) {
		return models.NewNotFoundError(entity)
	}
	return err
}
