package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

type SimCardService struct {
	sims    repository.SimCardRepository
	devices repository.DeviceRepository
	logger  *logrus.Logger
}

func NewSimCardService(sims repository.SimCardRepository, devices repository.DeviceRepository, logger *logrus.Logger) *SimCardService {
	return &SimCardService{sims: sims, devices: devices, logger: logger}
}

func (s *SimCardService) Create(ctx context.Context, sim *models.SimCard) error {
	if err := s.canonicalOperator(sim); err != nil {
		return err
	}
	if sim.ActivationEnabled || sim.TopupEnabled {
		if err := s.requireActiveDevice(ctx, sim); err != nil {
			return err
		}
	}
	return s.sims.Create(ctx, sim)
}

func (s *SimCardService) Get(ctx context.Context, id string) (*models.SimCard, error) {
	oid, err := parseID(id, "sim card")
	if err != nil {
		return nil, err
	}
	sim, err := s.sims.FindByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if sim == nil {
		return nil, models.NewNotFoundError("sim card")
	}
	return sim, nil
}

func (s *SimCardService) List(ctx context.Context, filter repository.SimCardFilter) ([]models.SimCard, error) {
	return s.sims.List(ctx, filter)
}

// Update writes the card as given, flags included. A card left with a capability on must sit on
// an active device, including the device it is being moved to.
func (s *SimCardService) Update(ctx context.Context, sim *models.SimCard) error {
	if err := s.canonicalOperator(sim); err != nil {
		return err
	}
	if sim.ActivationEnabled || sim.TopupEnabled {
		if err := s.requireActiveDevice(ctx, sim); err != nil {
			return err
		}
	}
	return notFoundAs(s.sims.Update(ctx, sim), "sim card")
}

func (s *SimCardService) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id, "sim card")
	if err != nil {
		return err
	}
	return notFoundAs(s.sims.Delete(ctx, oid), "sim card")
}

// SetFlags applies a partial flag update. Leaving any capability on for a card whose device is
// inactive is rejected.
func (s *SimCardService) SetFlags(ctx context.Context, id string, flags models.SimCardFlags) (*models.SimCard, error) {
	sim, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	activation, topup := sim.ActivationEnabled, sim.TopupEnabled
	if flags.ActivationEnabled != nil {
		activation = *flags.ActivationEnabled
	}
	if flags.TopupEnabled != nil {
		topup = *flags.TopupEnabled
	}

	if activation || topup {
		if err := s.requireActiveDevice(ctx, sim); err != nil {
			return nil, err
		}
	}

	updated, err := s.sims.SetFlags(ctx, sim.ID, activation, topup)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, models.NewNotFoundError("sim card")
	}
	return updated, nil
}

func (s *SimCardService) requireActiveDevice(ctx context.Context, sim *models.SimCard) error {
	if sim.DeviceID.IsZero() {
		return models.NewValidationError(models.CodeDeviceInactive, "SIM card is not attached to a device")
	}
	device, err := s.devices.FindByID(ctx, sim.DeviceID)
	if err != nil {
		return err
	}
	if device == nil || !device.Status {
		return models.NewValidationError(models.CodeDeviceInactive, "the device holding this SIM card is inactive")
	}
	return nil
}

func (s *SimCardService) canonicalOperator(sim *models.SimCard) error {
	operator, ok := normalize.Operator(sim.Operator)
	if !ok {
		return models.NewValidationError(models.CodeInvalidOperator, fmt.Sprintf("unknown operator %q", sim.Operator))
	}
	sim.Operator = operator
	return nil
}
