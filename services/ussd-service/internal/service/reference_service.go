package service

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

// ReferenceService manages the admin reference data: message templates and config toggles.
type ReferenceService struct {
	templates repository.TemplateRepository
	configs   repository.ConfigRepository
	logger    *logrus.Logger
}

func NewReferenceService(templates repository.TemplateRepository, configs repository.ConfigRepository, logger *logrus.Logger) *ReferenceService {
	return &ReferenceService{templates: templates, configs: configs, logger: logger}
}

func (s *ReferenceService) CreateTemplate(ctx context.Context, tpl *models.MessageTemplate) error {
	if err := validTemplate(tpl); err != nil {
		return err
	}
	return s.templates.Create(ctx, tpl)
}

func (s *ReferenceService) GetTemplate(ctx context.Context, id string) (*models.MessageTemplate, error) {
	oid, err := parseID(id, "message")
	if err != nil {
		return nil, err
	}
	tpl, err := s.templates.FindByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, models.NewNotFoundError("message")
	}
	return tpl, nil
}

func (s *ReferenceService) ListTemplates(ctx context.Context) ([]models.MessageTemplate, error) {
	return s.templates.List(ctx)
}

func (s *ReferenceService) UpdateTemplate(ctx context.Context, tpl *models.MessageTemplate) error {
	if err := validTemplate(tpl); err != nil {
		return err
	}
	return notFoundAs(s.templates.Update(ctx, tpl), "message")
}

func (s *ReferenceService) DeleteTemplate(ctx context.Context, id string) error {
	oid, err := parseID(id, "message")
	if err != nil {
		return err
	}
	return notFoundAs(s.templates.Delete(ctx, oid), "message")
}

type templateFile struct {
	Templates []models.MessageTemplate `yaml:"templates"`
}

// SeedTemplates upserts every template of the YAML file at path and returns how many were new.
func (s *ReferenceService) SeedTemplates(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read templates file: %w", err)
	}
	return s.SeedTemplatesFrom(ctx, data)
}

func (s *ReferenceService) SeedTemplatesFrom(ctx context.Context, data []byte) (int, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse templates file: %w", err)
	}

	inserted := 0
	for i := range file.Templates {
		tpl := &file.Templates[i]
		if err := validTemplate(tpl); err != nil {
			return inserted, fmt.Errorf("template %d: %w", i+1, err)
		}
		created, err := s.templates.Upsert(ctx, tpl)
		if err != nil {
			return inserted, err
		}
		if created {
			inserted++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"templates": len(file.Templates),
		"inserted":  inserted,
	}).Info("Message templates seeded")
	return inserted, nil
}

func validTemplate(tpl *models.MessageTemplate) error {
	if tpl.ServerMessage == "" || tpl.CustomerMessage == "" {
		return models.NewValidationError(models.CodeInvalidRequest, msgIncomplete)
	}

	operator, ok := normalize.Operator(tpl.Operator)
	if !ok {
		return models.NewValidationError(models.CodeInvalidOperator, fmt.Sprintf("unknown operator %q", tpl.Operator))
	}
	tpl.Operator = operator

	tpl.Operation = models.OperationType(strings.ToLower(strings.TrimSpace(string(tpl.Operation))))
	if !tpl.Operation.Valid() {
		return models.NewValidationError(models.CodeInvalidRequest, fmt.Sprintf("unknown operation %q", tpl.Operation))
	}

	tpl.Kind = models.OutcomeKind(strings.ToUpper(strings.TrimSpace(string(tpl.Kind))))
	if tpl.Kind != models.OutcomeSuccess && tpl.Kind != models.OutcomeFailure {
		return models.NewValidationError(models.CodeInvalidRequest, "kind must be SUCCESS or FAILURE")
	}
	return nil
}

func (s *ReferenceService) CreateConfig(ctx context.Context, entry *models.ConfigEntry) error {
	if entry.Service == "" {
		return models.NewValidationError(models.CodeInvalidRequest, msgIncomplete)
	}
	return s.configs.Create(ctx, entry)
}

func (s *ReferenceService) GetConfig(ctx context.Context, id string) (*models.ConfigEntry, error) {
	oid, err := parseID(id, "config")
	if err != nil {
		return nil, err
	}
	entry, err := s.configs.FindByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, models.NewNotFoundError("config")
	}
	return entry, nil
}

func (s *ReferenceService) ListConfig(ctx context.Context) ([]models.ConfigEntry, error) {
	return s.configs.List(ctx)
}

func (s *ReferenceService) UpdateConfig(ctx context.Context, entry *models.ConfigEntry) error {
	return notFoundAs(s.configs.Update(ctx, entry), "config")
}

func (s *ReferenceService) DeleteConfig(ctx context.Context, id string) error {
	oid, err := parseID(id, "config")
	if err != nil {
		return err
	}
	return notFoundAs(s.configs.Delete(ctx, oid), "config")
}

func (s *ReferenceService) ToggleConfig(ctx context.Context, id string) (*models.ConfigEntry, error) {
	oid, err := parseID(id, "config")
	if err != nil {
		return nil, err
	}
	entry, err := s.configs.Toggle(ctx, oid)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, models.NewNotFoundError("config")
	}
	return entry, nil
}
