package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/grigta/simgate/pkg/crypto"
	"github.com/grigta/simgate/pkg/database"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

const batchSize = 500

// Open connects to the legacy database. driver is "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported legacy driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy database: %w", err)
	}
	return db, nil
}

// Close releases the pool behind a gorm handle.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Kind names a target collection.
type Kind string

const (
	KindDevice      Kind = "device"
	KindSimCard     Kind = "sim_card"
	KindUser        Kind = "user"
	KindTransaction Kind = "transaction"
	KindTemplate    Kind = "template"
	KindConfig      Kind = "config"
)

// Sink stores imported documents. Lookup reports a document already carrying legacyID.
type Sink interface {
	Lookup(ctx context.Context, kind Kind, legacyID string) (primitive.ObjectID, bool, error)
	PutDevice(ctx context.Context, device *models.Device) error
	PutSimCard(ctx context.Context, sim *models.SimCard) error
	PutUser(ctx context.Context, user *models.User) error
	PutTransaction(ctx context.Context, tx *models.Transaction) error
	PutTemplate(ctx context.Context, tpl *models.MessageTemplate) error
	PutConfig(ctx context.Context, entry *models.ConfigEntry) error
}

// TableReport counts the outcome of one legacy table.
type TableReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type Report map[string]*TableReport

func (r Report) table(name string) *TableReport {
	if t, ok := r[name]; ok {
		return t
	}
	t := &TableReport{}
	r[name] = t
	return t
}

// Importer copies every legacy table once. Re-running it skips rows whose
// legacy_id is already present, so an interrupted import can be resumed.
type Importer struct {
	db     *gorm.DB
	sink   Sink
	logger *logrus.Logger

	devices map[string]primitive.ObjectID
	sims    map[string]primitive.ObjectID
	users   map[string]primitive.ObjectID
}

func NewImporter(db *gorm.DB, sink Sink, logger *logrus.Logger) *Importer {
	return &Importer{
		db:      db,
		sink:    sink,
		logger:  logger,
		devices: make(map[string]primitive.ObjectID),
		sims:    make(map[string]primitive.ObjectID),
		users:   make(map[string]primitive.ObjectID),
	}
}

// Run imports devices first so SIM cards can point at them, then users, then
// the reference tables, and transactions last.
func (i *Importer) Run(ctx context.Context) (Report, error) {
	report := Report{}
	steps := []struct {
		table string
		run   func(context.Context, *TableReport) error
	}{
		{"DEVICE", i.importDevices},
		{"SIM_CARD", i.importSimCards},
		{"USER", i.importUsers},
		{"messages", i.importTemplates},
		{"CONFIG", i.importConfig},
		{"ACTIVATION", func(ctx context.Context, t *TableReport) error {
			return i.importOperations(ctx, "ACTIVATION", models.OperationActivation, t)
		}},
		{"TOPUP", func(ctx context.Context, t *TableReport) error {
			return i.importOperations(ctx, "TOPUP", models.OperationTopup, t)
		}},
	}

	for _, step := range steps {
		if !i.db.Migrator().HasTable(step.table) {
			i.logger.WithField("table", step.table).Warn("Legacy table missing, skipping")
			continue
		}
		t := report.table(step.table)
		if err := step.run(ctx, t); err != nil {
			return report, fmt.Errorf("import %s: %w", step.table, err)
		}
		i.logger.WithFields(logrus.Fields{
			"table":    step.table,
			"imported": t.Imported,
			"skipped":  t.Skipped,
			"failed":   t.Failed,
		}).Info("Legacy table imported")
	}
	return report, nil
}

// existing resolves legacyID against the sink and remembers the mapping.
func (i *Importer) existing(ctx context.Context, kind Kind, legacyID string, ids map[string]primitive.ObjectID) (bool, error) {
	id, found, err := i.sink.Lookup(ctx, kind, legacyID)
	if err != nil {
		return false, err
	}
	if found && ids != nil {
		ids[legacyID] = id
	}
	return found, nil
}

// store runs put and folds a row-level failure into the report.
// Only context cancellation aborts the whole import.
func (i *Importer) store(ctx context.Context, t *TableReport, kind Kind, legacyID string, put func() error) error {
	if err := put(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.Failed++
		i.logger.WithFields(logrus.Fields{
			"kind":      kind,
			"legacy_id": legacyID,
			"error":     err.Error(),
		}).Warn("Failed to import legacy row")
		return nil
	}
	t.Imported++
	return nil
}

func (i *Importer) importDevices(ctx context.Context, t *TableReport) error {
	var rows []deviceRow
	if err := i.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		found, err := i.existing(ctx, KindDevice, row.ID, i.devices)
		if err != nil {
			return err
		}
		if found {
			t.Skipped++
			continue
		}

		device := &models.Device{
			Name:         str(row.Name),
			Brand:        str(row.Brand),
			OS:           str(row.OS),
			System:       str(row.System),
			Status:       flag(row.Status),
			IP:           str(row.IP),
			LastConnect:  timestamp(row.LastConnect),
			Localization: str(row.Localization),
			Type:         models.DeviceTypeExecutor,
			LegacyID:     row.ID,
		}
		if err := i.store(ctx, t, KindDevice, row.ID, func() error { return i.sink.PutDevice(ctx, device) }); err != nil {
			return err
		}
		if !device.ID.IsZero() {
			i.devices[row.ID] = device.ID
		}
	}
	return nil
}

func (i *Importer) importSimCards(ctx context.Context, t *TableReport) error {
	var rows []simCardRow
	if err := i.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		found, err := i.existing(ctx, KindSimCard, row.ID, i.sims)
		if err != nil {
			return err
		}
		if found {
			t.Skipped++
			continue
		}

		sim := &models.SimCard{
			Operator:             operator(row.Operator),
			Number:               normalize.Phone(str(row.Number)),
			Connected:            flag(row.Connected),
			ActivationEnabled:    flag(row.ActivationStatus),
			TopupEnabled:         flag(row.TopupStatus),
			Balance:              num(row.Balance),
			TodayActivationCount: int(integer(row.TodayNbActivation)),
			TodayTopupCount:      int(integer(row.TodayNbTopup)),
			LastConnect:          timestamp(row.LastConnect),
			Pin:                  str(row.Pin),
			Puk:                  str(row.Puk),
			Charged:              flag(row.Charged),
			LegacyID:             row.ID,
		}
		if device := str(row.Device); device != "" {
			id, err := i.resolve(ctx, KindDevice, device, i.devices)
			if err != nil {
				return err
			}
			sim.DeviceID = id
		}

		if err := i.store(ctx, t, KindSimCard, row.ID, func() error { return i.sink.PutSimCard(ctx, sim) }); err != nil {
			return err
		}
		if !sim.ID.IsZero() {
			i.sims[row.ID] = sim.ID
		}
	}
	return nil
}

func (i *Importer) importUsers(ctx context.Context, t *TableReport) error {
	var rows []userRow
	if err := i.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		found, err := i.existing(ctx, KindUser, row.ID, i.users)
		if err != nil {
			return err
		}
		if found {
			t.Skipped++
			continue
		}

		role := normalize.Role(models.Role(str(row.Role)))
		if role == "" {
			role = models.RoleCustomer
		}
		status := normalize.UserStatus(models.UserStatus(str(row.Status)))
		if status == "" {
			status = models.UserStatusPending
		}

		user := &models.User{
			Username:      str(row.Username),
			FirstName:     str(row.First),
			LastName:      str(row.LastName),
			Phone:         normalize.Phone(str(row.Phone)),
			City:          str(row.City),
			Address:       str(row.Address),
			Email:         str(row.Email),
			Balance:       num(row.Balance),
			LoyaltyPoints: integer(row.Loyalty),
			Role:          role,
			CanActivate:   role != models.RoleExecutor,
			CanTopup:      role != models.RoleExecutor,
			Status:        status,
			LegacyID:      row.ID,
		}
		// Legacy passwords were stored in clear text.
		if password := str(row.Password); password != "" {
			hash, err := crypto.HashPassword(password)
			if err != nil {
				return err
			}
			user.PasswordHash = hash
		}

		if err := i.store(ctx, t, KindUser, row.ID, func() error { return i.sink.PutUser(ctx, user) }); err != nil {
			return err
		}
		if !user.ID.IsZero() {
			i.users[row.ID] = user.ID
		}
	}
	return nil
}

func (i *Importer) importTemplates(ctx context.Context, t *TableReport) error {
	var rows []templateRow
	if err := i.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		found, err := i.existing(ctx, KindTemplate, row.ID, nil)
		if err != nil {
			return err
		}
		if found {
			t.Skipped++
			continue
		}

		var kind models.OutcomeKind
		switch strings.ToUpper(str(row.Type)) {
		case "SUCCESS", "OK", "ACTIVATE":
			kind = models.OutcomeSuccess
		case "FAILURE", "FAILED", "ERROR", "REFUSED":
			kind = models.OutcomeFailure
		default:
			t.Failed++
			i.logger.WithFields(logrus.Fields{"legacy_id": row.ID, "type": str(row.Type)}).Warn("Unknown template type")
			continue
		}
		tpl := &models.MessageTemplate{
			ServerMessage:   str(row.ServerMessage),
			CustomerMessage: str(row.CustomerMessage),
			Operator:        operator(row.Operator),
			Operation:       models.OperationType(strings.ToLower(str(row.Operation))),
			Kind:            kind,
			LegacyID:        row.ID,
		}
		if err := i.store(ctx, t, KindTemplate, row.ID, func() error { return i.sink.PutTemplate(ctx, tpl) }); err != nil {
			return err
		}
	}
	return nil
}

func (i *Importer) importConfig(ctx context.Context, t *TableReport) error {
	var rows []configRow
	if err := i.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		found, err := i.existing(ctx, KindConfig, row.ID, nil)
		if err != nil {
			return err
		}
		if found {
			t.Skipped++
			continue
		}

		entry := &models.ConfigEntry{
			Service:  str(row.Service),
			Enabled:  flag(row.Status),
			LegacyID: row.ID,
		}
		if err := i.store(ctx, t, KindConfig, row.ID, func() error { return i.sink.PutConfig(ctx, entry) }); err != nil {
			return err
		}
	}
	return nil
}

// importOperations reads transactions in batches; both tables can be large.
// Imported rows carry no cost, so cancelling a legacy PENDING row never refunds money
// this system did not debit.
func (i *Importer) importOperations(ctx context.Context, table string, op models.OperationType, t *TableReport) error {
	var rows []operationRow
	result := i.db.WithContext(ctx).Table(table).FindInBatches(&rows, batchSize, func(tx *gorm.DB, batch int) error {
		for _, row := range rows {
			legacyID := table + ":" + row.ID
			found, err := i.existing(ctx, KindTransaction, legacyID, nil)
			if err != nil {
				return err
			}
			if found {
				t.Skipped++
				continue
			}

			record, err := i.transaction(ctx, op, legacyID, row)
			if err != nil {
				return err
			}
			if err := i.store(ctx, t, KindTransaction, legacyID, func() error { return i.sink.PutTransaction(ctx, record) }); err != nil {
				return err
			}
		}
		i.logger.WithFields(logrus.Fields{"table": table, "batch": batch}).Debug("Legacy batch imported")
		return nil
	})
	return result.Error
}

func (i *Importer) transaction(ctx context.Context, op models.OperationType, legacyID string, row operationRow) (*models.Transaction, error) {
	raw := str(row.MsgResponse)
	record := &models.Transaction{
		Type:            op,
		DateOperation:   millis(row.DateOperation),
		Operator:        operator(row.Operator),
		PhoneNumber:     normalize.Phone(str(row.PhoneNumber)),
		Serial:          str(row.Serial),
		Puk:             str(row.Puk),
		UssdCode:        str(row.CodeUssd),
		DateResponse:    millis(row.DateResponse),
		RawResponse:     raw,
		Status:          legacyStatus(str(row.Status), raw),
		CustomerMessage: str(row.MsgToReturn),
		LegacyID:        legacyID,
	}
	if op == models.OperationTopup {
		record.Amount = num(row.Amount)
		record.Offer = str(row.Offer)
		record.NewBalance = num(row.NewBalance)
	}

	if user := str(row.User); user != "" {
		id, err := i.resolve(ctx, KindUser, user, i.users)
		if err != nil {
			return nil, err
		}
		record.UserID = id
	}
	if sim := str(row.SimCard); sim != "" {
		id, err := i.resolve(ctx, KindSimCard, sim, i.sims)
		if err != nil {
			return nil, err
		}
		record.SimCardID = id
	}
	return record, nil
}

// resolve maps a legacy foreign key to the imported ObjectID. A dangling key
// maps to the zero id and the row is still imported.
func (i *Importer) resolve(ctx context.Context, kind Kind, legacyID string, ids map[string]primitive.ObjectID) (primitive.ObjectID, error) {
	if id, ok := ids[legacyID]; ok {
		return id, nil
	}
	id, found, err := i.sink.Lookup(ctx, kind, legacyID)
	if err != nil {
		return primitive.NilObjectID, err
	}
	if !found {
		i.logger.WithFields(logrus.Fields{"kind": kind, "legacy_id": legacyID}).Warn("Dangling legacy reference")
		return primitive.NilObjectID, nil
	}
	ids[legacyID] = id
	return id, nil
}

// operator keeps unknown spellings as written so nothing is lost on import.
func operator(v sql.NullString) string {
	if canonical, ok := normalize.Operator(str(v)); ok {
		return canonical
	}
	return str(v)
}

// legacyStatus maps the old status column. Unknown values become FAILED once a
// response exists and stay PENDING otherwise.
func legacyStatus(status, raw string) models.TransactionStatus {
	s := models.TransactionStatus(strings.ToUpper(status))
	if s == models.StatusPending || s.IsTerminal() {
		return s
	}
	if raw != "" {
		return models.StatusFailed
	}
	return models.StatusPending
}

var kindCollections = map[Kind]string{
	KindDevice:      repository.CollectionDevices,
	KindSimCard:     repository.CollectionSimCards,
	KindUser:        repository.CollectionUsers,
	KindTransaction: repository.CollectionTransactions,
	KindTemplate:    repository.CollectionTemplates,
	KindConfig:      repository.CollectionConfig,
}

// Writers are the repository methods MongoSink stores through, so PIN
// encryption and operator keys are applied exactly as for API writes.
type Writers struct {
	Devices      interface{ Create(context.Context, *models.Device) error }
	SimCards     interface{ Create(context.Context, *models.SimCard) error }
	Users        interface{ Create(context.Context, *models.User) error }
	Transactions interface{ Create(context.Context, *models.Transaction) error }
	Templates    interface{ Create(context.Context, *models.MessageTemplate) error }
	Config       interface{ Create(context.Context, *models.ConfigEntry) error }
}

type MongoSink struct {
	db      *database.MongoDB
	writers Writers
}

func NewMongoSink(db *database.MongoDB, writers Writers) *MongoSink {
	return &MongoSink{db: db, writers: writers}
}

func (s *MongoSink) Lookup(ctx context.Context, kind Kind, legacyID string) (primitive.ObjectID, bool, error) {
	collection, ok := kindCollections[kind]
	if !ok {
		return primitive.NilObjectID, false, fmt.Errorf("unknown kind %q", kind)
	}

	var doc struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	err := s.db.FindOne(ctx, collection, bson.M{"legacy_id": legacyID}, &doc)
	if errors.Is(err, database.ErrNotFound) {
		return primitive.NilObjectID, false, nil
	}
	if err != nil {
		return primitive.NilObjectID, false, err
	}
	return doc.ID, true, nil
}

func (s *MongoSink) PutDevice(ctx context.Context, device *models.Device) error {
	return s.writers.Devices.Create(ctx, device)
}

func (s *MongoSink) PutSimCard(ctx context.Context, sim *models.SimCard) error {
	return s.writers.SimCards.Create(ctx, sim)
}

func (s *MongoSink) PutUser(ctx context.Context, user *models.User) error {
	return s.writers.Users.Create(ctx, user)
}

func (s *MongoSink) PutTransaction(ctx context.Context, tx *models.Transaction) error {
	return s.writers.Transactions.Create(ctx, tx)
}

func (s *MongoSink) PutTemplate(ctx context.Context, tpl *models.MessageTemplate) error {
	return s.writers.Templates.Create(ctx, tpl)
}

func (s *MongoSink) PutConfig(ctx context.Context, entry *models.ConfigEntry) error {
	return s.writers.Config.Create(ctx, entry)
}
