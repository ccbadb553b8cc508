package legacy

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"

	"github.com/grigta/simgate/pkg/crypto"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
)

type memorySink struct {
	ids          map[Kind]map[string]primitive.ObjectID
	devices      []*models.Device
	sims         []*models.SimCard
	users        []*models.User
	transactions []*models.Transaction
	templates    []*models.MessageTemplate
	config       []*models.ConfigEntry
	rejectPhone  string
}

func newMemorySink() *memorySink {
	return &memorySink{ids: make(map[Kind]map[string]primitive.ObjectID)}
}

func (s *memorySink) Lookup(_ context.Context, kind Kind, legacyID string) (primitive.ObjectID, bool, error) {
	id, ok := s.ids[kind][legacyID]
	return id, ok, nil
}

func (s *memorySink) remember(kind Kind, legacyID string) primitive.ObjectID {
	if s.ids[kind] == nil {
		s.ids[kind] = make(map[string]primitive.ObjectID)
	}
	id := primitive.NewObjectID()
	s.ids[kind][legacyID] = id
	return id
}

func (s *memorySink) PutDevice(_ context.Context, d *models.Device) error {
	d.ID = s.remember(KindDevice, d.LegacyID)
	s.devices = append(s.devices, d)
	return nil
}

func (s *memorySink) PutSimCard(_ context.Context, sim *models.SimCard) error {
	sim.ID = s.remember(KindSimCard, sim.LegacyID)
	s.sims = append(s.sims, sim)
	return nil
}

func (s *memorySink) PutUser(_ context.Context, u *models.User) error {
	if s.rejectPhone != "" && u.Phone == s.rejectPhone {
		return errors.New("duplicate document")
	}
	u.ID = s.remember(KindUser, u.LegacyID)
	s.users = append(s.users, u)
	return nil
}

func (s *memorySink) PutTransaction(_ context.Context, tx *models.Transaction) error {
	tx.ID = s.remember(KindTransaction, tx.LegacyID)
	s.transactions = append(s.transactions, tx)
	return nil
}

func (s *memorySink) PutTemplate(_ context.Context, tpl *models.MessageTemplate) error {
	tpl.ID = s.remember(KindTemplate, tpl.LegacyID)
	s.templates = append(s.templates, tpl)
	return nil
}

func (s *memorySink) PutConfig(_ context.Context, entry *models.ConfigEntry) error {
	entry.ID = s.remember(KindConfig, entry.LegacyID)
	s.config = append(s.config, entry)
	return nil
}

var legacySchema = []string{
	`CREATE TABLE "DEVICE" (ID INTEGER PRIMARY KEY, NOM TEXT, SYSTEM TEXT, LAST_CONNECT TEXT, LOCALIZATION TEXT, STATUS INTEGER, OTP TEXT, IP TEXT, BRAND TEXT, OS TEXT, TIME TEXT)`,
	`CREATE TABLE "SIM_CARD" (ID INTEGER PRIMARY KEY, OPERATOR TEXT, NUMBER TEXT, CONNECTED INTEGER, ACTIVATION_STATUS INTEGER, TOPUP_STATUS INTEGER, BALANCE TEXT, TODAY_NB_ACTIVATION INTEGER, TODAY_NB_TOPUP INTEGER, LAST_CONNECT TEXT, DEVICE TEXT, PIN TEXT, PUK TEXT, CHARGED INTEGER, TIME TEXT)`,
	`CREATE TABLE "USER" (ID TEXT PRIMARY KEY, USERNAME TEXT, NOM TEXT, PRENOM TEXT, TEL TEXT, VILLE TEXT, ADRESSE TEXT, STATUS TEXT, BALANCE REAL, FIDILIO INTEGER, DEVICE TEXT, EMAIL TEXT, PASSWORD TEXT, ROLE TEXT)`,
	`CREATE TABLE "messages" (id INTEGER PRIMARY KEY, SERVER_MESSAGE TEXT, CUSTOMER_MESSAGE TEXT, TYPE TEXT, OPERATOR TEXT, OPERATION TEXT)`,
	`CREATE TABLE "CONFIG" (ID INTEGER PRIMARY KEY, SERVICE TEXT, STATUS TEXT)`,
	`CREATE TABLE "ACTIVATION" (ID INTEGER PRIMARY KEY, DATE_OPERATION TEXT, OPERATOR TEXT, SERIE TEXT, PHONE_NUMBER TEXT, PUK TEXT, CODE_USSD TEXT, DATE_RESPONSE TEXT, MSG_RESPONSE TEXT, MSG_TO_RETURN TEXT, STATUS TEXT, USER TEXT, SIM_CARD TEXT)`,
	`CREATE TABLE "TOPUP" (ID INTEGER PRIMARY KEY, DATE_OPERATION TEXT, OPERATOR TEXT, SERIE TEXT, PHONE_NUMBER TEXT, PUK TEXT, CODE_USSD TEXT, DATE_RESPONSE TEXT, MSG_RESPONSE TEXT, MSG_TO_RETURN TEXT, STATUS TEXT, USER TEXT, SIM_CARD TEXT, MONTANT TEXT, OFFRE TEXT, NEW_BALANCE TEXT)`,
}

var legacyRows = []string{
	`INSERT INTO "DEVICE" (ID, NOM, SYSTEM, STATUS, IP, BRAND, OS, LAST_CONNECT) VALUES (7, 'rack-1', 'android', 1, '10.0.0.7', 'Samsung', '13', '2023-05-01 10:00:00')`,
	`INSERT INTO "SIM_CARD" (ID, OPERATOR, NUMBER, CONNECTED, ACTIVATION_STATUS, TOPUP_STATUS, BALANCE, TODAY_NB_ACTIVATION, DEVICE, PIN, PUK, CHARGED) VALUES (3, 'INWI', '06 11 22 33 44', 1, 1, 0, '120,5', 4, '7', '1234', '99887766', 0)`,
	`INSERT INTO "USER" (ID, USERNAME, NOM, PRENOM, TEL, STATUS, BALANCE, FIDILIO, PASSWORD, ROLE) VALUES ('u-1', 'karim', 'Alaoui', 'Karim', '0612345678', 'accept', 80.5, 12, 'secret', 'CUSTMER')`,
	`INSERT INTO "USER" (ID, USERNAME, TEL, STATUS, PASSWORD, ROLE) VALUES ('u-2', 'dup', '0600000000', 'ACCEPT', '', 'ADMIN')`,
	`INSERT INTO "messages" (id, SERVER_MESSAGE, CUSTOMER_MESSAGE, TYPE, OPERATOR, OPERATION) VALUES (1, 'Recharge effectuee', 'Top-up done', 'success', 'inwi', 'TOPUP')`,
	`INSERT INTO "CONFIG" (ID, SERVICE, STATUS) VALUES (1, 'topup', 'ON')`,
	`INSERT INTO "ACTIVATION" (ID, DATE_OPERATION, OPERATOR, SERIE, PHONE_NUMBER, CODE_USSD, DATE_RESPONSE, MSG_RESPONSE, STATUS, USER, SIM_CARD) VALUES (1, '1684000000000', 'inwi', 'S1', '0612345678', '*120*1234*0612345678#', '1684000005000', 'OK', 'success', 'u-1', '3')`,
	`INSERT INTO "ACTIVATION" (ID, DATE_OPERATION, OPERATOR, PHONE_NUMBER, STATUS, USER, SIM_CARD) VALUES (2, '1684000000', 'inwi', '0612345678', 'WAITING', 'u-9', '3')`,
	`INSERT INTO "TOPUP" (ID, DATE_OPERATION, OPERATOR, PHONE_NUMBER, CODE_USSD, MSG_RESPONSE, STATUS, USER, SIM_CARD, MONTANT, OFFRE, NEW_BALANCE) VALUES (1, '2023-05-01 10:00:00', 'inwi', '0612345678', '*139*20*0612345678*3#', 'Solde insuffisant', 'weird', 'u-1', '3', '20', '*3', '100,5')`,
}

type ImporterTestSuite struct {
	suite.Suite
	ctx    context.Context
	db     *gorm.DB
	sink   *memorySink
	logger *logrus.Logger
}

func TestImporterTestSuite(t *testing.T) {
	suite.Run(t, new(ImporterTestSuite))
}

func (s *ImporterTestSuite) SetupTest() {
	s.ctx = context.Background()

	db, err := Open("sqlite", ":memory:")
	s.Require().NoError(err)
	sqlDB, err := db.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	s.db = db

	s.sink = newMemorySink()
	s.logger = logrus.New()
	s.logger.SetOutput(io.Discard)
}

func (s *ImporterTestSuite) TearDownTest() {
	s.NoError(Close(s.db))
}

func (s *ImporterTestSuite) seed(statements ...[]string) {
	for _, group := range statements {
		for _, stmt := range group {
			s.Require().NoError(s.db.Exec(stmt).Error, stmt)
		}
	}
}

func (s *ImporterTestSuite) TestRun_MapsEveryTable() {
	s.seed(legacySchema, legacyRows)
	s.sink.rejectPhone = "0600000000"

	report, err := NewImporter(s.db, s.sink, s.logger).Run(s.ctx)
	s.Require().NoError(err)

	s.Equal(&TableReport{Imported: 1}, report["DEVICE"])
	s.Equal(&TableReport{Imported: 1}, report["SIM_CARD"])
	s.Equal(&TableReport{Imported: 1, Failed: 1}, report["USER"])
	s.Equal(&TableReport{Imported: 2}, report["ACTIVATION"])
	s.Equal(&TableReport{Imported: 1}, report["TOPUP"])

	s.Require().Len(s.sink.devices, 1)
	device := s.sink.devices[0]
	s.Equal("rack-1", device.Name)
	s.True(device.Status)
	s.Equal(models.DeviceTypeExecutor, device.Type)
	s.Require().NotNil(device.LastConnect)
	s.Equal(2023, device.LastConnect.Year())

	s.Require().Len(s.sink.sims, 1)
	sim := s.sink.sims[0]
	s.Equal(models.OperatorInwi, sim.Operator)
	s.Equal("0611223344", sim.Number)
	s.Equal(120.5, sim.Balance)
	s.Equal(4, sim.TodayActivationCount)
	s.True(sim.ActivationEnabled)
	s.False(sim.TopupEnabled)
	s.Equal(device.ID, sim.DeviceID)
	s.Equal("1234", sim.Pin)

	s.Require().Len(s.sink.users, 1)
	user := s.sink.users[0]
	s.Equal(models.RoleCustomer, user.Role)
	s.Equal(models.UserStatusAccept, user.Status)
	s.Equal(int64(12), user.LoyaltyPoints)
	s.True(user.CanActivate)
	s.True(user.CanTopup)
	s.True(crypto.CheckPassword("secret", user.PasswordHash))

	s.Require().Len(s.sink.templates, 1)
	s.Equal(models.OutcomeSuccess, s.sink.templates[0].Kind)
	s.Equal(models.OperationTopup, s.sink.templates[0].Operation)

	s.Require().Len(s.sink.config, 1)
	s.True(s.sink.config[0].Enabled)

	s.Require().Len(s.sink.transactions, 3)
	done, orphan, topup := s.sink.transactions[0], s.sink.transactions[1], s.sink.transactions[2]

	s.Equal("ACTIVATION:1", done.LegacyID)
	s.Equal(models.StatusSuccess, done.Status)
	s.Equal(int64(1684000000000), done.DateOperation)
	s.Equal(user.ID, done.UserID)
	s.Equal(sim.ID, done.SimCardID)
	s.Zero(done.Cost)

	s.Equal(models.StatusPending, orphan.Status)
	s.Equal(int64(1684000000000), orphan.DateOperation)
	s.True(orphan.UserID.IsZero())

	s.Equal(models.OperationTopup, topup.Type)
	s.Equal(models.StatusFailed, topup.Status)
	s.Equal(20.0, topup.Amount)
	s.Equal("*3", topup.Offer)
	s.Equal(100.5, topup.NewBalance)
}

func (s *ImporterTestSuite) TestRun_IsResumable() {
	s.seed(legacySchema, legacyRows)

	_, err := NewImporter(s.db, s.sink, s.logger).Run(s.ctx)
	s.Require().NoError(err)

	report, err := NewImporter(s.db, s.sink, s.logger).Run(s.ctx)
	s.Require().NoError(err)

	for table, t := range report {
		s.Zero(t.Imported, table)
		s.Positive(t.Skipped, table)
	}
	s.Len(s.sink.transactions, 3)
}

func (s *ImporterTestSuite) TestRun_MissingTablesAreSkipped() {
	s.seed(legacySchema[:1], legacyRows[:1])

	report, err := NewImporter(s.db, s.sink, s.logger).Run(s.ctx)
	s.Require().NoError(err)

	s.Len(report, 1)
	s.Len(s.sink.devices, 1)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "dsn")
	assert.Error(t, err)
}

func TestMillis(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"1684000000000", 1684000000000},
		{"1684000000", 1684000000000},
		{"2023-05-13 17:46:40", 1684000000000},
		{"13/05/2023 17:46:40", 1684000000000},
		{"not a date", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, millis(sql.NullString{String: tt.in, Valid: tt.in != ""}))
		})
	}
}

func TestLegacyStatus(t *testing.T) {
	assert.Equal(t, models.StatusRefused, legacyStatus("refused", ""))
	assert.Equal(t, models.StatusPending, legacyStatus("", ""))
	assert.Equal(t, models.StatusFailed, legacyStatus("???", "Erreur"))
}

func TestFlagAndNum(t *testing.T) {
	valid := func(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

	require.True(t, flag(valid("ON")))
	require.True(t, flag(valid("1")))
	require.False(t, flag(valid("0")))
	require.False(t, flag(sql.NullString{}))
	assert.Equal(t, 12.5, num(valid("12,5")))
	assert.Zero(t, num(valid("abc")))
}
