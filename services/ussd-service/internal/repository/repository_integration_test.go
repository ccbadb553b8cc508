package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/grigta/simgate/pkg/crypto"
	"github.com/grigta/simgate/pkg/database"
	"github.com/grigta/simgate/pkg/testutil"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
)

type MongoRepositorySuite struct {
	suite.Suite
	ctx          context.Context
	db           *database.MongoDB
	sims         *MongoSimCardRepository
	users        *MongoUserRepository
	transactions *MongoTransactionRepository
	configs      *MongoConfigRepository
	templates    *MongoTemplateRepository
}

func TestMongoRepositorySuite(t *testing.T) {
	suite.Run(t, new(MongoRepositorySuite))
}

func (s *MongoRepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	s.db = testutil.MongoDB(s.T())

	log := logrus.New()
	log.SetOutput(io.Discard)

	enc, err := crypto.NewEncryptor("0123456789abcdef0123456789abcdef")
	s.Require().NoError(err)

	s.Require().NoError(EnsureIndexes(s.ctx, s.db, log))
	s.sims = NewSimCardRepository(s.db, enc, log)
	s.users = NewUserRepository(s.db, log)
	s.transactions = NewTransactionRepository(s.db, log)
	s.configs = NewConfigRepository(s.db, log)
	s.templates = NewTemplateRepository(s.db, log)
}

func (s *MongoRepositorySuite) SetupTest() {
	for _, c := range []string{CollectionSimCards, CollectionUsers, CollectionTransactions, CollectionConfig, CollectionTemplates} {
		_, err := s.db.Collection(c).DeleteMany(s.ctx, bson.M{})
		s.Require().NoError(err)
	}
}

func (s *MongoRepositorySuite) TestReserve_FirstEligibleAndLease() {
	ineligible := &models.SimCard{Operator: "inwi", ActivationEnabled: false, TopupEnabled: true}
	first := &models.SimCard{Operator: " INWI ", ActivationEnabled: true, Pin: "1111"}
	second := &models.SimCard{Operator: "inwi", ActivationEnabled: true}
	for _, sim := range []*models.SimCard{ineligible, first, second} {
		s.Require().NoError(s.sims.Create(s.ctx, sim))
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	req := ReserveRequest{Operator: "inwi", Operation: models.OperationActivation, TransactionID: primitive.NewObjectID(), Now: now, Lease: 2 * time.Minute}

	got, err := s.sims.Reserve(s.ctx, req)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(first.ID, got.ID)
	s.Equal("1111", got.Pin)
	s.Equal(1, got.TodayActivationCount)
	s.Equal(req.TransactionID, *got.ReservedBy)

	// The leased card is skipped until released.
	req2 := req
	req2.TransactionID = primitive.NewObjectID()
	got2, err := s.sims.Reserve(s.ctx, req2)
	s.Require().NoError(err)
	s.Equal(second.ID, got2.ID)

	req3 := req
	req3.TransactionID = primitive.NewObjectID()
	none, err := s.sims.Reserve(s.ctx, req3)
	s.Require().NoError(err)
	s.Nil(none)

	// Releasing with the wrong owner is a no-op.
	s.Require().NoError(s.sims.Release(s.ctx, first.ID, req2.TransactionID))
	none, err = s.sims.Reserve(s.ctx, req3)
	s.Require().NoError(err)
	s.Nil(none)

	s.Require().NoError(s.sims.Release(s.ctx, first.ID, req.TransactionID))
	again, err := s.sims.Reserve(s.ctx, req3)
	s.Require().NoError(err)
	s.Equal(first.ID, again.ID)
	s.Equal(2, again.TodayActivationCount)

	// Expired leases are reclaimed.
	later := req
	later.TransactionID = primitive.NewObjectID()
	later.Now = now.Add(3 * time.Minute)
	expired, err := s.sims.Reserve(s.ctx, later)
	s.Require().NoError(err)
	s.Equal(first.ID, expired.ID)
}

func (s *MongoRepositorySuite) TestReserve_DailyCap() {
	sim := &models.SimCard{Operator: "Orange MA", TopupEnabled: true, TodayTopupCount: 20}
	s.Require().NoError(s.sims.Create(s.ctx, sim))

	req := ReserveRequest{Operator: "orange ma", Operation: models.OperationTopup, TransactionID: primitive.NewObjectID(), Now: time.Now().UTC(), Lease: time.Minute, DailyCap: 20}
	got, err := s.sims.Reserve(s.ctx, req)
	s.Require().NoError(err)
	s.Nil(got)

	req.DailyCap = 0
	got, err = s.sims.Reserve(s.ctx, req)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(21, got.TodayTopupCount)

	n, err := s.sims.ResetDailyCounters(s.ctx, "2026-01-02")
	s.Require().NoError(err)
	s.EqualValues(1, n)
	reset, err := s.sims.FindByID(s.ctx, sim.ID)
	s.Require().NoError(err)
	s.Equal(0, reset.TodayTopupCount)
}

func (s *MongoRepositorySuite) TestReserve_SkipsCardsWithoutPIN() {
	bare := &models.SimCard{Operator: "Orange MA", TopupEnabled: true}
	withPIN := &models.SimCard{Operator: "Orange MA", TopupEnabled: true, Pin: "4321"}
	for _, sim := range []*models.SimCard{bare, withPIN} {
		s.Require().NoError(s.sims.Create(s.ctx, sim))
	}

	req := ReserveRequest{Operator: "Orange MA", Operation: models.OperationTopup, TransactionID: primitive.NewObjectID(), Now: time.Now().UTC(), Lease: time.Minute, RequirePIN: true}
	got, err := s.sims.Reserve(s.ctx, req)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(withPIN.ID, got.ID)
	s.Equal("4321", got.Pin)

	// The PIN-less card is still picked when the format does not need one.
	req.TransactionID = primitive.NewObjectID()
	req.RequirePIN = false
	got, err = s.sims.Reserve(s.ctx, req)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(bare.ID, got.ID)
}

func (s *MongoRepositorySuite) TestUnreserve_RestoresDailyCounter() {
	sim := &models.SimCard{Operator: "inwi", TopupEnabled: true, TodayTopupCount: 19}
	s.Require().NoError(s.sims.Create(s.ctx, sim))

	req := ReserveRequest{Operator: "inwi", Operation: models.OperationTopup, TransactionID: primitive.NewObjectID(), Now: time.Now().UTC(), Lease: time.Minute, DailyCap: 20}
	got, err := s.sims.Reserve(s.ctx, req)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(20, got.TodayTopupCount)

	// Another transaction's id does not touch the card.
	s.Require().NoError(s.sims.Unreserve(s.ctx, sim.ID, primitive.NewObjectID(), models.OperationTopup))
	held, err := s.sims.FindByID(s.ctx, sim.ID)
	s.Require().NoError(err)
	s.Equal(20, held.TodayTopupCount)
	s.NotNil(held.ReservedBy)

	s.Require().NoError(s.sims.Unreserve(s.ctx, sim.ID, req.TransactionID, models.OperationTopup))
	back, err := s.sims.FindByID(s.ctx, sim.ID)
	s.Require().NoError(err)
	s.Equal(19, back.TodayTopupCount)
	s.Nil(back.ReservedBy)

	// The capacity given back is usable under the cap.
	req.TransactionID = primitive.NewObjectID()
	again, err := s.sims.Reserve(s.ctx, req)
	s.Require().NoError(err)
	s.Require().NotNil(again)
	s.Equal(sim.ID, again.ID)
}

func (s *MongoRepositorySuite) TestUnreserve_AfterResetOnlyReleases() {
	sim := &models.SimCard{Operator: "inwi", ActivationEnabled: true}
	s.Require().NoError(s.sims.Create(s.ctx, sim))

	req := ReserveRequest{Operator: "inwi", Operation: models.OperationActivation, TransactionID: primitive.NewObjectID(), Now: time.Now().UTC(), Lease: time.Minute}
	_, err := s.sims.Reserve(s.ctx, req)
	s.Require().NoError(err)
	_, err = s.sims.ResetDailyCounters(s.ctx, "2026-01-03")
	s.Require().NoError(err)

	s.Require().NoError(s.sims.Unreserve(s.ctx, sim.ID, req.TransactionID, models.OperationActivation))
	back, err := s.sims.FindByID(s.ctx, sim.ID)
	s.Require().NoError(err)
	s.Equal(0, back.TodayActivationCount)
	s.Nil(back.ReservedBy)
}

func (s *MongoRepositorySuite) TestSecretsEncryptedAtRest() {
	sim := &models.SimCard{Operator: "Orange MA", Pin: "4321", Puk: "12345678"}
	s.Require().NoError(s.sims.Create(s.ctx, sim))

	var raw bson.M
	s.Require().NoError(s.db.Collection(CollectionSimCards).FindOne(s.ctx, bson.M{"_id": sim.ID}).Decode(&raw))
	s.NotEqual("4321", raw["pin"])
	s.NotEqual("12345678", raw["puk"])

	loaded, err := s.sims.FindByID(s.ctx, sim.ID)
	s.Require().NoError(err)
	s.Equal("4321", loaded.Pin)
	s.Equal("12345678", loaded.Puk)
}

func (s *MongoRepositorySuite) TestDisableByDevice() {
	deviceID := primitive.NewObjectID()
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.sims.Create(s.ctx, &models.SimCard{Operator: "inwi", DeviceID: deviceID, ActivationEnabled: true, TopupEnabled: true}))
	}
	other := &models.SimCard{Operator: "inwi", DeviceID: primitive.NewObjectID(), ActivationEnabled: true}
	s.Require().NoError(s.sims.Create(s.ctx, other))

	n, err := s.sims.DisableByDevice(s.ctx, deviceID)
	s.Require().NoError(err)
	s.EqualValues(3, n)

	owned, err := s.sims.List(s.ctx, SimCardFilter{DeviceID: &deviceID})
	s.Require().NoError(err)
	for _, sim := range owned {
		s.False(sim.ActivationEnabled)
		s.False(sim.TopupEnabled)
	}

	untouched, err := s.sims.FindByID(s.ctx, other.ID)
	s.Require().NoError(err)
	s.True(untouched.ActivationEnabled)
}

func (s *MongoRepositorySuite) TestDebitNeverGoesNegative() {
	user := &models.User{Phone: "0600000001", Balance: 30, Role: "CUSTMER"}
	s.Require().NoError(s.users.Create(s.ctx, user))

	debited, err := s.users.Debit(s.ctx, user.ID, 20)
	s.Require().NoError(err)
	s.Equal(10.0, debited.Balance)
	s.Equal(models.RoleCustomer, debited.Role)

	refused, err := s.users.Debit(s.ctx, user.ID, 20)
	s.Require().NoError(err)
	s.Nil(refused)

	credited, err := s.users.Credit(s.ctx, user.ID, 20)
	s.Require().NoError(err)
	s.Equal(30.0, credited.Balance)
}

func (s *MongoRepositorySuite) TestLegacyRoleNormalizedOnRead() {
	_, err := s.db.Collection(CollectionUsers).InsertOne(s.ctx, bson.M{"phone": "0600000002", "role": "CUSTMER", "status": "accept"})
	s.Require().NoError(err)

	user, err := s.users.FindByPhone(s.ctx, "0600000002")
	s.Require().NoError(err)
	s.Equal(models.RoleCustomer, user.Role)
	s.Equal(models.UserStatusAccept, user.Status)
}

func (s *MongoRepositorySuite) TestCancelPendingIdempotent() {
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.transactions.Create(s.ctx, &models.Transaction{Type: models.OperationTopup, Status: models.StatusPending}))
	}
	s.Require().NoError(s.transactions.Create(s.ctx, &models.Transaction{Type: models.OperationActivation, Status: models.StatusPending}))
	s.Require().NoError(s.transactions.Create(s.ctx, &models.Transaction{Type: models.OperationTopup, Status: models.StatusSuccess}))

	first, err := s.transactions.CancelPending(s.ctx, models.OperationTopup, "Request cancelled by administrator", "batch-1")
	s.Require().NoError(err)
	s.Len(first, 3)
	for _, tx := range first {
		s.Equal(models.StatusRefused, tx.Status)
		s.Equal("Request cancelled by administrator", tx.CustomerMessage)
		s.NotZero(tx.DateResponse)
	}

	second, err := s.transactions.CancelPending(s.ctx, models.OperationTopup, "Request cancelled by administrator", "batch-2")
	s.Require().NoError(err)
	s.Len(second, 0)

	pending, err := s.transactions.List(s.ctx, models.TransactionFilter{Status: models.StatusPending})
	s.Require().NoError(err)
	s.Len(pending, 1)
	s.Equal(models.OperationActivation, pending[0].Type)
}

func (s *MongoRepositorySuite) TestResolveWritesOnce() {
	tx := &models.Transaction{Type: models.OperationActivation, Status: models.StatusPending}
	s.Require().NoError(s.transactions.Create(s.ctx, tx))

	res := models.Resolution{Status: models.StatusSuccess, Outcome: models.OutcomeSuccess, RawResponse: "OK", CustomerMessage: "Done", DateResponse: 1}
	resolved, err := s.transactions.Resolve(s.ctx, tx.ID, res)
	s.Require().NoError(err)
	s.Equal(models.StatusSuccess, resolved.Status)

	again, err := s.transactions.Resolve(s.ctx, tx.ID, models.Resolution{Status: models.StatusFailed, RawResponse: "late"})
	s.Require().NoError(err)
	s.Nil(again)

	moved, err := s.transactions.Transition(s.ctx, tx.ID, models.StatusSuccess, models.StatusActivate)
	s.Require().NoError(err)
	s.True(moved)

	ok, err := s.transactions.MarkRefunded(s.ctx, tx.ID)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *MongoRepositorySuite) TestMarkRefundedOnce() {
	tx := &models.Transaction{Type: models.OperationTopup, Status: models.StatusFailed}
	s.Require().NoError(s.transactions.Create(s.ctx, tx))

	first, err := s.transactions.MarkRefunded(s.ctx, tx.ID)
	s.Require().NoError(err)
	s.True(first)

	second, err := s.transactions.MarkRefunded(s.ctx, tx.ID)
	s.Require().NoError(err)
	s.False(second)
}

func (s *MongoRepositorySuite) TestConfigToggleAndTemplateUpsert() {
	entry := &models.ConfigEntry{Service: "topup", Enabled: true}
	s.Require().NoError(s.configs.Create(s.ctx, entry))

	toggled, err := s.configs.Toggle(s.ctx, entry.ID)
	s.Require().NoError(err)
	s.False(toggled.Enabled)

	tpl := &models.MessageTemplate{ServerMessage: "OK", CustomerMessage: "Done", Operator: "inwi", Operation: models.OperationTopup, Kind: models.OutcomeSuccess}
	inserted, err := s.templates.Upsert(s.ctx, tpl)
	s.Require().NoError(err)
	s.True(inserted)
	inserted, err = s.templates.Upsert(s.ctx, tpl)
	s.Require().NoError(err)
	s.False(inserted)

	matches, err := s.templates.FindMatches(s.ctx, "OK", "inwi", models.OperationTopup)
	s.Require().NoError(err)
	s.Len(matches, 1)
}
