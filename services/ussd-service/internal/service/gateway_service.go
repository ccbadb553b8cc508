package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/grigta/simgate/pkg/config"
	"github.com/grigta/simgate/pkg/messaging"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
	"github.com/grigta/simgate/services/ussd-service/internal/pool"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
	"github.com/grigta/simgate/services/ussd-service/internal/ussd"
)

const msgNothingToCancel = "nothing to cancel"

// DispatchEvent is published for every created transaction so executors can dial it.
type DispatchEvent struct {
	TransactionID string               `json:"transaction_id"`
	Type          models.OperationType `json:"type"`
	Operator      string               `json:"operator"`
	SimCardID     string               `json:"sim_card_id"`
	DeviceID      string               `json:"device_id"`
	UssdCode      string               `json:"ussd_code"`
}

type ResolvedEvent struct {
	TransactionID string                   `json:"transaction_id"`
	Type          models.OperationType     `json:"type"`
	Status        models.TransactionStatus `json:"status"`
	Outcome       models.OutcomeKind       `json:"outcome"`
	Refunded      bool                     `json:"refunded"`
}

type CancelResult struct {
	Type    models.OperationType `json:"type"`
	Count   int                  `json:"count"`
	Message string               `json:"message"`
}

// GatewayService runs the request lifecycle: submit, executor response, cancel.
type GatewayService struct {
	transactions repository.TransactionRepository
	sims         repository.SimCardRepository
	pool         *pool.Pool
	accounting   *Accounting
	resolver     *Resolver
	cache        TransactionCache
	publisher    messaging.EventPublisher
	notifier     Notifier
	logger       *logrus.Logger
	config       config.GatewayConfig
	now          func() time.Time
}

func NewGatewayService(
	transactions repository.TransactionRepository,
	sims repository.SimCardRepository,
	pool *pool.Pool,
	accounting *Accounting,
	resolver *Resolver,
	cache TransactionCache,
	publisher messaging.EventPublisher,
	notifier Notifier,
	logger *logrus.Logger,
	config config.GatewayConfig,
) *GatewayService {
	if cache == nil {
		cache = NopCache{}
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if config.CancelMessage == "" {
		config.CancelMessage = "Request cancelled by administrator"
	}
	return &GatewayService{
		transactions: transactions,
		sims:         sims,
		pool:         pool,
		accounting:   accounting,
		resolver:     resolver,
		cache:        cache,
		publisher:    publisher,
		notifier:     notifier,
		logger:       logger,
		config:       config,
		now:          time.Now,
	}
}

// Submit validates the request, reserves a SIM card, debits the caller and records a PENDING
// transaction. Any failure after the reservation releases the card and returns the money.
func (s *GatewayService) Submit(ctx context.Context, caller *models.User, req models.SubmitRequest) (*models.Transaction, error) {
	tx, err := s.submit(ctx, caller, req)
	if err != nil {
		RecordRejection(string(req.Type), string(models.KindOf(err)))
		return nil, err
	}
	RecordSubmission(string(tx.Type), tx.Operator)
	return tx, nil
}

func (s *GatewayService) submit(ctx context.Context, caller *models.User, req models.SubmitRequest) (*models.Transaction, error) {
	operator, phone, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	if !caller.Can(req.Type) {
		return nil, models.NewPermissionError(fmt.Sprintf("you are not allowed to submit %s requests", req.Type))
	}

	cost := s.cost(req)
	if cost > 0 && caller.Balance < cost {
		return nil, models.NewInsufficientBalanceError(caller.Balance, cost)
	}

	txID := primitive.NewObjectID()
	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": txID.Hex(),
		"user_id":        caller.ID.Hex(),
		"type":           req.Type,
		"operator":       operator,
	})

	sim, err := s.pool.Reserve(ctx, operator, req.Type, txID)
	if err != nil {
		return nil, err
	}
	unreserve := func() {
		if err := s.pool.Unreserve(ctx, sim.ID, txID, req.Type); err != nil {
			log.WithError(err).Warn("SIM card stays leased until expiry")
		}
	}

	code, err := ussd.Build(operator, req.Type, ussd.Params{
		Phone:  phone,
		Code:   req.Code,
		Amount: req.Amount,
		Offer:  req.Offer,
		PIN:    sim.Pin,
	})
	if err != nil {
		unreserve()
		if errors.Is(err, ussd.ErrMissingPIN) {
			log.WithField("sim_card_id", sim.ID.Hex()).Error("SIM card selected for top-up has no PIN")
			return nil, models.NewResourceUnavailableError(operator)
		}
		return nil, err
	}

	if _, err := s.accounting.Debit(ctx, caller, cost); err != nil {
		unreserve()
		return nil, err
	}

	dateOperation := req.DateOperation
	if dateOperation == 0 {
		dateOperation = s.now().UnixMilli()
	}

	tx := &models.Transaction{
		ID:            txID,
		Type:          req.Type,
		DateOperation: dateOperation,
		Operator:      operator,
		PhoneNumber:   phone,
		UssdCode:      code,
		Status:        models.StatusPending,
		UserID:        caller.ID,
		SimCardID:     sim.ID,
		Cost:          cost,
	}
	if req.Type == models.OperationActivation {
		tx.Code = req.Code
		tx.Serial = req.Serial
		tx.Puk = req.Puk
	} else {
		tx.Amount = req.Amount
		tx.Offer = req.Offer
	}

	if err := s.transactions.Create(ctx, tx); err != nil {
		log.WithError(err).Error("Failed to record transaction, compensating")
		if cost > 0 {
			if _, cerr := s.accounting.Credit(ctx, caller.ID, cost); cerr != nil {
				log.WithError(cerr).Error("Failed to return debit after create failure")
			}
		}
		unreserve()
		return nil, err
	}

	event := DispatchEvent{
		TransactionID: tx.ID.Hex(),
		Type:          tx.Type,
		Operator:      tx.Operator,
		SimCardID:     sim.ID.Hex(),
		DeviceID:      sim.DeviceID.Hex(),
		UssdCode:      tx.UssdCode,
	}
	if err := s.publisher.PublishEvent(messaging.EventTransactionCreated, event); err != nil {
		log.WithError(err).Warn("Failed to publish dispatch event")
	}

	log.WithField("sim_card_id", sim.ID.Hex()).Info("Transaction created")
	return tx, nil
}

func (s *GatewayService) validate(req models.SubmitRequest) (string, string, error) {
	if !req.Type.Valid() {
		return "", "", models.NewValidationError(models.CodeInvalidRequest, fmt.Sprintf("unknown request type %q", req.Type))
	}

	operator, ok := normalize.Operator(req.Operator)
	if !ok {
		return "", "", models.NewValidationError(models.CodeInvalidOperator, fmt.Sprintf("unknown operator %q", req.Operator))
	}

	phone := normalize.Phone(req.PhoneNumber)
	if !normalize.ValidPhone(phone) {
		return "", "", models.NewValidationError(models.CodeInvalidPhone, "phone number must contain exactly 10 digits")
	}

	switch req.Type {
	case models.OperationActivation:
		if !normalize.ValidActivationCode(req.Code) {
			return "", "", models.NewValidationError(models.CodeInvalidCode, "activation code must be 4 digits")
		}
	case models.OperationTopup:
		if !ussd.ValidAmount(req.Amount) {
			return "", "", models.NewValidationError(models.CodeInvalidAmount,
				fmt.Sprintf("amount %g is not an allowed denomination", req.Amount))
		}
		if !ussd.ValidOffer(req.Offer) {
			return "", "", models.NewValidationError(models.CodeInvalidOffer, fmt.Sprintf("unknown offer %q", req.Offer))
		}
	}
	return operator, phone, nil
}

func (s *GatewayService) cost(req models.SubmitRequest) float64 {
	if req.Type == models.OperationTopup {
		return req.Amount
	}
	return s.config.ActivationCost
}

// GetTransaction returns the transaction if caller may see it. Customers only see their own;
// anything else is reported as not found. Only settled transactions are cached.
func (s *GatewayService) GetTransaction(ctx context.Context, caller *models.User, id string) (*models.Transaction, error) {
	txID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.NewNotFoundError("transaction")
	}

	if cached, err := s.cache.GetTransaction(ctx, id); err == nil && cached != nil {
		if !visible(caller, cached) {
			return nil, models.NewNotFoundError("transaction")
		}
		return cached, nil
	}

	tx, err := s.transactions.FindByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx == nil || !visible(caller, tx) {
		return nil, models.NewNotFoundError("transaction")
	}

	if settled(tx) {
		if err := s.cache.SetTransaction(ctx, tx); err != nil {
			s.logger.WithError(err).Debug("Failed to cache transaction")
		}
	}
	return tx, nil
}

// settled reports whether tx can no longer change: terminal, past the activation confirmation
// step and, for a paid failure, refunded.
func settled(tx *models.Transaction) bool {
	if !tx.Status.IsTerminal() {
		return false
	}
	if tx.Type == models.OperationActivation && tx.Status == models.StatusSuccess && tx.Outcome == models.OutcomeSuccess {
		return false
	}
	return !tx.Status.IsFailure() || tx.Cost == 0 || tx.Refunded
}

func visible(caller *models.User, tx *models.Transaction) bool {
	return caller.Role != models.RoleCustomer || tx.UserID == caller.ID
}

func (s *GatewayService) ListTransactions(ctx context.Context, caller *models.User, filter models.TransactionFilter) ([]models.Transaction, error) {
	if caller.Role == models.RoleCustomer {
		id := caller.ID
		filter.UserID = &id
	}
	return s.transactions.List(ctx, filter)
}

// RecordResponse applies an executor callback. A transaction that is already terminal is
// returned unchanged; a response nobody can classify is stored and leaves the row PENDING.
func (s *GatewayService) RecordResponse(ctx context.Context, id string, resp models.ExecutorResponse) (*models.Transaction, error) {
	txID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.NewNotFoundError("transaction")
	}

	tx, err := s.transactions.FindByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, models.NewNotFoundError("transaction")
	}

	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": id,
		"type":           tx.Type,
		"operator":       tx.Operator,
	})

	if tx.Status != models.StatusPending {
		log.WithField("status", tx.Status).Info("Response for a resolved transaction ignored")
		return tx, nil
	}

	if resp.DateResponse == 0 {
		resp.DateResponse = s.now().UnixMilli()
	}
	defer s.invalidate(ctx, id)

	res := s.resolver.Resolve(ctx, tx, resp)
	RecordResolution(string(tx.Type), string(res.Status), string(res.Outcome))

	if res.Status == models.StatusPending {
		updated, err := s.transactions.RecordUnclassified(ctx, txID, resp.RawResponse, resp.DateResponse)
		if err != nil {
			return nil, err
		}
		if updated == nil {
			return s.current(ctx, txID)
		}

		unclassified := models.NewUnclassifiedError(resp.RawResponse)
		log.WithError(unclassified).Warn("Executor response left the transaction pending")
		s.alert(ctx, fmt.Sprintf("Unclassified %s response for transaction %s (%s, %s): %s",
			tx.Type, id, tx.Operator, tx.PhoneNumber, unclassified.Message))
		s.releaseSim(ctx, updated)
		return updated, nil
	}

	updated, err := s.transactions.Resolve(ctx, txID, res)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		log.Info("Transaction resolved concurrently")
		return s.current(ctx, txID)
	}

	if updated.Type == models.OperationActivation && updated.Status == models.StatusSuccess && res.Outcome == models.OutcomeSuccess {
		moved, err := s.transactions.Transition(ctx, txID, models.StatusSuccess, models.StatusActivate)
		if err != nil {
			log.WithError(err).Error("Failed to confirm activation")
		} else if moved {
			updated.Status = models.StatusActivate
		}
	}

	if _, err := s.accounting.Refund(ctx, updated); err != nil {
		log.WithError(err).Error("Failed to refund transaction")
	}
	s.releaseSim(ctx, updated)

	RecordResponseLatency(string(updated.Type), updated.Operator, float64(updated.DateResponse-updated.DateOperation)/1000)
	if err := s.publisher.PublishEvent(messaging.EventTransactionResolved, ResolvedEvent{
		TransactionID: id,
		Type:          updated.Type,
		Status:        updated.Status,
		Outcome:       updated.Outcome,
		Refunded:      updated.Refunded,
	}); err != nil {
		log.WithError(err).Warn("Failed to publish resolved event")
	}

	log.WithFields(logrus.Fields{
		"status":  updated.Status,
		"outcome": updated.Outcome,
	}).Info("Transaction resolved")
	return updated, nil
}

func (s *GatewayService) current(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	tx, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, models.NewNotFoundError("transaction")
	}
	return tx, nil
}

// CancelAllPending refuses every PENDING transaction of op, refunding each one. Running it again
// finds nothing and reports the informational "nothing to cancel" message.
func (s *GatewayService) CancelAllPending(ctx context.Context, op models.OperationType) (*CancelResult, error) {
	if !op.Valid() {
		return nil, models.NewValidationError(models.CodeInvalidRequest, fmt.Sprintf("unknown request type %q", op))
	}

	cancelled, err := s.transactions.CancelPending(ctx, op, s.config.CancelMessage, uuid.NewString())
	if err != nil {
		return nil, err
	}

	result := &CancelResult{Type: op, Count: len(cancelled)}
	if result.Count == 0 {
		result.Message = msgNothingToCancel
		return result, nil
	}
	result.Message = fmt.Sprintf("%d pending %s requests cancelled", result.Count, op)

	ids := make([]string, 0, len(cancelled))
	for i := range cancelled {
		tx := &cancelled[i]
		ids = append(ids, tx.ID.Hex())
		if _, err := s.accounting.Refund(ctx, tx); err != nil {
			s.logger.WithError(err).WithField("transaction_id", tx.ID.Hex()).Error("Failed to refund cancelled transaction")
		}
		s.releaseSim(ctx, tx)
	}
	if err := s.cache.DeleteTransaction(ctx, ids...); err != nil {
		s.logger.WithError(err).Debug("Failed to invalidate cancelled transactions")
	}

	RecordCancellation(string(op), result.Count)
	if err := s.publisher.PublishEvent(messaging.EventTransactionsCancelled, map[string]interface{}{
		"type":            op,
		"count":           result.Count,
		"transaction_ids": ids,
	}); err != nil {
		s.logger.WithError(err).Warn("Failed to publish cancel event")
	}
	s.alert(ctx, result.Message)

	s.logger.WithFields(logrus.Fields{"type": op, "count": result.Count}).Info("Pending transactions cancelled")
	return result, nil
}

// PendingJobs lists the PENDING transactions assigned to the SIM cards of a device.
func (s *GatewayService) PendingJobs(ctx context.Context, deviceID string) ([]models.Transaction, error) {
	id, err := primitive.ObjectIDFromHex(deviceID)
	if err != nil {
		return nil, models.NewValidationError(models.CodeInvalidRequest, "invalid device_id")
	}

	sims, err := s.sims.List(ctx, repository.SimCardFilter{DeviceID: &id})
	if err != nil {
		return nil, err
	}
	if len(sims) == 0 {
		return []models.Transaction{}, nil
	}

	simIDs := make([]primitive.ObjectID, 0, len(sims))
	for _, sim := range sims {
		simIDs = append(simIDs, sim.ID)
	}
	return s.transactions.List(ctx, models.TransactionFilter{
		Status:   models.StatusPending,
		SimCards: simIDs,
	})
}

func (s *GatewayService) releaseSim(ctx context.Context, tx *models.Transaction) {
	if tx.SimCardID.IsZero() {
		return
	}
	if err := s.pool.Release(ctx, tx.SimCardID, tx.ID); err != nil {
		s.logger.WithError(err).WithField("transaction_id", tx.ID.Hex()).Warn("SIM card stays leased until expiry")
	}
}

func (s *GatewayService) invalidate(ctx context.Context, id string) {
	if err := s.cache.DeleteTransaction(ctx, id); err != nil {
		s.logger.WithError(err).Debug("Failed to invalidate transaction")
	}
}

func (s *GatewayService) alert(ctx context.Context, text string) {
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.logger.WithError(err).Warn("Admin alert not delivered")
	}
}
