package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

// Resolver turns the free-text executor response into a transaction outcome.
type Resolver struct {
	templates repository.TemplateRepository
	logger    *logrus.Logger
}

func NewResolver(templates repository.TemplateRepository, logger *logrus.Logger) *Resolver {
	return &Resolver{templates: templates, logger: logger}
}

// Resolve looks up the templates for the response and classifies it. Lookup failures count as
// no match: the callback is never rejected because of reference data.
func (r *Resolver) Resolve(ctx context.Context, tx *models.Transaction, resp models.ExecutorResponse) models.Resolution {
	matches, err := r.templates.FindMatches(ctx, resp.RawResponse, tx.Operator, tx.Type)
	if err != nil {
		r.logger.WithError(err).WithField("transaction_id", tx.ID.Hex()).Error("Template lookup failed")
		matches = nil
	}
	if len(matches) > 1 {
		r.logger.WithFields(logrus.Fields{
			"transaction_id": tx.ID.Hex(),
			"matches":        len(matches),
		}).Warn("Ambiguous message templates")
	}
	return Classify(matches, resp)
}

// Classify is the pure decision behind Resolve.
//
// Exactly one template decides status, outcome and customer text. Otherwise the response is
// unclassified: a terminal executor status is used as is with the raw text shown to the
// customer, and without one the status stays PENDING.
func Classify(matches []models.MessageTemplate, resp models.ExecutorResponse) models.Resolution {
	res := models.Resolution{
		RawResponse:  resp.RawResponse,
		DateResponse: resp.DateResponse,
		NewBalance:   resp.NewBalance,
	}

	if len(matches) == 1 {
		tpl := matches[0]
		res.Outcome = tpl.Kind
		res.CustomerMessage = tpl.CustomerMessage
		if tpl.Kind == models.OutcomeSuccess {
			res.Status = models.StatusSuccess
		} else {
			res.Status = models.StatusFailed
		}
		return res
	}

	res.Outcome = models.OutcomeUnclassified
	res.CustomerMessage = resp.RawResponse
	if resp.Status.IsTerminal() {
		res.Status = resp.Status
	} else {
		res.Status = models.StatusPending
	}
	return res
}
