package service

import (
	"strings"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
)

const msgIncomplete = "Data is incomplete"

type executorResponsePayload struct {
	TransactionID normalize.String  `json:"transaction_id"`
	RawResponse   string            `json:"raw_response"`
	DateResponse  normalize.Int64   `json:"date_response"`
	Status        normalize.String  `json:"status"`
	NewBalance    normalize.Float64 `json:"new_balance"`
}

// DecodeExecutorResponse accepts the callback body in any key convention the executors use
// (MSG_RESPONSE, rawResponse, raw_response, ...).
func DecodeExecutorResponse(data []byte) (models.ExecutorResponse, error) {
	var p executorResponsePayload
	if err := normalize.Decode(data, &p, normalize.TransactionAliases); err != nil {
		return models.ExecutorResponse{}, models.NewValidationError(models.CodeInvalidRequest, err.Error())
	}
	if p.RawResponse == "" {
		return models.ExecutorResponse{}, models.NewValidationError(models.CodeInvalidRequest, msgIncomplete)
	}

	return models.ExecutorResponse{
		TransactionID: string(p.TransactionID),
		RawResponse:   p.RawResponse,
		DateResponse:  int64(p.DateResponse),
		Status:        models.TransactionStatus(strings.ToUpper(string(p.Status))),
		NewBalance:    float64(p.NewBalance),
	}, nil
}
