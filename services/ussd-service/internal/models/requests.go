package models

// SubmitRequest is the canonical form of an activation or top-up submission.
type SubmitRequest struct {
	Type          OperationType
	Operator      string
	PhoneNumber   string
	Code          string
	Serial        string
	Puk           string
	Amount        float64
	Offer         string
	DateOperation int64
}

// ExecutorResponse is what the executor writes back after dialing the USSD code.
type ExecutorResponse struct {
	TransactionID string            `json:"transaction_id,omitempty"`
	RawResponse   string            `json:"raw_response"`
	DateResponse  int64             `json:"date_response"`
	Status        TransactionStatus `json:"status"`
	NewBalance    float64           `json:"new_balance"`
}
