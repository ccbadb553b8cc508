package models

type Statistics struct {
	TotalTransactions int64            `json:"total_transactions"`
	ByStatus          map[string]int64 `json:"by_status"`
	ByOperator        map[string]int64 `json:"by_operator"`
	ByType            map[string]int64 `json:"by_type"`
	TotalSpent        float64          `json:"total_spent"`
	TotalRefunded     float64          `json:"total_refunded"`
	Pending           int64            `json:"pending"`
	Latency           LatencyStats     `json:"latency"`
}

// LatencyStats describes executor response time in seconds over resolved transactions.
type LatencyStats struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	P95     float64 `json:"p95"`
}
