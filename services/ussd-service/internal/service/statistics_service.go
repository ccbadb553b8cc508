package service

import (
	"context"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"gonum.org/v1/gonum/stat"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

type StatisticsService struct {
	transactions repository.TransactionRepository
	logger       *logrus.Logger
}

func NewStatisticsService(transactions repository.TransactionRepository, logger *logrus.Logger) *StatisticsService {
	return &StatisticsService{transactions: transactions, logger: logger}
}

type countBucket struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

type totalsBucket struct {
	Total    int64   `bson:"total"`
	Spent    float64 `bson:"spent"`
	Refunded float64 `bson:"refunded"`
}

type latencySample struct {
	Seconds float64 `bson:"seconds"`
}

type statisticsFacet struct {
	ByStatus   []countBucket   `bson:"by_status"`
	ByOperator []countBucket   `bson:"by_operator"`
	ByType     []countBucket   `bson:"by_type"`
	Totals     []totalsBucket  `bson:"totals"`
	Latency    []latencySample `bson:"latency"`
}

func statisticsPipeline() bson.A {
	groupBy := func(field string) bson.A {
		return bson.A{bson.M{"$group": bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}}
	}

	return bson.A{
		bson.M{"$facet": bson.M{
			"by_status":   groupBy("status"),
			"by_operator": groupBy("operator"),
			"by_type":     groupBy("type"),
			"totals": bson.A{bson.M{"$group": bson.M{
				"_id":      nil,
				"total":    bson.M{"$sum": 1},
				"spent":    bson.M{"$sum": "$cost"},
				"refunded": bson.M{"$sum": bson.M{"$cond": bson.A{"$refunded", "$cost", 0}}},
			}}},
			"latency": bson.A{
				bson.M{"$match": bson.M{
					"date_response": bson.M{"$gt": 0},
					"status":        bson.M{"$ne": models.StatusPending},
				}},
				bson.M{"$project": bson.M{
					"_id":     0,
					"seconds": bson.M{"$divide": bson.A{bson.M{"$subtract": bson.A{"$date_response", "$date_operation"}}, 1000}},
				}},
			},
		}},
	}
}

// Compute returns counts, money totals and executor latency over all transactions.
func (s *StatisticsService) Compute(ctx context.Context) (*models.Statistics, error) {
	var facets []statisticsFacet
	if err := s.transactions.Aggregate(ctx, statisticsPipeline(), &facets); err != nil {
		s.logger.WithError(err).Error("Failed to aggregate statistics")
		return nil, err
	}

	out := &models.Statistics{
		ByStatus:   map[string]int64{},
		ByOperator: map[string]int64{},
		ByType:     map[string]int64{},
	}
	if len(facets) == 0 {
		return out, nil
	}
	f := facets[0]

	for _, b := range f.ByStatus {
		out.ByStatus[b.Key] = b.Count
	}
	for _, b := range f.ByOperator {
		out.ByOperator[b.Key] = b.Count
	}
	for _, b := range f.ByType {
		out.ByType[b.Key] = b.Count
	}
	if len(f.Totals) > 0 {
		out.TotalTransactions = f.Totals[0].Total
		out.TotalSpent = f.Totals[0].Spent
		out.TotalRefunded = f.Totals[0].Refunded
	}
	out.Pending = out.ByStatus[string(models.StatusPending)]

	samples := make([]float64, 0, len(f.Latency))
	for _, l := range f.Latency {
		if l.Seconds >= 0 {
			samples = append(samples, l.Seconds)
		}
	}
	out.Latency = Latency(samples)
	return out, nil
}

// Latency summarises response times in seconds. It sorts samples in place.
func Latency(samples []float64) models.LatencyStats {
	ls := models.LatencyStats{Samples: len(samples)}
	if len(samples) == 0 {
		return ls
	}

	sort.Float64s(samples)
	ls.Mean = stat.Mean(samples, nil)
	if len(samples) > 1 {
		ls.StdDev = stat.StdDev(samples, nil)
	}
	ls.P95 = stat.Quantile(0.95, stat.Empirical, samples, nil)

	if math.IsNaN(ls.StdDev) {
		ls.StdDev = 0
	}
	return ls
}
