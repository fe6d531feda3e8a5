package analytics

import (
	"math"

	"github.com/taskhive/pushguard/internal/domain"
)

// Compute reduces a window of delivery metrics into a snapshot. It is a
// pure function: the same metrics always produce the same snapshot, and an
// empty window produces the zero snapshot with initialized maps.
func Compute(metrics []domain.Metric) domain.AnalyticsSnapshot {
	snapshot := domain.AnalyticsSnapshot{
		ErrorBreakdown: map[string]int{},
		TypeBreakdown:  map[domain.NotificationType]int{},
	}

	responseTimeSum := 0
	responseTimeCount := 0

	for _, m := range metrics {
		switch m.Status {
		case domain.MetricStatusSent:
			snapshot.TotalSent++
		case domain.MetricStatusDelivered:
			snapshot.TotalDelivered++
		case domain.MetricStatusClicked:
			snapshot.TotalClicked++
		case domain.MetricStatusFailed:
			snapshot.TotalFailed++
			if m.ErrorCode != nil && *m.ErrorCode != "" {
				snapshot.ErrorBreakdown[*m.ErrorCode]++
			}
		}

		// Response times contribute regardless of status; zero means the
		// producer had no measurement, so it stays out of the mean.
		if m.ResponseTimeMs != nil && *m.ResponseTimeMs > 0 {
			responseTimeSum += *m.ResponseTimeMs
			responseTimeCount++
		}

		snapshot.TypeBreakdown[m.Type]++
	}

	if snapshot.TotalSent > 0 {
		snapshot.DeliveryRate = round2(float64(snapshot.TotalDelivered) / float64(snapshot.TotalSent) * 100)
	}
	if snapshot.TotalDelivered > 0 {
		snapshot.ClickRate = round2(float64(snapshot.TotalClicked) / float64(snapshot.TotalDelivered) * 100)
	}
	if responseTimeCount > 0 {
		snapshot.AverageResponseTime = int(math.Round(float64(responseTimeSum) / float64(responseTimeCount)))
	}

	return snapshot
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
