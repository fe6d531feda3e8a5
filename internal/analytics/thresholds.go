package analytics

import (
	"fmt"

	"github.com/taskhive/pushguard/internal/domain"
)

// Threshold levels for delivery health. Rates are percentages, response
// time is milliseconds.
const (
	deliveryRateWarn     = 95.0
	deliveryRateCritical = 85.0

	clickRateWarn     = 5.0
	clickRateCritical = 2.0

	responseTimeWarnMs     = 5000
	responseTimeCriticalMs = 10000

	failureRateWarn     = 10.0
	failureRateCritical = 20.0
)

// ThresholdReport lists delivery-health findings for one snapshot. Both
// slices are always non-nil so an empty report serializes as [].
type ThresholdReport struct {
	Warnings       []string `json:"warnings"`
	CriticalIssues []string `json:"criticalIssues"`
}

// Healthy reports whether no threshold fired.
func (r ThresholdReport) Healthy() bool {
	return len(r.Warnings) == 0 && len(r.CriticalIssues) == 0
}

// CheckPerformanceThresholds evaluates a snapshot against the delivery
// health thresholds. Each metric contributes at most one finding, critical
// before warning. Ratio checks are skipped when their denominator is zero,
// so a snapshot with no traffic yields an empty report.
func CheckPerformanceThresholds(snapshot domain.AnalyticsSnapshot) ThresholdReport {
	report := ThresholdReport{
		Warnings:       []string{},
		CriticalIssues: []string{},
	}

	if snapshot.TotalSent > 0 {
		switch {
		case snapshot.DeliveryRate < deliveryRateCritical:
			report.CriticalIssues = append(report.CriticalIssues,
				fmt.Sprintf("delivery rate critically low: %.2f%% (threshold %.0f%%)", snapshot.DeliveryRate, deliveryRateCritical))
		case snapshot.DeliveryRate < deliveryRateWarn:
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("delivery rate below target: %.2f%% (threshold %.0f%%)", snapshot.DeliveryRate, deliveryRateWarn))
		}

	}

	if attempts := snapshot.TotalSent + snapshot.TotalFailed; attempts > 0 {
		failureRate := float64(snapshot.TotalFailed) / float64(attempts) * 100
		switch {
		case failureRate > failureRateCritical:
			report.CriticalIssues = append(report.CriticalIssues,
				fmt.Sprintf("failure rate critically high: %.2f%% (threshold %.0f%%)", failureRate, failureRateCritical))
		case failureRate > failureRateWarn:
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("failure rate above target: %.2f%% (threshold %.0f%%)", failureRate, failureRateWarn))
		}
	}

	if snapshot.TotalDelivered > 0 {
		switch {
		case snapshot.ClickRate < clickRateCritical:
			report.CriticalIssues = append(report.CriticalIssues,
				fmt.Sprintf("click rate critically low: %.2f%% (threshold %.0f%%)", snapshot.ClickRate, clickRateCritical))
		case snapshot.ClickRate < clickRateWarn:
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("click rate below target: %.2f%% (threshold %.0f%%)", snapshot.ClickRate, clickRateWarn))
		}
	}

	if snapshot.AverageResponseTime > 0 {
		switch {
		case snapshot.AverageResponseTime > responseTimeCriticalMs:
			report.CriticalIssues = append(report.CriticalIssues,
				fmt.Sprintf("average response time critically high: %dms (threshold %dms)", snapshot.AverageResponseTime, responseTimeCriticalMs))
		case snapshot.AverageResponseTime > responseTimeWarnMs:
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("average response time above target: %dms (threshold %dms)", snapshot.AverageResponseTime, responseTimeWarnMs))
		}
	}

	return report
}
