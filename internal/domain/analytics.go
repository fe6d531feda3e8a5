package domain

// SystemScope selects metrics across all users in a window query.
const SystemScope = "*"

// AnalyticsSnapshot is a derived aggregate over a window of metrics.
// It is recomputed on demand and never persisted.
type AnalyticsSnapshot struct {
	TotalSent           int                      `json:"totalSent"`
	TotalDelivered      int                      `json:"totalDelivered"`
	TotalClicked        int                      `json:"totalClicked"`
	TotalFailed         int                      `json:"totalFailed"`
	DeliveryRate        float64                  `json:"deliveryRate"`
	ClickRate           float64                  `json:"clickRate"`
	AverageResponseTime int                      `json:"averageResponseTime"`
	ErrorBreakdown      map[string]int           `json:"errorBreakdown"`
	TypeBreakdown       map[NotificationType]int `json:"typeBreakdown"`
}
