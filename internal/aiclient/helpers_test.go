package aiclient

import (
	"time"

	"github.com/aryan877/sre-sentinel/internal/domain"
)

func incidentFixture() domain.Incident {
	return domain.Incident{
		ID:         "INC-20260101-000000",
		Service:    "postgres",
		DetectedAt: time.Now(),
		TriggeringAnomaly: domain.AnomalyVerdict{
			IsAnomaly: true,
			Type:      domain.AnomalyCrash,
			Severity:  domain.SeverityCritical,
			Summary:   "connection refused",
		},
		Status: domain.StatusAnalyzing,
	}
}
