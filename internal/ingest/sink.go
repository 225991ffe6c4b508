package ingest

import (
	"bytes"
	"context"

	"cshealth/internal/domain"
)

// ReportSink receives decoded usage reports from ingest interfaces.
// Params: context and validated report(s).
// Returns: processing error.
type ReportSink interface {
	Push(ctx context.Context, report domain.UsageReport) error
	PushBatch(ctx context.Context, reports []domain.UsageReport) error
}

// decodePayload accepts one report object or JSON array of reports.
// Params: raw JSON payload.
// Returns: validated reports and flag telling whether payload was an array.
func decodePayload(raw []byte) ([]domain.UsageReport, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		reports, err := domain.DecodeUsageReports(trimmed)
		return reports, true, err
	}
	report, err := domain.DecodeUsageReport(trimmed)
	if err != nil {
		return nil, false, err
	}
	return []domain.UsageReport{report}, false, nil
}

func push(ctx context.Context, sink ReportSink, reports []domain.UsageReport, batch bool) error {
	if batch {
		return sink.PushBatch(ctx, reports)
	}
	return sink.Push(ctx, reports[0])
}
