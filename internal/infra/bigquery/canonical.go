package bigquery

import (
	"bytes"
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/card-segments/internal/domain"
	"github.com/dvloznov/card-segments/internal/storage"
)

// CanonicalExporter publishes the canonical table to BigQuery for reporting.
type CanonicalExporter struct {
	repo  *Repository
	table string
}

// NewCanonicalExporter creates an exporter writing to table in the repository's dataset.
func NewCanonicalExporter(repo *Repository, table string) *CanonicalExporter {
	return &CanonicalExporter{repo: repo, table: table}
}

// Export replaces the table contents with the canonical table.
func (e *CanonicalExporter) Export(ctx context.Context, table domain.CanonicalTable) error {
	return ReplaceCanonicalTableWithClient(ctx, e.repo.client, e.repo.dataset, e.table, table)
}

// Location identifies the destination table.
func (e *CanonicalExporter) Location() string {
	return fmt.Sprintf("%s.%s.%s", e.repo.dataset.ProjectID, e.repo.dataset.DatasetID, e.table)
}

// ReplaceCanonicalTableWithClient loads the table as Parquet with WRITE_TRUNCATE. The load
// job commits atomically, so readers see the old rows until the job succeeds.
func ReplaceCanonicalTableWithClient(ctx context.Context, client *bigquery.Client, dataset Dataset, tableID string, table domain.CanonicalTable) error {
	data, err := storage.EncodeParquet(table)
	if err != nil {
		return fmt.Errorf("ReplaceCanonicalTable: %w", err)
	}

	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.Parquet

	loader := client.DatasetInProject(dataset.ProjectID, dataset.DatasetID).Table(tableID).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("ReplaceCanonicalTable: starting load job: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("ReplaceCanonicalTable: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("ReplaceCanonicalTable: job error: %w", err)
	}
	return nil
}
