package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// Dataset identifies a BigQuery dataset.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Repository holds a shared BigQuery client for the segmentation tables.
type Repository struct {
	client  *bigquery.Client
	dataset Dataset
}

// NewRepository creates a BigQuery client for the given project and dataset.
func NewRepository(ctx context.Context, dataset Dataset) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, dataset.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, dataset: dataset}, nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, dataset Dataset) *Repository {
	return &Repository{client: client, dataset: dataset}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// tableRef returns the fully qualified, backquoted table name for SQL.
func (d Dataset) tableRef(table string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, table)
}
