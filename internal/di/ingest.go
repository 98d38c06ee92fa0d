package di

import (
	"BarLake/internal/usecase"
	pkgch "BarLake/pkg/clickhouse"
	pkgkafka "BarLake/pkg/kafka"
	"BarLake/pkg/logger"
	"BarLake/pkg/postgresql"
)

// IngestRunner holds a file ingestor and the clients it must close.
type IngestRunner struct {
	Logger   *logger.Logger
	Files    *usecase.FileIngestor
	Postgres *postgresql.Client
	Producer *pkgkafka.Producer
	CH       *pkgch.Client
}

func (r *IngestRunner) Close() {
	r.Logger.RemoveCollector()
	if r.Producer != nil {
		_ = r.Producer.Close()
	}
	if r.CH != nil {
		_ = r.CH.Close()
	}
	if r.Postgres != nil {
		r.Postgres.Close()
	}
}
