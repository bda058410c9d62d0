package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type schemaColumn struct {
	table  string
	column string
}

// requiredColumns are the columns the reconciler, the evidence query and the
// write path read or write.
var requiredColumns = []schemaColumn{
	{table: "survey_configs", column: "is_active"},
	{table: "questions", column: "question_key"},
	{table: "questions", column: "question_type"},
	{table: "questions", column: "labels"},
	{table: "questions", column: "allow_na"},
	{table: "survey_responses", column: "is_draft"},
	{table: "survey_responses", column: "submitted_at"},
	{table: "survey_responses", column: "ratings"},
	{table: "survey_responses", column: "multiselect"},
	{table: "survey_responses", column: "text_responses"},
	{table: "survey_responses", column: "na_responses"},
	{table: "question_answers", column: "answer_value"},
	{table: "question_answers", column: "config_id"},
}

func ValidateRuntimeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("database pool is nil")
	}

	for _, item := range requiredColumns {
		ok, err := columnExists(ctx, pool, item.table, item.column)
		if err != nil {
			return fmt.Errorf(
				"failed checking schema for %s.%s: %w",
				item.table,
				item.column,
				err,
			)
		}
		if !ok {
			return fmt.Errorf(
				"required column %s.%s is missing; run with AUTO_MIGRATE=true or apply the migrations",
				item.table,
				item.column,
			)
		}
	}

	return nil
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	table := strings.TrimSpace(tableName)
	column := strings.TrimSpace(columnName)
	if table == "" || column == "" {
		return false, fmt.Errorf("table/column must not be empty")
	}
	var exists bool
	err := pool.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM information_schema.columns
		   WHERE table_schema = current_schema()
		     AND table_name = $1
		     AND column_name = $2
		 )`,
		table,
		column,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
