package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed sql/pre_bootstrap.sql
var preBootstrapSQL string

//go:embed sql/post_bootstrap.sql
var postBootstrapSQL string

// bootstrapSchema makes sure the extension, schema, tables and indexes exist.
// Every step is idempotent so it runs on each connect.
func (p *Pool) bootstrapSchema(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	if err := executeBootstrapSQL(ctx, p, "pre-bootstrap", preBootstrapSQL); err != nil {
		return err
	}
	if err := p.gdb.WithContext(ctx).AutoMigrate(bootstrapModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}
	if err := executeBootstrapSQL(ctx, p, "post-bootstrap", postBootstrapSQL); err != nil {
		return err
	}
	return nil
}

func executeBootstrapSQL(ctx context.Context, p *Pool, label, sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return nil
	}
	if err := p.gdb.WithContext(ctx).Exec(trimmed).Error; err != nil {
		return fmt.Errorf("execute %s SQL: %w", label, err)
	}
	return nil
}
