package db

import (
	"context"
	"regexp"

	"github.com/jackc/pgx/v5"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
)

type tenantKey struct{}

var tenantAlias = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)

// ContextWithTenant scopes repository calls made with ctx to a tenant schema
func ContextWithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFromContext returns the tenant alias, empty for the shared schema
func TenantFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tenantKey{}).(string)
	return t
}

// SchemaForTenant returns the schema name for a tenant alias
func SchemaForTenant(alias string) (string, error) {
	if alias == "" {
		return "public", nil
	}
	if !tenantAlias.MatchString(alias) {
		return "", apperrors.InvalidInput("malformed tenant alias: " + alias)
	}
	return "emp_" + alias, nil
}

// invoiceTable returns the quoted invoices table for the tenant in ctx
func invoiceTable(ctx context.Context) (string, error) {
	schema, err := SchemaForTenant(TenantFromContext(ctx))
	if err != nil {
		return "", err
	}
	return pgx.Identifier{schema, "invoices"}.Sanitize(), nil
}
