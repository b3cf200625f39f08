package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CompanyRepository struct {
	db *pgxpool.Pool
}

func NewCompanyRepository(db *pgxpool.Pool) *CompanyRepository {
	return &CompanyRepository{db: db}
}

// Upsert records a company once per (name, domain).
func (r *CompanyRepository) Upsert(ctx context.Context, name, domain string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO companies (company_name, company_email_domain)
        VALUES ($1, $2)
        ON CONFLICT (company_name, company_email_domain) DO NOTHING
    `, name, strings.ToLower(domain))
	return err
}
