package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, phone, created_at
		 FROM customers WHERE id = ?`,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

type directory struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewDirectory(db *gorm.DB, repo domain.Repository) domain.Directory {
	return &directory{db: db, repo: repo}
}

func (d *directory) Lookup(ctx context.Context, id snowflake.ID) (*domain.Customer, error) {
	return d.repo.FindByID(ctx, d.db, id)
}
