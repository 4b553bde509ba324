package services

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Query is a named, parameterized SQL statement. Name shows up in logs and errors.
type Query struct {
	Name string
	SQL  string
	Args []interface{}
}

// Querier runs raw aggregation SQL. Snapshot runs fn against a single read-only
// REPEATABLE READ transaction so every query inside sees the same data.
type Querier interface {
	Scan(ctx context.Context, q Query, dest interface{}) error
	Exec(ctx context.Context, q Query) error
	Snapshot(ctx context.Context, fn func(Querier) error) error
}

type gormQuerier struct {
	db *gorm.DB
}

func NewGormQuerier(db *gorm.DB) Querier {
	return gormQuerier{db: db}
}

func (g gormQuerier) Scan(ctx context.Context, q Query, dest interface{}) error {
	err := g.db.WithContext(ctx).Raw(q.SQL, q.Args...).Scan(dest).Error
	return errors.Wrapf(err, "query %s", q.Name)
}

func (g gormQuerier) Exec(ctx context.Context, q Query) error {
	err := g.db.WithContext(ctx).Exec(q.SQL, q.Args...).Error
	return errors.Wrapf(err, "exec %s", q.Name)
}

func (g gormQuerier) Snapshot(ctx context.Context, fn func(Querier) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormQuerier{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}
