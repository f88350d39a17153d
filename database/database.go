package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"shop-service/config"
)

type DB struct {
	SQL *sqlx.DB
}

func New(cfg config.Config) (*DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &DB{SQL: db}, nil
}

// Transact runs fn inside a transaction. A rolled-back transaction must leave
// no trace: callers treat an abort as "the operation never happened".
func (db *DB) Transact(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.SQL.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("transaction rollback failed")
		}
		return err
	}
	return tx.Commit()
}

func (db *DB) Close() {
	if err := db.SQL.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
}
