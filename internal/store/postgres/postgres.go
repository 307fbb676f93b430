// Package postgres is the durable store. Units of work run as SERIALIZABLE transactions over
// database/sql with the pgx driver; read models are loaded through gorm on the same pool.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"udhaar/backend/internal/logging"
	"udhaar/backend/internal/store"
)

//go:embed schema.sql
var schema string

type Options struct {
	// BreakerFailures is the number of consecutive failed Begin calls that open the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Logger          logrus.FieldLogger
}

type Store struct {
	db      *sql.DB
	gdb     *gorm.DB
	breaker *gobreaker.CircuitBreaker
	log     logrus.FieldLogger
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	s, err := open(databaseURL, opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

// open builds the pool and breaker without touching the network.
func open(databaseURL string, opts Options) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}

	log := opts.Logger.WithField("component", "postgres")
	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "postgres-begin",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
		// Context cancellation says nothing about the database's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &Store{db: db, gdb: gdb, breaker: breaker, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Begin opens a SERIALIZABLE transaction. Failures to reach the database, or an open breaker,
// surface as store.ErrUnavailable.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit %s", store.ErrUnavailable, s.breaker.State())
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return &tx{tx: out.(*sql.Tx)}, nil
}
