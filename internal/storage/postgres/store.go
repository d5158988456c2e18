package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// querier покрывает общие методы *sql.DB и *sql.Tx: одни и те же
// репозитории работают и вне, и внутри транзакции.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL и реализует
// транзакционную единицу работы поверх него.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Within выполняет fn внутри одной SQL-транзакции: ошибка из fn
// откатывает все сделанные в ней изменения.
func (s *Store) Within(ctx context.Context, fn func(r domain.RepositorySet) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}

	if err := fn(newRepositorySet(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

// Repos возвращает репозитории вне транзакционной границы.
func (s *Store) Repos() domain.RepositorySet {
	return newRepositorySet(s.db)
}

func newRepositorySet(q querier) domain.RepositorySet {
	return domain.RepositorySet{
		Items:         &itemRepository{q: q},
		Users:         &userRepository{q: q},
		Conversations: &conversationRepository{q: q},
		Messages:      &messageRepository{q: q},
		BuyRequests:   &buyRequestRepository{q: q},
		Transactions:  &transactionRepository{q: q},
		Reviews:       &reviewRepository{q: q},
		Outbox:        &outboxRepository{q: q},
		Timeline:      &timelineRepository{q: q},
	}
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// isUniqueViolation распознаёт нарушение unique-ограничения;
// constraint сужает проверку до конкретного индекса (пустая строка — любой).
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

var _ domain.Store = (*Store)(nil)
