package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagen/primecast/internal/models"
)

const uniqueViolation = "23505"

const userColumns = `id, name, email, password_hash, country, whatsapp, trial_start_date, trial_days,
	is_subscribed, subscription_end, is_suspended, suspend_reason, created_at`

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// CreateUser inserts a user and fills in the generated id and created_at.
func (p *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, country, whatsapp, trial_start_date, trial_days,
		                    is_subscribed, subscription_end, is_suspended, suspend_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at`,
		u.Name, u.Email, u.PasswordHash, u.Country, u.WhatsApp, u.TrialStartDate, u.TrialDays,
		u.IsSubscribed, u.SubscriptionEnd, u.IsSuspended, u.SuspendReason,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("CreateUser: %w", err)
	}
	return nil
}

// GetUserByID returns a single user by id.
func (p *Postgres) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("GetUserByID: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns a single user by email. The column is citext, so the
// match ignores case.
func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("GetUserByEmail: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by creation time, newest first.
func (p *Postgres) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUsers scan: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	return users, nil
}

// UpdateUser applies the non-nil fields and returns the updated row.
func (p *Postgres) UpdateUser(ctx context.Context, id string, f UserUpdate) (*models.User, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.IsSuspended != nil {
		set("is_suspended", *f.IsSuspended)
	}
	if f.ClearSuspendReason {
		sets = append(sets, "suspend_reason = NULL")
	} else if f.SuspendReason != nil {
		set("suspend_reason", *f.SuspendReason)
	}
	if f.IsSubscribed != nil {
		set("is_subscribed", *f.IsSubscribed)
	}
	if f.ClearSubscriptionEnd {
		sets = append(sets, "subscription_end = NULL")
	} else if f.SubscriptionEnd != nil {
		set("subscription_end", *f.SubscriptionEnd)
	}
	if f.TrialStartDate != nil {
		set("trial_start_date", *f.TrialStartDate)
	}
	if f.TrialDays != nil {
		set("trial_days", *f.TrialDays)
	}
	if len(sets) == 0 {
		return p.GetUserByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING `+userColumns,
		strings.Join(sets, ", "), len(args))
	u, err := scanUser(p.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("UpdateUser: %w", err)
	}
	return u, nil
}

// DeleteUser deletes a user by id.
func (p *Postgres) DeleteUser(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteUser: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Country, &u.WhatsApp,
		&u.TrialStartDate, &u.TrialDays, &u.IsSubscribed, &u.SubscriptionEnd,
		&u.IsSuspended, &u.SuspendReason, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
