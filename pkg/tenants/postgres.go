package tenants

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/storage/postgres"
	"github.com/edpsych-connect/connect/pkg/tenantusers"
)

// MigrationFS holds the tenant schema migrations
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// MigrationsTable records which tenant migrations have been applied
const MigrationsTable = "tenant_migrations"

// Migrate applies pending tenant schema migrations
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	migrations, err := postgres.LoadMigrations(MigrationFS, "migrations")
	if err != nil {
		return err
	}
	return postgres.RunMigrations(ctx, db, MigrationsTable, migrations, logger)
}

// uniqueViolation is the PostgreSQL error code for a unique index violation
const uniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewPostgresStore creates a PostgresStore. metrics may be nil.
func NewPostgresStore(db *sql.DB, metrics *observability.Metrics) *PostgresStore {
	return &PostgresStore{db: db, metrics: metrics}
}

const userColumns = `id, tenant_id, email, name, role, permissions, settings, created_at, updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *User) (err error) {
	defer s.observe("create_user", time.Now(), &err)
	return insertUser(ctx, s.db, user)
}

func insertUser(ctx context.Context, db execer, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	settingsJSON, err := marshalSettings(user.Settings)
	if err != nil {
		return err
	}

	query := `INSERT INTO tenant_users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = db.ExecContext(ctx, query,
		user.ID, user.TenantID, user.Email, user.Name, string(user.Role),
		pq.Array(user.Permissions), settingsJSON, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s already belongs to the tenant", ErrConflict, user.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, tenantID, userID string) (user *User, err error) {
	defer s.observe("get_user", time.Now(), &err)

	query := `SELECT ` + userColumns + ` FROM tenant_users WHERE tenant_id = $1 AND id = $2`
	user, err = scanUser(s.db.QueryRowContext(ctx, query, tenantID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, tenantID, email string) (user *User, err error) {
	defer s.observe("get_user_by_email", time.Now(), &err)

	query := `SELECT ` + userColumns + ` FROM tenant_users WHERE tenant_id = $1 AND lower(email) = lower($2)`
	user, err = scanUser(s.db.QueryRowContext(ctx, query, tenantID, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user *User) (err error) {
	defer s.observe("update_user", time.Now(), &err)

	settingsJSON, err := marshalSettings(user.Settings)
	if err != nil {
		return err
	}

	query := `
		UPDATE tenant_users
		SET email = $1, name = $2, role = $3, permissions = $4, settings = $5, updated_at = $6
		WHERE tenant_id = $7 AND id = $8
	`
	result, err := s.db.ExecContext(ctx, query,
		user.Email, user.Name, string(user.Role), pq.Array(user.Permissions), settingsJSON,
		user.UpdatedAt, user.TenantID, user.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s already belongs to the tenant", ErrConflict, user.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRow(result, "user")
}

func (s *PostgresStore) DeleteUser(ctx context.Context, tenantID, userID string) (err error) {
	defer s.observe("delete_user", time.Now(), &err)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tenant_users WHERE tenant_id = $1 AND id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireRow(result, "user")
}

func (s *PostgresStore) ListUsers(ctx context.Context, tenantID string, query UserQuery) (users []User, total int, err error) {
	defer s.observe("list_users", time.Now(), &err)

	where := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	argPos := 2

	if query.Role != "" {
		where = append(where, fmt.Sprintf("role = $%d", argPos))
		args = append(args, string(query.Role))
		argPos++
	}
	if query.Search != "" {
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+escapeLike(query.Search)+"%")
		argPos++
	}
	whereSQL := strings.Join(where, " AND ")

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tenant_users WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	column, ok := sortColumns[query.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if query.SortOrder == tenantusers.SortDesc {
		direction = "DESC"
	}

	listSQL := fmt.Sprintf(`SELECT %s FROM tenant_users WHERE %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		userColumns, whereSQL, column, direction, direction, argPos, argPos+1)
	rows, err := s.db.QueryContext(ctx, listSQL, append(args, query.Limit, query.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users = []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

const invitationColumns = `id, tenant_id, email, name, role, message, token, status,
	created_at, expires_at, accepted_at, delivery_count, last_sent_at`

func (s *PostgresStore) CreateInvitation(ctx context.Context, inv *Invitation) (err error) {
	defer s.observe("create_invitation", time.Now(), &err)

	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}

	query := `INSERT INTO tenant_invitations (` + invitationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = s.db.ExecContext(ctx, query,
		inv.ID, inv.TenantID, inv.Email, inv.Name, string(inv.Role), nullString(inv.Message), inv.Token,
		string(inv.Status), inv.CreatedAt, inv.ExpiresAt, nullTime(inv.AcceptedAt),
		inv.DeliveryCount, nullTime(inv.LastSentAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s already has a pending invitation", ErrConflict, inv.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInvitation(ctx context.Context, tenantID, invitationID string) (inv *Invitation, err error) {
	defer s.observe("get_invitation", time.Now(), &err)

	query := `SELECT ` + invitationColumns + ` FROM tenant_invitations WHERE tenant_id = $1 AND id = $2`
	inv, err = scanInvitation(s.db.QueryRowContext(ctx, query, tenantID, invitationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invitation %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) GetInvitationByToken(ctx context.Context, token string) (inv *Invitation, err error) {
	defer s.observe("get_invitation_by_token", time.Now(), &err)

	query := `SELECT ` + invitationColumns + ` FROM tenant_invitations WHERE token = $1`
	inv, err = scanInvitation(s.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invitation %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// ListInvitations returns the tenant's invitations, newest first
func (s *PostgresStore) ListInvitations(ctx context.Context, tenantID string) (invitations []Invitation, err error) {
	defer s.observe("list_invitations", time.Now(), &err)

	query := `SELECT ` + invitationColumns + ` FROM tenant_invitations
		WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations = []Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invitations, nil
}

func (s *PostgresStore) UpdateInvitation(ctx context.Context, inv *Invitation) (err error) {
	defer s.observe("update_invitation", time.Now(), &err)

	result, err := updateInvitation(ctx, s.db, inv)
	if err != nil {
		return err
	}
	return requireRow(result, "invitation")
}

func updateInvitation(ctx context.Context, db execer, inv *Invitation) (sql.Result, error) {
	query := `
		UPDATE tenant_invitations
		SET status = $1, expires_at = $2, accepted_at = $3, delivery_count = $4, last_sent_at = $5
		WHERE tenant_id = $6 AND id = $7
	`
	result, err := db.ExecContext(ctx, query,
		string(inv.Status), inv.ExpiresAt, nullTime(inv.AcceptedAt), inv.DeliveryCount, nullTime(inv.LastSentAt),
		inv.TenantID, inv.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update invitation: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) DeleteInvitation(ctx context.Context, tenantID, invitationID string) (err error) {
	defer s.observe("delete_invitation", time.Now(), &err)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tenant_invitations WHERE tenant_id = $1 AND id = $2`, tenantID, invitationID)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	return requireRow(result, "invitation")
}

// AcceptInvitation locks the invitation row, creates the user and records the
// acceptance in one transaction
func (s *PostgresStore) AcceptInvitation(ctx context.Context, inv *Invitation, user *User) (err error) {
	defer s.observe("accept_invitation", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM tenant_invitations WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		inv.TenantID, inv.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("invitation %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get invitation: %w", err)
	}
	if tenantusers.InvitationStatus(status) != tenantusers.InvitationPending {
		return fmt.Errorf("%w: invitation is %s", ErrConflict, status)
	}

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}
	if _, err := updateInvitation(ctx, tx, inv); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invitation acceptance: %w", err)
	}
	return nil
}

func (s *PostgresStore) ExpireInvitations(ctx context.Context, now time.Time) (n int, err error) {
	defer s.observe("expire_invitations", time.Now(), &err)

	result, err := s.db.ExecContext(ctx,
		`UPDATE tenant_invitations SET status = $1 WHERE status = $2 AND expires_at <= $3`,
		string(tenantusers.InvitationExpired), string(tenantusers.InvitationPending), now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveStore(op, "postgres", start, *err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user         User
		role         string
		permissions  pq.StringArray
		settingsJSON []byte
	)
	err := row.Scan(&user.ID, &user.TenantID, &user.Email, &user.Name, &role,
		&permissions, &settingsJSON, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}

	user.Role = tenantusers.TenantRole(role)
	user.Permissions = []string(permissions)
	if user.Permissions == nil {
		user.Permissions = []string{}
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &user.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return &user, nil
}

func scanInvitation(row rowScanner) (*Invitation, error) {
	var (
		inv                    Invitation
		role, status           string
		message                sql.NullString
		acceptedAt, lastSentAt sql.NullTime
	)
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.Name, &role, &message, &inv.Token, &status,
		&inv.CreatedAt, &inv.ExpiresAt, &acceptedAt, &inv.DeliveryCount, &lastSentAt)
	if err != nil {
		return nil, err
	}

	inv.Role = tenantusers.TenantRole(role)
	inv.Status = tenantusers.InvitationStatus(status)
	inv.Message = message.String
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	if lastSentAt.Valid {
		t := lastSentAt.Time
		inv.LastSentAt = &t
	}
	return &inv, nil
}

func marshalSettings(settings map[string]interface{}) ([]byte, error) {
	if settings == nil {
		return nil, nil
	}
	b, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	return b, nil
}

func requireRow(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
