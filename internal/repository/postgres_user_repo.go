package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hitoshi/stockroom/internal/model"
)

// userColumns はユーザー取得時のSELECT列。
// login_historyはto_jsonでRFC3339形式の配列として読み出す。
const userColumns = `id, external_id, email, first_name, last_name, full_name, profile_image,
	role, is_active, last_login, to_json(login_history), created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		user      model.User
		role      string
		lastLogin sql.NullTime
		history   []byte
	)
	err := row.Scan(
		&user.ID, &user.ExternalID, &user.Email, &user.FirstName, &user.LastName,
		&user.FullName, &user.ProfileImage, &role, &user.IsActive, &lastLogin,
		&history, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &user.LoginHistory); err != nil {
			return nil, errors.Wrap(err, "failed to decode login history")
		}
	}
	return &user, nil
}

// FindByExternalID は外部IDでユーザーを取得する。無効化済みのユーザーも対象。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = $1`,
		externalID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user by external ID")
	}
	return user, nil
}

// FindActive は有効なユーザーを外部IDまたは内部IDで検索する。
func (r *PostgresUserRepo) FindActive(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_active AND external_id = $1`
	args := []any{id}
	if parsed, err := uuid.Parse(id); err == nil {
		query = `SELECT ` + userColumns + ` FROM users WHERE is_active AND (external_id = $1 OR id = $2)
			ORDER BY (id = $2) DESC LIMIT 1`
		args = append(args, parsed)
	}

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active user")
	}
	return user, nil
}

// Create はユーザーを作成する。LastLoginが設定されていればログイン履歴の初期値にする。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	var lastLogin sql.NullTime
	if user.LastLogin != nil {
		lastLogin = sql.NullTime{Time: *user.LastLogin, Valid: true}
	}

	created, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (external_id, email, first_name, last_name, full_name, profile_image,
			role, is_active, last_login, login_history)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::timestamptz,
			CASE WHEN $9::timestamptz IS NULL THEN '{}'::timestamptz[] ELSE ARRAY[$9::timestamptz] END)
		 RETURNING `+userColumns,
		user.ExternalID, user.Email, user.FirstName, user.LastName, user.FullName,
		user.ProfileImage, string(user.Role), user.IsActive, lastLogin,
	))
	if err != nil {
		return errors.Wrap(err, "failed to insert user")
	}

	*user = *created
	return nil
}

// RecordLogin はログイン記録とプロフィール上書きを1回のUPDATEで行う。
func (r *PostgresUserRepo) RecordLogin(ctx context.Context, id string, at time.Time, profile *ProfileUpdate) (*model.User, error) {
	var row *sql.Row
	if profile == nil {
		row = r.db.QueryRowContext(ctx,
			`UPDATE users
			 SET last_login = $2, login_history = array_append(login_history, $2), updated_at = now()
			 WHERE id = $1
			 RETURNING `+userColumns,
			id, at,
		)
	} else {
		row = r.db.QueryRowContext(ctx,
			`UPDATE users
			 SET last_login = $2, login_history = array_append(login_history, $2),
				first_name = $3, last_name = $4, full_name = $5, profile_image = $6, updated_at = now()
			 WHERE id = $1
			 RETURNING `+userColumns,
			id, at, profile.FirstName, profile.LastName, profile.FullName, profile.ProfileImage,
		)
	}

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to record login")
	}
	return user, nil
}

// List は有効なユーザーの一覧と総件数を返す。
func (r *PostgresUserRepo) List(ctx context.Context, params ListUsersParams) ([]*model.User, int, error) {
	where := `WHERE is_active`
	args := []any{}
	if params.Search != "" {
		args = append(args, "%"+escapeLike(params.Search)+"%")
		where += ` AND (full_name ILIKE $1 OR email ILIKE $1)`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users `+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count users")
	}

	n := len(args)
	query := `SELECT ` + userColumns + ` FROM users ` + where +
		` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, params.Limit, params.Offset())...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan user")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to iterate users")
	}

	return users, total, nil
}

// UpdateRole は有効なユーザーのロールを更新する。
func (r *PostgresUserRepo) UpdateRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET role = $2, updated_at = now()
		 WHERE id = $1 AND is_active
		 RETURNING `+userColumns,
		id, string(role),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to update user role")
	}
	return user, nil
}

// Deactivate は有効なユーザーを無効化する。行は削除しない。
func (r *PostgresUserRepo) Deactivate(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = now() WHERE id = $1 AND is_active`,
		id,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to deactivate user")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rowsAffected > 0, nil
}

// PromoteByEmail は指定メールアドレスの有効なユーザーを管理者に昇格する。
func (r *PostgresUserRepo) PromoteByEmail(ctx context.Context, email string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = 'admin', updated_at = now()
		 WHERE email = $1 AND is_active AND role <> 'admin'`,
		email,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to promote user")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return rowsAffected, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
