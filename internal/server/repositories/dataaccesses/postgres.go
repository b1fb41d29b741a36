package dataaccesses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/dmitrijs2005/preshare/internal/common"
	"github.com/dmitrijs2005/preshare/internal/dbx"
	"github.com/dmitrijs2005/preshare/internal/server/models"
)

const (
	accesses = "data_accesses"
	readers  = "data_access_readers"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func selectAccesses() sq.SelectBuilder {
	return psql.Select("id", "data_id", "owner", "file_name", "storage_key", "created_at").From(accesses)
}

func (r *PostgresRepository) Create(ctx context.Context, d *models.DataAccess) (*models.DataAccess, error) {
	query, args, err := psql.Insert(accesses).
		Columns("owner", "file_name", "storage_key").
		Values(d.Owner, d.FileName, d.StorageKey).
		Suffix("RETURNING id, data_id, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&d.ID, &d.DataID, &d.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	d.Readers = []string{}
	return d, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.DataAccess, error) {
	return r.get(ctx, selectAccesses().Where(sq.Eq{"id": id}))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id int64) (*models.DataAccess, error) {
	return r.get(ctx, selectAccesses().Where(sq.Eq{"id": id}).Suffix("FOR UPDATE"))
}

func (r *PostgresRepository) get(ctx context.Context, b sq.SelectBuilder) (*models.DataAccess, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var d models.DataAccess
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&d.ID, &d.DataID, &d.Owner, &d.FileName, &d.StorageKey, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	list := []models.DataAccess{d}
	if err := r.attachReaders(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *PostgresRepository) ListOwned(ctx context.Context, owner string) ([]models.DataAccess, error) {
	return r.list(ctx, selectAccesses().Where(sq.Eq{"owner": owner}).OrderBy("id"))
}

func (r *PostgresRepository) ListGranted(ctx context.Context, reader string) ([]models.DataAccess, error) {
	return r.list(ctx, selectAccesses().
		Where(sq.Expr("EXISTS (SELECT 1 FROM "+readers+" r WHERE r.data_access_id = "+accesses+".id AND r.username = ?)", reader)).
		OrderBy("id"))
}

func (r *PostgresRepository) list(ctx context.Context, b sq.SelectBuilder) ([]models.DataAccess, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []models.DataAccess{}
	for rows.Next() {
		var d models.DataAccess
		if err := rows.Scan(&d.ID, &d.DataID, &d.Owner, &d.FileName, &d.StorageKey, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := r.attachReaders(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachReaders loads the reader lists of list in a single query.
func (r *PostgresRepository) attachReaders(ctx context.Context, list []models.DataAccess) error {
	if len(list) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(list))
	pos := make(map[int64]int, len(list))
	for i := range list {
		list[i].Readers = []string{}
		ids = append(ids, list[i].ID)
		pos[list[i].ID] = i
	}

	query, args, err := psql.Select("data_access_id", "username").From(readers).
		Where(sq.Eq{"data_access_id": ids}).
		OrderBy("data_access_id", "username").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if i, ok := pos[id]; ok {
			list[i].Readers = append(list[i].Readers, name)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetReaders(ctx context.Context, id int64, names []string) error {
	query, args, err := psql.Delete(readers).Where(sq.Eq{"data_access_id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if len(names) == 0 {
		return nil
	}

	ins := psql.Insert(readers).Columns("data_access_id", "username")
	for _, name := range names {
		ins = ins.Values(id, name)
	}
	query, args, err = ins.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query, args, err := psql.Delete(accesses).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
