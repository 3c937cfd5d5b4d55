package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
	pgdb "github.com/isola513i/hari-hr-system/internal/platform/db/postgres"
)

const (
	nodeUniqueViolationCode     = "23505"
	nodeForeignKeyViolationCode = "23503"
	nodeCheckViolationCode      = "23514"
	nodeSerializationCode       = "40001"

	nodeSelfParentConstraint = "hierarchy_nodes_no_self_parent"
	nodeStatusConstraint     = "hierarchy_nodes_status_check"
)

// nodeSelect は直属の部下数を読み出し時に再計算する SELECT 句です。
const nodeSelect = `
        SELECT n.id,
               n.parent_id,
               n.name,
               n.role,
               n.department,
               n.email,
               n.avatar,
               n.status,
               n.created_at,
               n.updated_at,
               (SELECT COUNT(*)
                  FROM hierarchy_nodes c
                 WHERE c.parent_id = n.id
                   AND c.status <> 'terminated') AS direct_report_count`

// NodeRepository は PostgreSQL を利用した Node Store の実装です。
type NodeRepository struct {
	pool pgdb.Queryer
}

// NewNodeRepository は NodeRepository を生成します。
func NewNodeRepository(pool pgdb.Queryer) *NodeRepository {
	return &NodeRepository{pool: pool}
}

// ListAll はノード一覧を名前順で取得します。
// 部署指定時は一致したノードから上長方向へ再帰し、祖先も含めて返します。
func (r *NodeRepository) ListAll(ctx context.Context, filter hierarchy.ListFilter) ([]*hierarchy.Node, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)

	var (
		rows pgx.Rows
		err  error
	)
	if filter.Department == nil {
		rows, err = exec.Query(ctx, nodeSelect+`
          FROM hierarchy_nodes n
         WHERE ($1 OR n.status <> 'terminated')
         ORDER BY lower(n.name), n.id
    `, filter.IncludeTerminated)
	} else {
		rows, err = exec.Query(ctx, `
        WITH RECURSIVE matched AS (
            SELECT m.id, m.parent_id, 0 AS depth
              FROM hierarchy_nodes m
             WHERE lower(m.department) = lower($1)
               AND ($2 OR m.status <> 'terminated')
            UNION
            SELECT p.id, p.parent_id, matched.depth + 1
              FROM hierarchy_nodes p
              JOIN matched ON p.id = matched.parent_id
             WHERE matched.depth < (SELECT COUNT(*) FROM hierarchy_nodes)
        )`+nodeSelect+`
          FROM hierarchy_nodes n
         WHERE n.id IN (SELECT id FROM matched)
         ORDER BY lower(n.name), n.id
    `, *filter.Department, filter.IncludeTerminated)
	}
	if err != nil {
		return nil, translateNodePgError(err)
	}

	return collectNodes(rows)
}

// ListSubtree は rootID から子方向へ再帰し、ルートと在籍中の子孫を返します。
// 再帰の深さは総ノード数で打ち切ります。
func (r *NodeRepository) ListSubtree(ctx context.Context, rootID string) ([]*hierarchy.Node, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        WITH RECURSIVE subtree AS (
            SELECT s.id, 0 AS depth
              FROM hierarchy_nodes s
             WHERE s.id = $1
               AND s.status <> 'terminated'
            UNION
            SELECT c.id, subtree.depth + 1
              FROM hierarchy_nodes c
              JOIN subtree ON c.parent_id = subtree.id
             WHERE subtree.depth < (SELECT COUNT(*) FROM hierarchy_nodes)
        ),
        ranked AS (
            SELECT id, MIN(depth) AS depth
              FROM subtree
             GROUP BY id
        )`+nodeSelect+`
          FROM ranked
          JOIN hierarchy_nodes n ON n.id = ranked.id
         WHERE n.status <> 'terminated'
         ORDER BY ranked.depth, lower(n.name), n.id
    `, rootID)
	if err != nil {
		return nil, translateNodePgError(err)
	}

	return collectNodes(rows)
}

// FindByID は ID でノードを取得します。
func (r *NodeRepository) FindByID(ctx context.Context, id string) (*hierarchy.Node, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, nodeSelect+`
          FROM hierarchy_nodes n
         WHERE n.id = $1
         LIMIT 1
    `, id)

	found, err := scanNode(row)
	if err != nil {
		return nil, translateNodePgError(err)
	}
	return found, nil
}

// Create はノードを新規作成します。
func (r *NodeRepository) Create(ctx context.Context, n *hierarchy.Node) (*hierarchy.Node, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO hierarchy_nodes (id, parent_id, name, role, department, email, avatar, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, parent_id, name, role, department, email, avatar, status, created_at, updated_at, 0
    `,
		n.ID,
		nullableID(n.ParentID),
		n.Name,
		n.Role,
		n.Department,
		n.Email,
		n.Avatar,
		string(n.Status),
		n.CreatedAt,
		n.UpdatedAt,
	)

	created, err := scanNode(row)
	if err != nil {
		return nil, translateNodePgError(err)
	}
	return created, nil
}

// UpdateAttributes は上長以外の属性を更新します。
func (r *NodeRepository) UpdateAttributes(ctx context.Context, n *hierarchy.Node) (*hierarchy.Node, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        WITH updated AS (
            UPDATE hierarchy_nodes
               SET name = $1,
                   role = $2,
                   department = $3,
                   avatar = $4,
                   status = $5,
                   updated_at = $6
             WHERE id = $7
            RETURNING id, parent_id, name, role, department, email, avatar, status, created_at, updated_at
        )
        SELECT u.id, u.parent_id, u.name, u.role, u.department, u.email, u.avatar, u.status, u.created_at, u.updated_at,
               (SELECT COUNT(*) FROM hierarchy_nodes c WHERE c.parent_id = u.id AND c.status <> 'terminated')
          FROM updated u
    `,
		n.Name,
		n.Role,
		n.Department,
		n.Avatar,
		string(n.Status),
		n.UpdatedAt,
		n.ID,
	)

	updated, err := scanNode(row)
	if err != nil {
		return nil, translateNodePgError(err)
	}
	return updated, nil
}

// SetParent は上長参照を書き換えます。
func (r *NodeRepository) SetParent(ctx context.Context, id string, parentID *string, updatedAt time.Time) (*hierarchy.Node, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        WITH updated AS (
            UPDATE hierarchy_nodes
               SET parent_id = $1,
                   updated_at = $2
             WHERE id = $3
            RETURNING id, parent_id, name, role, department, email, avatar, status, created_at, updated_at
        )
        SELECT u.id, u.parent_id, u.name, u.role, u.department, u.email, u.avatar, u.status, u.created_at, u.updated_at,
               (SELECT COUNT(*) FROM hierarchy_nodes c WHERE c.parent_id = u.id AND c.status <> 'terminated')
          FROM updated u
    `, nullableID(parentID), updatedAt, id)

	updated, err := scanNode(row)
	if err != nil {
		return nil, translateNodePgError(err)
	}
	return updated, nil
}

// ReparentChildren は fromID 直下のノードを toID 配下へ付け替えます。
func (r *NodeRepository) ReparentChildren(ctx context.Context, fromID string, toID *string, updatedAt time.Time) (int, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `
        UPDATE hierarchy_nodes
           SET parent_id = $1,
               updated_at = $2
         WHERE parent_id = $3
    `, nullableID(toID), updatedAt, fromID)
	if err != nil {
		return 0, translateNodePgError(err)
	}
	return int(tag.RowsAffected()), nil
}

// Delete はノードを削除します。部下が残っている場合は外部キー違反となり ErrConflict を返します。
func (r *NodeRepository) Delete(ctx context.Context, id string) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `DELETE FROM hierarchy_nodes WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == nodeForeignKeyViolationCode {
			return hierarchy.ErrConflict
		}
		return translateNodePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return hierarchy.ErrNodeNotFound
	}
	return nil
}

func collectNodes(rows pgx.Rows) ([]*hierarchy.Node, error) {
	defer rows.Close()

	nodes := make([]*hierarchy.Node, 0)
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, translateNodePgError(err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, translateNodePgError(err)
	}
	return nodes, nil
}

func scanNode(row pgx.Row) (*hierarchy.Node, error) {
	var (
		id          string
		parentID    sql.NullString
		name        string
		role        string
		department  string
		email       string
		avatar      string
		status      string
		createdAt   time.Time
		updatedAt   time.Time
		reportCount int64
	)

	if err := row.Scan(
		&id,
		&parentID,
		&name,
		&role,
		&department,
		&email,
		&avatar,
		&status,
		&createdAt,
		&updatedAt,
		&reportCount,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, hierarchy.ErrNodeNotFound
		}
		return nil, err
	}

	var parentPtr *string
	if parentID.Valid {
		p := parentID.String
		parentPtr = &p
	}

	return &hierarchy.Node{
		ID:                id,
		ParentID:          parentPtr,
		Name:              name,
		Role:              role,
		Department:        department,
		Email:             email,
		Avatar:            avatar,
		Status:            hierarchy.Status(status),
		DirectReportCount: int(reportCount),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}

func translateNodePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return hierarchy.ErrNodeNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case nodeUniqueViolationCode, nodeSerializationCode:
			return hierarchy.ErrConflict
		case nodeForeignKeyViolationCode:
			return hierarchy.ErrParentNotFound
		case nodeCheckViolationCode:
			switch pgErr.ConstraintName {
			case nodeSelfParentConstraint:
				return hierarchy.ErrSelfReference
			case nodeStatusConstraint:
				return hierarchy.ErrInvalidStatus
			default:
				return err
			}
		}
	}

	return err
}

func nullableID(id *string) any {
	if id == nil {
		return nil
	}
	return *id
}
