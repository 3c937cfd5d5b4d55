package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

var nodeColumns = []string{
	"id", "parent_id", "name", "role", "department", "email", "avatar", "status", "created_at", "updated_at", "direct_report_count",
}

type stubNodeRow struct {
	scanFn func(dest ...any) error
}

func (s stubNodeRow) Scan(dest ...any) error {
	return s.scanFn(dest...)
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestScanNode_Success(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	row := stubNodeRow{scanFn: func(dest ...any) error {
		if len(dest) != 11 {
			return errors.New("unexpected dest length")
		}
		*(dest[0].(*string)) = "node-2"
		parent := dest[1].(*sql.NullString)
		parent.String = "node-1"
		parent.Valid = true
		*(dest[2].(*string)) = "Bob"
		*(dest[3].(*string)) = "CTO"
		*(dest[4].(*string)) = "Eng"
		*(dest[5].(*string)) = "bob@example.com"
		*(dest[6].(*string)) = ""
		*(dest[7].(*string)) = string(hierarchy.StatusOnLeave)
		*(dest[8].(*time.Time)) = createdAt
		*(dest[9].(*time.Time)) = createdAt
		*(dest[10].(*int64)) = 4
		return nil
	}}

	n, err := scanNode(row)
	if err != nil {
		t.Fatalf("scanNode returned error: %v", err)
	}
	if !n.HasParent("node-1") {
		t.Fatalf("expected parent node-1, got %+v", n.ParentID)
	}
	if n.Status != hierarchy.StatusOnLeave || n.DirectReportCount != 4 {
		t.Fatalf("unexpected node: %+v", n)
	}
}

func TestScanNode_NoRows(t *testing.T) {
	t.Parallel()

	row := stubNodeRow{scanFn: func(dest ...any) error {
		return pgx.ErrNoRows
	}}

	if _, err := scanNode(row); !errors.Is(err, hierarchy.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestTranslateNodePgError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "unique", err: &pgconn.PgError{Code: nodeUniqueViolationCode}, want: hierarchy.ErrConflict},
		{name: "serialization", err: &pgconn.PgError{Code: nodeSerializationCode}, want: hierarchy.ErrConflict},
		{name: "fk", err: &pgconn.PgError{Code: nodeForeignKeyViolationCode}, want: hierarchy.ErrParentNotFound},
		{name: "self parent", err: &pgconn.PgError{Code: nodeCheckViolationCode, ConstraintName: nodeSelfParentConstraint}, want: hierarchy.ErrSelfReference},
		{name: "status", err: &pgconn.PgError{Code: nodeCheckViolationCode, ConstraintName: nodeStatusConstraint}, want: hierarchy.ErrInvalidStatus},
		{name: "no rows", err: pgx.ErrNoRows, want: hierarchy.ErrNodeNotFound},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := translateNodePgError(tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	other := errors.New("other")
	if translateNodePgError(other) != other {
		t.Fatalf("unexpected translation for generic error")
	}
}

func TestNodeRepository_ListAll(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewNodeRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(nodeColumns).
		AddRow("a", nil, "Alice", "CEO", "Exec", "alice@example.com", "", "active", now, now, int64(1)).
		AddRow("b", "a", "Bob", "CTO", "Eng", "bob@example.com", "", "active", now, now, int64(0))

	mock.ExpectQuery(`FROM hierarchy_nodes n\s+WHERE \(\$1 OR n.status <> 'terminated'\)`).
		WithArgs(false).
		WillReturnRows(rows)

	nodes, err := repo.ListAll(context.Background(), hierarchy.ListFilter{})
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if len(nodes) != 2 || !nodes[0].IsRoot() || !nodes[1].HasParent("a") {
		t.Fatalf("unexpected nodes: %+v", nodes)
	}
	if nodes[0].DirectReportCount != 1 {
		t.Fatalf("expected report count 1, got %d", nodes[0].DirectReportCount)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNodeRepository_ListAll_Department(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewNodeRepository(mock)

	mock.ExpectQuery(`WITH RECURSIVE matched AS`).
		WithArgs("Eng", true).
		WillReturnRows(pgxmock.NewRows(nodeColumns))

	dept := "Eng"
	nodes, err := repo.ListAll(context.Background(), hierarchy.ListFilter{Department: &dept, IncludeTerminated: true})
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	if nodes == nil || len(nodes) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", nodes)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNodeRepository_ListSubtree(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewNodeRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(nodeColumns).
		AddRow("b", "a", "Bob", "CTO", "Eng", "bob@example.com", "", "active", now, now, int64(1)).
		AddRow("d", "b", "Dave", "Engineer", "Eng", "dave@example.com", "", "active", now, now, int64(0))

	mock.ExpectQuery(`WITH RECURSIVE subtree AS`).
		WithArgs("b").
		WillReturnRows(rows)

	nodes, err := repo.ListSubtree(context.Background(), "b")
	if err != nil {
		t.Fatalf("ListSubtree returned error: %v", err)
	}
	if len(nodes) != 2 || nodes[0].ID != "b" {
		t.Fatalf("expected root first, got %+v", nodes)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNodeRepository_FindByID_NotFound(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewNodeRepository(mock)

	mock.ExpectQuery(`WHERE n.id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.FindByID(context.Background(), "missing"); !errors.Is(err, hierarchy.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNodeRepository_Create_DuplicateEmail(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewNodeRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO hierarchy_nodes`).
		WithArgs("n-1", nil, "Eve", "Engineer", "", "eve@example.com", "", "active", now, now).
		WillReturnError(&pgconn.PgError{Code: nodeUniqueViolationCode})

	_, err := repo.Create(context.Background(), &hierarchy.Node{
		ID:        "n-1",
		Name:      "Eve",
		Role:      "Engineer",
		Email:     "eve@example.com",
		Status:    hierarchy.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if !errors.Is(err, hierarchy.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNodeRepository_SetParent(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewNodeRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(nodeColumns).
		AddRow("d", "c", "Dave", "Engineer", "Eng", "dave@example.com", "", "active", now, now, int64(0))

	mock.ExpectQuery(`SET parent_id = \$1`).
		WithArgs("c", now, "d").
		WillReturnRows(rows)

	parent := "c"
	moved, err := repo.SetParent(context.Background(), "d", &parent, now)
	if err != nil {
		t.Fatalf("SetParent returned error: %v", err)
	}
	if !moved.HasParent("c") {
		t.Fatalf("expected parent c, got %+v", moved.ParentID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNodeRepository_ReparentChildrenAndDelete(t *testing.T) {
	t.Parallel()

	mock := newMockPool(t)
	repo := NewNodeRepository(mock)
	now := time.Now().UTC()

	mock.ExpectExec(`WHERE parent_id = \$3`).
		WithArgs(nil, now, "a").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`DELETE FROM hierarchy_nodes`).
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM hierarchy_nodes`).
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM hierarchy_nodes`).
		WithArgs("b").
		WillReturnError(&pgconn.PgError{Code: nodeForeignKeyViolationCode})

	ctx := context.Background()
	moved, err := repo.ReparentChildren(ctx, "a", nil, now)
	if err != nil || moved != 2 {
		t.Fatalf("expected 2 reparented rows, got %d (%v)", moved, err)
	}
	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := repo.Delete(ctx, "a"); !errors.Is(err, hierarchy.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "b"); !errors.Is(err, hierarchy.ErrConflict) {
		t.Fatalf("expected ErrConflict for node with reports, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
