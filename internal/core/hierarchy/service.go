package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// ReassignOutcome は付け替え要求の結果区分です。メトリクスのラベルに使います。
type ReassignOutcome string

const (
	OutcomeAccepted      ReassignOutcome = "accepted"
	OutcomeNoOp          ReassignOutcome = "noop"
	OutcomeCycleRejected ReassignOutcome = "cycle_rejected"
	OutcomeNotFound      ReassignOutcome = "not_found"
	OutcomeUnauthorized  ReassignOutcome = "unauthorized"
	OutcomeFailed        ReassignOutcome = "failed"
)

// Recorder は付け替え結果の観測先です。
type Recorder interface {
	ObserveReassignment(outcome ReassignOutcome)
}

type noopRecorder struct{}

func (noopRecorder) ObserveReassignment(ReassignOutcome) {}

// UseCase は階層ユースケースの公開インターフェースです。
type UseCase interface {
	ListHierarchy(ctx context.Context, in ListHierarchyInput) ([]*Node, error)
	GetSubtree(ctx context.Context, in GetSubtreeInput) ([]*Node, error)
	GetNode(ctx context.Context, in GetNodeInput) (*Node, error)
	CreateNode(ctx context.Context, in CreateNodeInput) (*Node, error)
	UpdateNode(ctx context.Context, in UpdateNodeInput) (*Node, error)
	Reassign(ctx context.Context, in ReassignInput) (*ReassignResult, error)
	DeleteNode(ctx context.Context, in DeleteNodeInput) (*DeleteNodeResult, error)
}

// Service は階層に関するユースケースをまとめます。
type Service struct {
	repo     Repository
	clock    Clock
	tx       TransactionManager
	avatars  AvatarResolver
	recorder Recorder
	newID    func() string
	validate *validator.Validate
}

// Option は Service の任意設定です。
type Option func(*Service)

// WithAvatarResolver はアバター解決の設定を差し替えます。
func WithAvatarResolver(r AvatarResolver) Option {
	return func(s *Service) { s.avatars = r }
}

// WithRecorder は付け替え結果の観測先を設定します。
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithIDGenerator は新規ノードの ID 採番を差し替えます。
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService は Service を生成します。
func NewService(repo Repository, clock Clock, tx TransactionManager, opts ...Option) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	s := &Service{
		repo:     repo,
		clock:    clock,
		tx:       tx,
		recorder: noopRecorder{},
		newID:    uuid.NewString,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListHierarchyInput は階層一覧取得時の入力です。
type ListHierarchyInput struct {
	Department        *string
	IncludeTerminated bool
}

// GetSubtreeInput は部分木取得時の入力です。
type GetSubtreeInput struct {
	RootID string
}

// GetNodeInput はノード取得時の入力です。
type GetNodeInput struct {
	ID string
}

// CreateNodeInput はノード作成時の入力です。
type CreateNodeInput struct {
	Actor      Actor
	Name       string `validate:"required,max=200"`
	Role       string `validate:"required,max=200"`
	Email      string `validate:"required,email,max=320"`
	Department string `validate:"max=200"`
	Avatar     string `validate:"max=2048"`
	ParentID   *string
	Status     *Status
}

// UpdateNodeInput はノード更新時の入力です。
// ParentIDSet が true の場合は ParentID (nil はルート化) への付け替えを行います。
type UpdateNodeInput struct {
	Actor       Actor
	ID          string
	Name        *string
	Role        *string
	Department  *string
	Avatar      *string
	Status      *Status
	ParentID    *string
	ParentIDSet bool
}

// ReassignInput は上長付け替え時の入力です。NewParentID が nil ならルートになります。
type ReassignInput struct {
	Actor       Actor
	NodeID      string
	NewParentID *string
}

// ReassignResult は付け替え結果です。NoOp の場合は書き込みを行っていません。
type ReassignResult struct {
	Node *Node
	NoOp bool
}

// DeleteNodeInput はノード削除時の入力です。
type DeleteNodeInput struct {
	Actor Actor
	ID    string
}

// DeleteNodeResult は削除結果です。Reparented は付け替えた直属の部下の数です。
type DeleteNodeResult struct {
	Reparented  int
	NewParentID *string
}

// ListHierarchy は階層全体 (または部署で絞り込んだ一覧) を取得します。
func (s *Service) ListHierarchy(ctx context.Context, in ListHierarchyInput) ([]*Node, error) {
	filter := ListFilter{IncludeTerminated: in.IncludeTerminated}
	if in.Department != nil {
		dept := strings.TrimSpace(*in.Department)
		if dept != "" {
			filter.Department = &dept
		}
	}

	var nodes []*Node
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.ListAll(txCtx, filter)
		if err != nil {
			return err
		}
		nodes = found
		return nil
	}); err != nil {
		return nil, err
	}

	return s.enrichAll(nodes), nil
}

// GetSubtree は rootID のノードと在籍中の全子孫を取得します。
// ルートが存在しない場合は空スライスを返し、呼び出し側で NotFound に変換します。
func (s *Service) GetSubtree(ctx context.Context, in GetSubtreeInput) ([]*Node, error) {
	rootID := strings.TrimSpace(in.RootID)
	if rootID == "" {
		return nil, fmt.Errorf("root id: %w", ErrInvalidID)
	}

	var nodes []*Node
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.ListSubtree(txCtx, rootID)
		if err != nil {
			return err
		}
		nodes = found
		return nil
	}); err != nil {
		return nil, err
	}

	return s.enrichAll(nodes), nil
}

// GetNode はノードを 1 件取得します。
func (s *Service) GetNode(ctx context.Context, in GetNodeInput) (*Node, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var node *Node
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		node = found
		return nil
	}); err != nil {
		return nil, err
	}

	return s.avatars.enrich(node), nil
}

// CreateNode は新しいノードを作成します。
func (s *Service) CreateNode(ctx context.Context, in CreateNodeInput) (*Node, error) {
	if !in.Actor.CanMutate {
		return nil, ErrUnauthorized
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Role = strings.TrimSpace(in.Role)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Department = strings.TrimSpace(in.Department)
	in.Avatar = strings.TrimSpace(in.Avatar)
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}

	status := StatusActive
	if in.Status != nil {
		if !isValidStatus(*in.Status) {
			return nil, ErrInvalidStatus
		}
		status = *in.Status
	}

	parentID, err := normalizeParentID(in.ParentID)
	if err != nil {
		return nil, err
	}

	var created *Node
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if parentID != nil {
			if err := s.ensureAssignableParent(txCtx, *parentID); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		result, err := s.repo.Create(txCtx, &Node{
			ID:         s.newID(),
			ParentID:   parentID,
			Name:       in.Name,
			Role:       in.Role,
			Department: in.Department,
			Email:      in.Email,
			Avatar:     in.Avatar,
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return err
		}
		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	return s.avatars.enrich(created), nil
}

// UpdateNode は属性を更新し、ParentIDSet の場合は付け替えも同じトランザクションで行います。
func (s *Service) UpdateNode(ctx context.Context, in UpdateNodeInput) (*Node, error) {
	if !in.Actor.CanMutate {
		return nil, ErrUnauthorized
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var updated *Node
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}

		changed, err := applyAttributes(existing, in)
		if err != nil {
			return err
		}

		var plan *reassignPlan
		if in.ParentIDSet {
			if plan, err = s.planReassign(txCtx, existing, in.ParentID); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		if changed {
			existing.UpdatedAt = now
			if _, err := s.repo.UpdateAttributes(txCtx, existing); err != nil {
				return err
			}
		}
		if plan != nil && !plan.noop {
			if _, err := s.repo.SetParent(txCtx, id, plan.parentID, now); err != nil {
				return err
			}
		}

		refreshed, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		updated = refreshed
		return nil
	}); err != nil {
		return nil, err
	}

	return s.avatars.enrich(updated), nil
}

// Reassign は上長を付け替えます。検証はすべて書き込みより前に完了します。
func (s *Service) Reassign(ctx context.Context, in ReassignInput) (*ReassignResult, error) {
	if !in.Actor.CanMutate {
		s.recorder.ObserveReassignment(OutcomeUnauthorized)
		return nil, ErrUnauthorized
	}
	id := strings.TrimSpace(in.NodeID)
	if id == "" {
		return nil, fmt.Errorf("node id: %w", ErrInvalidID)
	}

	var result *ReassignResult
	err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		r, err := s.reassign(txCtx, id, in.NewParentID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	s.recorder.ObserveReassignment(reassignOutcome(result, err))
	if err != nil {
		return nil, err
	}

	result.Node = s.avatars.enrich(result.Node)
	return result, nil
}

// DeleteNode はノードを削除します。直属の部下は、削除対象から見て最も近い在籍中の祖先
// (存在しなければルート) へ同じトランザクション内で付け替えます。
func (s *Service) DeleteNode(ctx context.Context, in DeleteNodeInput) (*DeleteNodeResult, error) {
	if !in.Actor.CanMutate {
		return nil, ErrUnauthorized
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var result *DeleteNodeResult
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.FindByID(txCtx, id); err != nil {
			return err
		}

		all, err := s.repo.ListAll(txCtx, ListFilter{IncludeTerminated: true})
		if err != nil {
			return err
		}
		nodes := values(all)
		newParent, err := nearestActiveAncestor(nodes, id)
		if err != nil {
			return err
		}

		moved, err := s.repo.ReparentChildren(txCtx, id, newParent, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.repo.Delete(txCtx, id); err != nil {
			return err
		}

		result = &DeleteNodeResult{Reparented: moved, NewParentID: newParent}
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

type reassignPlan struct {
	parentID *string
	noop     bool
}

// planReassign は書き込みを行わずに付け替えを検証します。
// 手順: 上長の存在と在籍確認 → 現在の上長と同じなら NoOp → 循環チェック。
func (s *Service) planReassign(ctx context.Context, moving *Node, newParentID *string) (*reassignPlan, error) {
	parentID, err := normalizeParentID(newParentID)
	if err != nil {
		return nil, err
	}
	if parentID != nil {
		if *parentID == moving.ID {
			return nil, ErrSelfReference
		}
		if err := s.ensureAssignableParent(ctx, *parentID); err != nil {
			return nil, err
		}
	}

	if sameParent(moving.ParentID, parentID) {
		return &reassignPlan{parentID: parentID, noop: true}, nil
	}

	all, err := s.repo.ListAll(ctx, ListFilter{IncludeTerminated: true})
	if err != nil {
		return nil, err
	}
	if err := checkParentAssignment(values(all), moving.ID, parentID); err != nil {
		return nil, err
	}
	return &reassignPlan{parentID: parentID}, nil
}

// reassign は呼び出し元のトランザクション内で付け替えを行います。
func (s *Service) reassign(ctx context.Context, id string, newParentID *string) (*ReassignResult, error) {
	moving, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	plan, err := s.planReassign(ctx, moving, newParentID)
	if err != nil {
		return nil, err
	}
	if plan.noop {
		return &ReassignResult{Node: moving, NoOp: true}, nil
	}

	if _, err := s.repo.SetParent(ctx, moving.ID, plan.parentID, s.clock.Now()); err != nil {
		return nil, err
	}

	refreshed, err := s.repo.FindByID(ctx, moving.ID)
	if err != nil {
		return nil, err
	}
	return &ReassignResult{Node: refreshed}, nil
}

func (s *Service) ensureAssignableParent(ctx context.Context, parentID string) error {
	parent, err := s.repo.FindByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			return fmt.Errorf("parent %s: %w", parentID, ErrParentNotFound)
		}
		return err
	}
	if !parent.IsActive() {
		return fmt.Errorf("parent %s: %w", parentID, ErrParentTerminated)
	}
	return nil
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(fields, ", "))
}

func (s *Service) enrichAll(nodes []*Node) []*Node {
	if nodes == nil {
		return []*Node{}
	}
	for _, n := range nodes {
		s.avatars.enrich(n)
	}
	return nodes
}

func applyAttributes(n *Node, in UpdateNodeInput) (bool, error) {
	changed := false

	if in.Name != nil {
		name, err := normalizeRequired("name", *in.Name)
		if err != nil {
			return false, err
		}
		changed = changed || name != n.Name
		n.Name = name
	}
	if in.Role != nil {
		role, err := normalizeRequired("role", *in.Role)
		if err != nil {
			return false, err
		}
		changed = changed || role != n.Role
		n.Role = role
	}
	if in.Department != nil {
		dept := strings.TrimSpace(*in.Department)
		changed = changed || dept != n.Department
		n.Department = dept
	}
	if in.Avatar != nil {
		avatar := strings.TrimSpace(*in.Avatar)
		changed = changed || avatar != n.Avatar
		n.Avatar = avatar
	}
	if in.Status != nil {
		if !isValidStatus(*in.Status) {
			return false, ErrInvalidStatus
		}
		changed = changed || *in.Status != n.Status
		n.Status = *in.Status
	}

	return changed, nil
}

// nearestActiveAncestor は id の祖先のうち最も近い在籍中のノードを返します。無ければ nil です。
func nearestActiveAncestor(nodes []Node, id string) (*string, error) {
	chain, err := AncestorChain(nodes, id)
	if err != nil {
		return nil, err
	}
	status := make(map[string]Status, len(nodes))
	for _, n := range nodes {
		status[n.ID] = n.Status
	}
	for _, ancestor := range chain {
		if status[ancestor] != StatusTerminated {
			found := ancestor
			return &found, nil
		}
	}
	return nil, nil
}

func reassignOutcome(result *ReassignResult, err error) ReassignOutcome {
	switch {
	case err == nil && result != nil && result.NoOp:
		return OutcomeNoOp
	case err == nil:
		return OutcomeAccepted
	case errors.Is(err, ErrCycleRejected), errors.Is(err, ErrSelfReference):
		return OutcomeCycleRejected
	case errors.Is(err, ErrNodeNotFound), errors.Is(err, ErrParentNotFound), errors.Is(err, ErrParentTerminated):
		return OutcomeNotFound
	default:
		return OutcomeFailed
	}
}

func normalizeParentID(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil, fmt.Errorf("parent id: %w", ErrInvalidID)
	}
	return &trimmed, nil
}

func normalizeRequired(field, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %s required", ErrValidationFailed, field)
	}
	return trimmed, nil
}

func isValidStatus(status Status) bool {
	switch status {
	case StatusActive, StatusOnLeave, StatusTerminated:
		return true
	default:
		return false
	}
}

func values(nodes []*Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			out = append(out, *n)
		}
	}
	return out
}
