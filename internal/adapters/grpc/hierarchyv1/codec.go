package hierarchyv1

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

// NodeValue はノードを Struct 表現の map に変換します。
func NodeValue(n *hierarchy.Node) map[string]any {
	if n == nil {
		return nil
	}
	var parent any
	if n.ParentID != nil {
		parent = *n.ParentID
	}
	return map[string]any{
		"id":                n.ID,
		"parentId":          parent,
		"name":              n.Name,
		"role":              n.Role,
		"department":        n.Department,
		"email":             n.Email,
		"avatar":            n.Avatar,
		"status":            string(n.Status),
		"directReportCount": n.DirectReportCount,
		"createdAt":         formatTime(n.CreatedAt),
		"updatedAt":         formatTime(n.UpdatedAt),
	}
}

// NodesValue は複数ノードを Struct のリスト表現に変換します。
func NodesValue(nodes []*hierarchy.Node) []any {
	out := make([]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeValue(n))
	}
	return out
}

// NewStruct は map から Struct を生成します。
func NewStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("hierarchyv1: encode struct: %w", err)
	}
	return s, nil
}

// NodeFromStruct は Struct からノードを復元します。
func NodeFromStruct(s *structpb.Struct) (*hierarchy.Node, error) {
	if s == nil {
		return nil, fmt.Errorf("hierarchyv1: node is missing")
	}
	f := Fields(s)
	id := f.String("id")
	if id == "" {
		return nil, fmt.Errorf("hierarchyv1: node id is missing")
	}

	parentID, _ := f.OptionalString("parentId")
	createdAt, err := parseTime(f.String("createdAt"))
	if err != nil {
		return nil, fmt.Errorf("hierarchyv1: createdAt: %w", err)
	}
	updatedAt, err := parseTime(f.String("updatedAt"))
	if err != nil {
		return nil, fmt.Errorf("hierarchyv1: updatedAt: %w", err)
	}

	return &hierarchy.Node{
		ID:                id,
		ParentID:          parentID,
		Name:              f.String("name"),
		Role:              f.String("role"),
		Department:        f.String("department"),
		Email:             f.String("email"),
		Avatar:            f.String("avatar"),
		Status:            hierarchy.Status(f.String("status")),
		DirectReportCount: f.Int("directReportCount"),
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}

// NodesFromStruct は s の "nodes" フィールドをノード一覧として復元します。
func NodesFromStruct(s *structpb.Struct) ([]hierarchy.Node, error) {
	list := s.GetFields()["nodes"].GetListValue().GetValues()
	out := make([]hierarchy.Node, 0, len(list))
	for i, v := range list {
		n, err := NodeFromStruct(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("hierarchyv1: nodes[%d]: %w", i, err)
		}
		out = append(out, *n)
	}
	return out, nil
}

// FieldSet は Struct のフィールド読み出しを補助します。
type FieldSet map[string]*structpb.Value

// Fields は s のフィールドを返します。
func Fields(s *structpb.Struct) FieldSet {
	return FieldSet(s.GetFields())
}

// Has はフィールドが存在するかを返します。null 値も存在として扱います。
func (f FieldSet) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// String は文字列フィールドを返します。存在しない場合は空文字です。
func (f FieldSet) String(key string) string {
	return f[key].GetStringValue()
}

// Bool は真偽値フィールドを返します。
func (f FieldSet) Bool(key string) bool {
	return f[key].GetBoolValue()
}

// Int は数値フィールドを整数として返します。
func (f FieldSet) Int(key string) int {
	return int(f[key].GetNumberValue())
}

// OptionalString は文字列フィールドをポインタで返します。
// 2 番目の戻り値はフィールドが存在したかどうかです。null の場合は (nil, true) です。
func (f FieldSet) OptionalString(key string) (*string, bool) {
	v, ok := f[key]
	if !ok {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull || v == nil {
		return nil, true
	}
	s := v.GetStringValue()
	return &s, true
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
