package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/isola513i/hari-hr-system/internal/adapters/grpc/hierarchyv1"
	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
	"github.com/isola513i/hari-hr-system/internal/platform/logging"
)

type createNodeRequest struct {
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	Email      string  `json:"email"`
	Department string  `json:"department"`
	Avatar     string  `json:"avatar"`
	ParentID   *string `json:"parentId"`
	Status     *string `json:"status"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := hierarchy.ListHierarchyInput{}
	if dept := strings.TrimSpace(q.Get("department")); dept != "" {
		in.Department = &dept
	}
	if raw := q.Get("includeTerminated"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: includeTerminated must be a boolean", hierarchy.ErrValidationFailed))
			return
		}
		in.IncludeTerminated = include
	}

	nodes, err := h.svc.ListHierarchy(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": hierarchyv1.NodesValue(nodes)})
}

func (h *Handler) subtree(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.svc.GetSubtree(r.Context(), hierarchy.GetSubtreeInput{RootID: chi.URLParam(r, "rootID")})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(nodes) == 0 {
		writeError(w, hierarchy.ErrNodeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": hierarchyv1.NodesValue(nodes)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	node, err := h.svc.GetNode(r.Context(), hierarchy.GetNodeInput{ID: chi.URLParam(r, "id")})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hierarchyv1.NodeValue(node))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := hierarchy.CreateNodeInput{
		Actor:      actorFromRequest(r),
		Name:       req.Name,
		Role:       req.Role,
		Email:      req.Email,
		Department: req.Department,
		Avatar:     req.Avatar,
		ParentID:   req.ParentID,
	}
	if req.Status != nil {
		s := hierarchy.Status(*req.Status)
		in.Status = &s
	}

	node, err := h.svc.CreateNode(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, hierarchyv1.NodeValue(node))
}

// update は指定されたフィールドだけを更新します。parentId が存在すれば null でも付け替えとして扱います。
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, err)
		return
	}

	in := hierarchy.UpdateNodeInput{Actor: actorFromRequest(r), ID: chi.URLParam(r, "id")}
	targets := map[string]**string{
		"name":       &in.Name,
		"role":       &in.Role,
		"department": &in.Department,
		"avatar":     &in.Avatar,
	}
	for key, msg := range raw {
		switch key {
		case "parentId":
			parent, err := optionalString(key, msg)
			if err != nil {
				writeError(w, err)
				return
			}
			in.ParentID, in.ParentIDSet = parent, true
		case "status":
			s, err := optionalString(key, msg)
			if err != nil {
				writeError(w, err)
				return
			}
			if s != nil {
				st := hierarchy.Status(*s)
				in.Status = &st
			}
		default:
			dst, ok := targets[key]
			if !ok {
				writeError(w, fmt.Errorf("%w: unknown field %q", hierarchy.ErrValidationFailed, key))
				return
			}
			v, err := optionalString(key, msg)
			if err != nil {
				writeError(w, err)
				return
			}
			*dst = v
		}
	}

	node, err := h.svc.UpdateNode(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hierarchyv1.NodeValue(node))
}

func (h *Handler) reassign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID      string  `json:"nodeId"`
		NewParentID *string `json:"newParentId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	actor := actorFromRequest(r)
	result, err := h.svc.Reassign(r.Context(), hierarchy.ReassignInput{
		Actor:       actor,
		NodeID:      req.NodeID,
		NewParentID: req.NewParentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	parent := "(root)"
	if result.Node.ParentID != nil {
		parent = *result.Node.ParentID
	}
	logging.FromContext(r.Context()).Info("node reassigned",
		"node", result.Node.ID, "parent", parent, "noop", result.NoOp, "actor", actor.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"node": hierarchyv1.NodeValue(result.Node),
		"noop": result.NoOp,
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	id := chi.URLParam(r, "id")
	result, err := h.svc.DeleteNode(r.Context(), hierarchy.DeleteNodeInput{Actor: actor, ID: id})
	if err != nil {
		writeError(w, err)
		return
	}
	logging.FromContext(r.Context()).Info("node deleted",
		"node", id, "reparented", result.Reparented, "actor", actor.ID)
	w.Header().Set(HeaderReparented, strconv.Itoa(result.Reparented))
	if result.NewParentID != nil {
		w.Header().Set(HeaderNewParentID, *result.NewParentID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func optionalString(key string, msg json.RawMessage) (*string, error) {
	var v *string
	if err := json.Unmarshal(msg, &v); err != nil {
		return nil, fmt.Errorf("%w: %s must be a string or null", hierarchy.ErrValidationFailed, key)
	}
	return v, nil
}
