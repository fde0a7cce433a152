package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/edumesh/edumesh-api/model"
	"gorm.io/gorm"
)

// Scope is the set of institution ids the caller may act on, resolved from
// the caller's role and position in the hierarchy. A nil Scope means
// unrestricted (superadmin). Scope is always threaded explicitly; nothing
// in this package reads the current user from ambient request state.
type Scope map[uint]struct{}

// Allows reports whether the scope covers the given institution id.
func (s Scope) Allows(id uint) bool {
	if s == nil {
		return true
	}
	_, ok := s[id]
	return ok
}

// ScopeService resolves an authorization scope for a user. The deletion
// core consumes the resulting Scope as an opaque input.
type ScopeService struct {
	db *gorm.DB
}

// NewScopeService creates a new scope resolver
func NewScopeService(db *gorm.DB) *ScopeService {
	return &ScopeService{db: db}
}

// ResolveScope returns the institution ids visible to the user.
//
//	superadmin  -> nil (everything)
//	regionadmin -> their level-2 institution's subtree
//	sektoradmin -> their level-3 institution's subtree
//	schooladmin -> their own institution only
func (s *ScopeService) ResolveScope(ctx context.Context, user *model.User) (Scope, error) {
	if user.Role == model.RoleSuperAdmin {
		return nil, nil
	}

	if user.InstitutionID == nil {
		return nil, &AuthorizationError{Reason: fmt.Sprintf("%s must be associated with an institution", user.Role)}
	}

	var home model.Institution
	if err := s.db.WithContext(ctx).Unscoped().First(&home, *user.InstitutionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &AuthorizationError{Reason: "associated institution does not exist"}
		}
		return nil, err
	}

	switch user.Role {
	case model.RoleRegionAdmin:
		if home.Level != model.InstitutionLevelRegion {
			return nil, &AuthorizationError{Reason: "regionadmin must be associated with a regional institution"}
		}
	case model.RoleSectorAdmin:
		if home.Level != model.InstitutionLevelSector {
			return nil, &AuthorizationError{Reason: "sektoradmin must be associated with a sector institution"}
		}
	case model.RoleSchoolAdmin:
		return Scope{home.ID: {}}, nil
	default:
		return nil, &AuthorizationError{Reason: fmt.Sprintf("role %q has no institution scope", user.Role)}
	}

	root := treeNode{ID: home.ID, ParentID: home.ParentID, Name: home.Name, Type: home.Type, Level: home.Level}
	tree, err := walkSubtree(root, fetchInstitutionChildren(ctx, s.db), nil)
	if err != nil {
		return nil, err
	}

	scope := make(Scope, tree.size())
	for _, id := range tree.ids() {
		scope[id] = struct{}{}
	}
	return scope, nil
}
