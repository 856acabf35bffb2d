// Package permission answers whether an identity may view, edit or manage a
// document. Every check goes back to the durable store; nothing is cached.
package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"

	accountmodel "naskahlive/internal/account/model"
	"naskahlive/internal/apperror"
	"naskahlive/internal/document/model"
	"naskahlive/internal/identity"
)

const (
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionManage = "manage"

	roleOwner = "owner"
)

// Levels inherit downwards: owner > ADMIN > EDIT > VIEW.
const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

type Users interface {
	GetUserByID(ctx context.Context, id string) (accountmodel.User, error)
}

type Documents interface {
	GetOwnerID(ctx context.Context, docID string) (string, error)
	GetCollaboratorPermission(ctx context.Context, docID, userID string) (model.Permission, error)
}

type Oracle struct {
	users    Users
	docs     Documents
	enforcer *casbin.SyncedEnforcer
}

func NewOracle(users Users, docs Documents) (*Oracle, error) {
	enforcer, err := newEnforcer()
	if err != nil {
		return nil, err
	}
	return &Oracle{users: users, docs: docs, enforcer: enforcer}, nil
}

func newEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("parse rbac model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}
	if _, err := e.AddPolicies([][]string{
		{string(model.PermissionView), ActionView},
		{string(model.PermissionEdit), ActionEdit},
		{roleOwner, ActionManage},
	}); err != nil {
		return nil, fmt.Errorf("add policies: %w", err)
	}
	if _, err := e.AddGroupingPolicies([][]string{
		{string(model.PermissionEdit), string(model.PermissionView)},
		{string(model.PermissionAdmin), string(model.PermissionEdit)},
		{roleOwner, string(model.PermissionAdmin)},
	}); err != nil {
		return nil, fmt.Errorf("add role hierarchy: %w", err)
	}
	return e, nil
}

func (o *Oracle) CanView(ctx context.Context, docID string, who identity.Identity) (bool, error) {
	return o.allowed(ctx, docID, who, ActionView)
}

func (o *Oracle) CanEdit(ctx context.Context, docID string, who identity.Identity) (bool, error) {
	return o.allowed(ctx, docID, who, ActionEdit)
}

// CanManage reports whether who may change the collaborator list or delete
// the document. Only the owner may.
func (o *Oracle) CanManage(ctx context.Context, docID string, who identity.Identity) (bool, error) {
	return o.allowed(ctx, docID, who, ActionManage)
}

func (o *Oracle) allowed(ctx context.Context, docID string, who identity.Identity, action string) (bool, error) {
	sub, err := o.subject(ctx, docID, who)
	if err != nil || sub == "" {
		return false, err
	}
	ok, err := o.enforcer.Enforce(sub, action)
	if err != nil {
		return false, fmt.Errorf("enforce %s on %s: %w", action, docID, err)
	}
	return ok, nil
}

// subject maps who to a role on docID: "owner", the grant level, or "" when
// the identity has no relation to the document. Missing users, documents and
// grants are not errors.
func (o *Oracle) subject(ctx context.Context, docID string, who identity.Identity) (string, error) {
	if who.IsAnonymous() {
		return "", nil
	}

	user, err := o.users.GetUserByID(ctx, who.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve user %s: %w", who.UserID, err)
	}

	ownerID, err := o.docs.GetOwnerID(ctx, docID)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve owner of %s: %w", docID, err)
	}
	if ownerID == user.ID {
		return roleOwner, nil
	}

	perm, err := o.docs.GetCollaboratorPermission(ctx, docID, user.ID)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve grant on %s: %w", docID, err)
	}
	return string(perm), nil
}
