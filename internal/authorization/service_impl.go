package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	obscontext "github.com/smallbiznis/pharmasettle/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, object string, action string) error {
	actorID, role := obscontext.ActorFromContext(ctx)
	if strings.TrimSpace(actorID) == "" || strings.TrimSpace(role) == "" {
		return ErrInvalidActor
	}

	allowed, err := s.Allowed(role, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("actor_id", actorID),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Allowed(role string, object string, action string) (bool, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false, ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return false, ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return false, ErrInvalidAction
	}
	return s.enforcer.Enforce(roleSubject(role), object, action)
}

func roleSubject(role string) string {
	return "role:" + role
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Sales permissions
		{roleSubject(RoleSales), ObjectSalesOrder, ActionView},
		{roleSubject(RoleSales), ObjectSalesOrder, ActionCreate},
		{roleSubject(RoleSales), ObjectSalesOrder, ActionSubmit},
		{roleSubject(RoleSales), ObjectDebt, ActionView},
		{roleSubject(RoleSales), ObjectDepositCheck, ActionView},
		{roleSubject(RoleSales), ObjectDepositCheck, ActionCreate},
		{roleSubject(RoleSales), ObjectPayment, ActionCreate},
		{roleSubject(RoleSales), ObjectInvoice, ActionView},

		// Manager permissions
		{roleSubject(RoleManager), ObjectSalesOrder, ActionReview},

		// Accountant permissions
		{roleSubject(RoleAccountant), ObjectSalesOrder, ActionView},
		{roleSubject(RoleAccountant), ObjectDebt, ActionView},
		{roleSubject(RoleAccountant), ObjectDepositCheck, ActionView},
		{roleSubject(RoleAccountant), ObjectDepositCheck, ActionReview},
		{roleSubject(RoleAccountant), ObjectPayment, ActionCreate},
		{roleSubject(RoleAccountant), ObjectInvoice, ActionView},
		{roleSubject(RoleAccountant), ObjectInvoice, ActionCreate},
		{roleSubject(RoleAccountant), ObjectInvoice, ActionRender},
	}
	for _, rule := range policies {
		if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{roleSubject(RoleManager), roleSubject(RoleSales)},
		{roleSubject(RoleAdmin), roleSubject(RoleManager)},
		{roleSubject(RoleAdmin), roleSubject(RoleAccountant)},
	}
	for _, rule := range groupings {
		if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
			return err
		}
	}
	return nil
}
