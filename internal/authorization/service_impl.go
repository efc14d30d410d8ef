package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/referralhub/internal/actorcontext"
	auditdomain "github.com/smallbiznis/referralhub/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectReferral     = "referral"
	ObjectLead         = "lead"
	ObjectPayment      = "payment"
	ObjectPayout       = "payout"
	ObjectBankAccount  = "bank_account"
	ObjectNotification = "notification"
)

const (
	ActionReferralCreate     = "referral.create"
	ActionReferralView       = "referral.view"
	ActionReferralTransition = "referral.transition"
	ActionReferralFinalize   = "referral.finalize"

	ActionLeadCreate = "lead.create"

	ActionPaymentRecord = "payment.record"
	ActionPaymentUpdate = "payment.update"

	ActionPayoutRequest = "payout.request"
	ActionPayoutCancel  = "payout.cancel"
	ActionPayoutView    = "payout.view"
	ActionPayoutProcess = "payout.process"

	ActionBankAccountManage = "bank_account.manage"

	ActionNotificationView = "notification.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, object string, action string) error {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.ID) == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := roleFor(actor)
	if err != nil {
		s.auditDenied(ctx, actor, object, action)
		return err
	}

	subject := fmt.Sprintf("user:%s", actor.ID)
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

func roleFor(actor actorcontext.Actor) (string, error) {
	switch actor.Role {
	case actorcontext.RolePartner, actorcontext.RoleStaff:
		return "role:" + actor.Role, nil
	default:
		return "", ErrInvalidActor
	}
}

// ensureGrouping keeps exactly one role link per subject, replacing a stale
// one when the identity provider changes a user's role.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor actorcontext.Actor, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	actorID := actor.ID
	if err := s.auditSvc.AuditLog(ctx, actor.Role, &actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	}); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", "authorization.denied"), zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Partner permissions
		{"role:partner", ObjectReferral, ActionReferralCreate},
		{"role:partner", ObjectReferral, ActionReferralView},
		{"role:partner", ObjectPayout, ActionPayoutRequest},
		{"role:partner", ObjectPayout, ActionPayoutCancel},
		{"role:partner", ObjectPayout, ActionPayoutView},
		{"role:partner", ObjectBankAccount, ActionBankAccountManage},
		{"role:partner", ObjectNotification, ActionNotificationView},

		// Staff permissions
		{"role:staff", ObjectReferral, ActionReferralView},
		{"role:staff", ObjectReferral, ActionReferralTransition},
		{"role:staff", ObjectReferral, ActionReferralFinalize},
		{"role:staff", ObjectLead, ActionLeadCreate},
		{"role:staff", ObjectPayment, ActionPaymentRecord},
		{"role:staff", ObjectPayment, ActionPaymentUpdate},
		{"role:staff", ObjectPayout, ActionPayoutView},
		{"role:staff", ObjectPayout, ActionPayoutProcess},
		{"role:staff", ObjectNotification, ActionNotificationView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
