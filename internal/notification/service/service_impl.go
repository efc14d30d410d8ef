package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/referralhub/internal/actorcontext"
	"github.com/smallbiznis/referralhub/internal/clock"
	"github.com/smallbiznis/referralhub/internal/config"
	"github.com/smallbiznis/referralhub/internal/notification/domain"
	"github.com/smallbiznis/referralhub/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const listLimit = 100

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Email email.Provider
	Cfg   config.Config
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	email       email.Provider
	staffEmails []string
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("notification.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		email:       p.Email,
		staffEmails: p.Cfg.Email.StaffEmails,
	}
}

func (s *Service) Notify(ctx context.Context, req domain.NotifyRequest) error {
	title := strings.TrimSpace(req.Title)
	if title == "" || strings.TrimSpace(req.Type) == "" {
		return domain.ErrInvalidRequest
	}
	if req.Audience != domain.AudiencePartner && req.Audience != domain.AudienceStaff {
		return domain.ErrInvalidRequest
	}
	userID := strings.TrimSpace(req.UserID)
	if req.Audience == domain.AudiencePartner && userID == "" {
		return domain.ErrInvalidRequest
	}

	n := domain.Notification{
		ID:        s.genID.Generate(),
		Audience:  req.Audience,
		Type:      strings.TrimSpace(req.Type),
		Title:     title,
		Message:   strings.TrimSpace(req.Message),
		CreatedAt: s.clock.Now(),
	}
	if userID != "" {
		n.UserID = &userID
	}

	if err := s.repo.Insert(ctx, s.db, &n); err != nil {
		s.log.Warn("failed to store notification", zap.String("type", n.Type), zap.Error(err))
		return err
	}

	if n.Audience == domain.AudienceStaff {
		s.emailStaff(ctx, n)
	}
	return nil
}

func (s *Service) emailStaff(ctx context.Context, n domain.Notification) {
	if s.email == nil || len(s.staffEmails) == 0 {
		return
	}
	body, err := email.RenderNotification(n.Title, n.Message)
	if err != nil {
		s.log.Warn("failed to render notification email", zap.Error(err))
		return
	}
	if err := s.email.Send(ctx, s.staffEmails, n.Title, body); err != nil {
		s.log.Warn("failed to email staff notification",
			zap.String("type", n.Type),
			zap.Int("recipients", len(s.staffEmails)),
			zap.Error(err),
		)
	}
}

func (s *Service) ListForUser(ctx context.Context) ([]domain.Notification, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	var (
		items []*domain.Notification
		err   error
	)
	if actor.IsStaff() {
		items, err = s.repo.ListForStaff(ctx, s.db, actor.ID, listLimit)
	} else {
		items, err = s.repo.ListForPartner(ctx, s.db, actor.ID, listLimit)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.Notification, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (s *Service) MarkRead(ctx context.Context, id snowflake.ID) (domain.Notification, error) {
	actor, ok := actorcontext.ActorFromContext(ctx)
	if !ok {
		return domain.Notification{}, domain.ErrUnauthenticated
	}

	n, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if n == nil || !visibleTo(*n, actor) {
		return domain.Notification{}, domain.ErrNotFound
	}
	if n.ReadAt != nil {
		return *n, nil
	}

	now := s.clock.Now()
	if err := s.repo.MarkRead(ctx, s.db, n.ID, now); err != nil {
		return domain.Notification{}, err
	}
	n.ReadAt = &now
	return *n, nil
}

func visibleTo(n domain.Notification, actor actorcontext.Actor) bool {
	if actor.IsStaff() {
		return n.Audience == domain.AudienceStaff && (n.UserID == nil || *n.UserID == actor.ID)
	}
	return n.Audience == domain.AudiencePartner && n.UserID != nil && *n.UserID == actor.ID
}
