package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lumenadtech/lumen/internal/audit/domain"
	"github.com/lumenadtech/lumen/internal/auditcontext"
	"github.com/lumenadtech/lumen/internal/identity"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Resolver identity.Resolver `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	resolver identity.Resolver
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("audit.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		resolver: p.Resolver,
	}
}

// Append records one mutation inside the caller's transaction. A nil tx
// is refused: the entry must commit or abort with the state change.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, req domain.AppendRequest) (*domain.AuditEntry, error) {
	if tx == nil {
		return nil, domain.ErrMissingTransaction
	}
	key := strings.TrimSpace(req.ConfigKey)
	if key == "" {
		return nil, domain.ErrInvalidConfigKey
	}

	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		changedBy = auditcontext.ActorFromContext(ctx)
	}
	if changedBy == "" {
		return nil, domain.ErrInvalidActor
	}

	entry := &domain.AuditEntry{
		ID:            s.genID.Generate(),
		ConfigKey:     key,
		ChangedBy:     changedBy,
		PreviousValue: toJSONMap(req.PreviousValue),
		NewValue:      toJSONMap(req.NewValue),
		CreatedAt:     time.Now().UTC(),
	}

	if s.resolver != nil {
		if name := s.resolver.Resolve(ctx, changedBy).Name; name != "" {
			entry.ChangedByName = &name
		}
	}
	if ip := firstNonEmpty(req.IPAddress, auditcontext.IPAddressFromContext(ctx)); ip != "" {
		entry.IPAddress = &ip
	}
	if ua := firstNonEmpty(req.UserAgent, auditcontext.UserAgentFromContext(ctx)); ua != "" {
		entry.UserAgent = &ua
	}

	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Query returns a stable reverse-chronological page of the trail.
func (s *Service) Query(ctx context.Context, req domain.QueryRequest) (domain.QueryResponse, error) {
	if req.Page < 0 || req.Limit < 0 || req.Limit > 500 {
		return domain.QueryResponse{}, domain.ErrInvalidPage
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit == 0 {
		limit = 50
	}

	entries, total, err := s.repo.List(ctx, s.db, domain.ListFilter{
		ConfigKey: strings.TrimSpace(req.ConfigKey),
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		return domain.QueryResponse{}, err
	}
	return domain.QueryResponse{
		Entries: entries,
		Total:   total,
		Page:    page,
		Limit:   limit,
	}, nil
}

func toJSONMap(values map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for key, value := range values {
		if strings.TrimSpace(key) == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
