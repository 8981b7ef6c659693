package permission

import (
	"context"

	"go.uber.org/zap"

	"github.com/goadmin/pkg/config"
	apperrors "github.com/goadmin/pkg/errors"
	"github.com/goadmin/pkg/logger"
)

// roleMenuStrategy 按菜单权限标识判断
type roleMenuStrategy struct {
	sets *Cache
}

func (s *roleMenuStrategy) Name() string {
	return config.PermissionModeRoleMenu
}

func (s *roleMenuStrategy) Check(ctx context.Context, req *Request) error {
	sets, err := s.sets.Get(ctx, req.Principal)
	if err != nil {
		return err
	}
	if sets.Forbids(req.Tag) || !sets.Grants(req.Tag) {
		return apperrors.ErrUnauthorized
	}
	return nil
}

type routeKey struct {
	method string
	path   string
}

// policyStrategy 禁用菜单优先，其余交由策略引擎
type policyStrategy struct {
	sets     *Cache
	enforcer Enforcer
	exclude  map[routeKey]struct{}
}

func newPolicyStrategy(sets *Cache, enforcer Enforcer, exclude []config.RouteRule) *policyStrategy {
	s := &policyStrategy{
		sets:     sets,
		enforcer: enforcer,
		exclude:  make(map[routeKey]struct{}, len(exclude)),
	}
	for _, r := range exclude {
		s.exclude[routeKey{method: r.Method, path: r.Path}] = struct{}{}
	}
	return s
}

func (s *policyStrategy) Name() string {
	return config.PermissionModeCasbin
}

func (s *policyStrategy) Check(ctx context.Context, req *Request) error {
	sets, err := s.sets.Get(ctx, req.Principal)
	if err != nil {
		return err
	}
	if sets.Forbids(req.Tag) {
		return apperrors.ErrUnauthorized
	}

	if _, ok := s.exclude[routeKey{method: req.Method, path: req.Path}]; ok {
		return nil
	}

	ok, err := s.enforcer.Enforce(req.Principal.UUID, req.Path, req.Method)
	if err != nil {
		logger.Error("策略引擎执行失败",
			zap.String("uuid", req.Principal.UUID),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return apperrors.Unavailable(err)
	}
	if !ok {
		return apperrors.ErrUnauthorized
	}
	return nil
}
