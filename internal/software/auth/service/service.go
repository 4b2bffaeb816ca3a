// Package service implements the session manager: login, single-use refresh
// rotation, and logout.
package service

import (
	"dispatch/internal/general/jwt"
	"dispatch/internal/general/logger"
	"dispatch/internal/ports"
)

type authService struct {
	logger     *logger.Logger
	uow        ports.UnitOfWork
	users      ports.UserRepository
	tokens     ports.RefreshTokenRepository
	accessMgr  *jwt.Manager
	refreshMgr *jwt.Manager
}

// NewAuthService creates the auth service with the provided dependencies.
func NewAuthService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	users ports.UserRepository,
	tokens ports.RefreshTokenRepository,
	accessMgr *jwt.Manager,
	refreshMgr *jwt.Manager,
) ports.AuthService {
	return &authService{
		logger:     logger,
		uow:        uow,
		users:      users,
		tokens:     tokens,
		accessMgr:  accessMgr,
		refreshMgr: refreshMgr,
	}
}
