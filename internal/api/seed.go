package api

import (
	"context"
	"log/slog"

	"taskboard/internal/model"

	"golang.org/x/crypto/bcrypt"
)

// SeedAdmin 在启动时确保存在一个管理员账户。
//
// 配置未提供管理员邮箱时跳过；账户已存在时不做任何修改，
// 因此重复启动是幂等的。
func (s *Server) SeedAdmin(ctx context.Context) error {
	email := s.cfg.Security.AdminEmail
	if email == "" {
		s.logger.Info("admin seed skipped, no admin email configured")
		return nil
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.Security.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	name := s.cfg.Security.AdminName
	if name == "" {
		name = "Administrator"
	}

	admin := model.User{
		FullName: name,
		Email:    email,
		Password: string(hash),
		Role:     model.RoleAdmin,
		Status:   model.StatusActive,
	}
	if err := s.users.CreateUser(ctx, &admin); err != nil {
		return err
	}

	s.logger.Info("admin account seeded", slog.String("email", email))
	return nil
}
