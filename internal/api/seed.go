package api

import (
	"context"
	"log/slog"

	"supertodo/internal/account"
	"supertodo/internal/apperr"
	"supertodo/internal/model"
	"supertodo/internal/store"

	"golang.org/x/crypto/bcrypt"
)

const (
	demoEmail    = "demo@supertodo.local"
	demoPassword = "demo-password"
)

// demoTasks 是演示账号的初始任务，按创建顺序排列。
var demoTasks = []store.NewTask{
	{Title: "Try the API", Description: "POST /tasks with a bearer token"},
	{Title: "Toggle a task", Description: "PATCH /tasks/:id/toggle", Status: model.TaskStatusCompleted},
}

// SeedDemoData 初始化演示账号及其任务，可重复执行。
//
// 仅在 local 环境且开启 seed_demo 时生效。
func (s *Server) SeedDemoData(ctx context.Context) error {
	if !s.cfg.App.SeedDemo || s.cfg.App.Env != "local" {
		return nil
	}

	users := store.NewUserStore(s.db)
	user, err := users.FindByEmail(ctx, demoEmail)
	if apperr.KindOf(err) == apperr.KindNotFound {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(demoPassword), account.BcryptCost(s.cfg.Security.BcryptCost))
		if hashErr != nil {
			return hashErr
		}
		user = &model.User{
			Name:         "Demo",
			Email:        demoEmail,
			PasswordHash: string(hash),
		}
		if err := users.Create(ctx, user); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	existing, err := s.tasks.List(ctx, user.ID, "")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, in := range demoTasks {
		if _, err := s.tasks.Create(ctx, user.ID, in); err != nil {
			return err
		}
	}
	s.logger.Info("demo data seeded", slog.String("email", demoEmail), slog.Int("tasks", len(demoTasks)))
	return nil
}
