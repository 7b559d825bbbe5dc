package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/store"
	"pdvsystem/backend/internal/xid"
)

// Authenticate checks a username and password pair against the stored hash.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.UserAccount, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.UserAccount{}, ErrInvalidCredentials
		}
		return domain.UserAccount{}, err
	}
	if !verifyPassword(user.PasswordHash, password) {
		return domain.UserAccount{}, ErrInvalidCredentials
	}
	if !user.Active {
		return domain.UserAccount{}, ErrInactiveAccount
	}
	return *user, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if err := validateStruct(req); err != nil {
		return domain.User{}, err
	}
	if strings.ContainsAny(req.Username, " \t\r\n") {
		return domain.User{}, invalidf("username must not contain spaces")
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	account := domain.UserAccount{
		ID:           xid.New("usr"),
		Name:         req.Name,
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    s.now(),
	}
	if err := s.guard.Run(ctx, "create user", func(tx store.Tx) error {
		return tx.InsertUser(ctx, account)
	}); err != nil {
		return domain.User{}, err
	}

	s.audit(ctx, "user_create", "user", account.ID).Str("role", string(account.Role)).Msg("user created")
	return account.Public(), nil
}

func (s *Service) ListUsers(ctx context.Context, activeOnly bool) ([]domain.User, error) {
	accounts, err := s.repo.ListUsers(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, a.Public())
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	account, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s: %w", id, err)
	}
	return account.Public(), nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UserUpdateRequest) (domain.User, error) {
	if err := validateStruct(req); err != nil {
		return domain.User{}, err
	}
	var newHash string
	if req.Password != nil {
		hash, err := hashPassword(*req.Password)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		newHash = hash
	}

	var updated domain.UserAccount
	err := s.guard.Run(ctx, "update user", func(tx store.Tx) error {
		current, err := tx.GetUserForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("user %s: %w", id, err)
		}
		updated = *current
		if req.Name != nil {
			updated.Name = strings.TrimSpace(*req.Name)
		}
		if req.Role != nil {
			updated.Role = *req.Role
		}
		if req.Active != nil {
			updated.Active = *req.Active
		}
		if newHash != "" {
			updated.PasswordHash = newHash
		}
		return tx.UpdateUser(ctx, updated)
	})
	if err != nil {
		return domain.User{}, err
	}

	s.audit(ctx, "user_update", "user", id).Msg("user updated")
	return updated.Public(), nil
}

// DeleteUser removes an account that never opened a session or made a sale.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if actor, ok := ActorFromContext(ctx); ok && actor.ID == id {
		return invalidf("cannot delete your own account")
	}
	err := s.guard.Run(ctx, "delete user", func(tx store.Tx) error {
		if _, err := tx.GetUserForUpdate(ctx, id); err != nil {
			return fmt.Errorf("user %s: %w", id, err)
		}
		used, err := tx.UserHasHistory(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return fmt.Errorf("user %s: %w, deactivate it instead", id, store.ErrUserInUse)
		}
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return err
	}

	s.audit(ctx, "user_delete", "user", id).Msg("user deleted")
	return nil
}

// EnsureAdmin creates an admin account when the store has no users at all.
func (s *Service) EnsureAdmin(ctx context.Context, password string) (bool, error) {
	users, err := s.repo.ListUsers(ctx, false)
	if err != nil {
		return false, err
	}
	if len(users) > 0 {
		return false, nil
	}
	_, err = s.CreateUser(ctx, domain.UserCreateRequest{
		Name:     "Administrator",
		Username: "admin",
		Password: password,
		Role:     domain.RoleAdmin,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return false, nil
	}
	return err == nil, err
}
