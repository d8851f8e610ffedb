package service

import (
	"context"
	"errors"

	"invoice-service/internal/auth"
	"invoice-service/internal/models"
	"invoice-service/internal/store"
	"invoice-service/internal/util"
	"invoice-service/internal/validation"

	"go.uber.org/zap"
)

// AccountStore is the user and role persistence
type AccountStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	GetRoleByID(ctx context.Context, id int64) (*models.Role, error)
	ListRoles(ctx context.Context) ([]models.Role, error)
	CreateRole(ctx context.Context, role *models.Role) error
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=10"`
	Password string `json:"password" validate:"required,min=3,max=30"`
}

// LoginResult mirrors the login payload clients already consume
type LoginResult struct {
	Data  auth.Principal `json:"data"`
	Token string         `json:"jwtoken"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=10"`
	Password string `json:"password" validate:"required,alphanum,min=3,max=30"`
	RoleID   int64  `json:"roleId" validate:"required,gt=0,lte=10"`
}

type CreateRoleRequest struct {
	Name string `json:"name" validate:"required,min=3,max=10"`
}

// AccountService handles login, users and roles
type AccountService struct {
	store  AccountStore
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewAccountService(store AccountStore, tokens *auth.TokenManager) *AccountService {
	return &AccountService{
		store:  store,
		tokens: tokens,
		logger: util.Component("account"),
	}
}

// Login checks the credentials and issues a token
func (s *AccountService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	if violations := validation.Struct(req); violations != nil {
		return nil, &ValidationError{Violations: violations}
	}

	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, &StoreError{Op: "login", Err: err}
	}

	ok, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		s.logger.Error("Stored password hash is unusable", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	principal := auth.Principal{UserID: user.ID, Username: user.Username, RoleID: user.RoleID}
	token, err := s.tokens.Issue(principal)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User logged in", zap.Int64("user_id", user.ID))
	return &LoginResult{Data: principal, Token: token}, nil
}

// CreateUser registers a user under an existing role
func (s *AccountService) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	if violations := validation.Struct(req); violations != nil {
		return nil, &ValidationError{Violations: violations}
	}

	role, err := s.store.GetRoleByID(ctx, req.RoleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &ReferenceError{Entity: "role", ID: req.RoleID}
	}
	if err != nil {
		return nil, &StoreError{Op: "create user", Err: err}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: hash,
		RoleID:       role.ID,
		RoleName:     role.Name,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return nil, &DuplicateError{Entity: "user", Field: "username"}
		case errors.Is(err, store.ErrForeignKey):
			return nil, &ReferenceError{Entity: "role", ID: req.RoleID}
		}
		return nil, &StoreError{Op: "create user", Err: err}
	}

	s.logger.Info("User created", zap.Int64("user_id", user.ID), zap.Int64("role_id", user.RoleID))
	return user, nil
}

func (s *AccountService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, storeErr("get user", "user", id, err)
	}
	return user, nil
}

func (s *AccountService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list users", Err: err}
	}
	return users, nil
}

func (s *AccountService) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list roles", Err: err}
	}
	return roles, nil
}

// CreateRole adds a role with a unique name
func (s *AccountService) CreateRole(ctx context.Context, req *CreateRoleRequest) (*models.Role, error) {
	if violations := validation.Struct(req); violations != nil {
		return nil, &ValidationError{Violations: violations}
	}

	role := &models.Role{Name: req.Name}
	if err := s.store.CreateRole(ctx, role); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, &DuplicateError{Entity: "role", Field: "name"}
		}
		return nil, &StoreError{Op: "create role", Err: err}
	}
	return role, nil
}
