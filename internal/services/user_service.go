package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/repositories"
)

var (
	// ErrUserInvalidInput signals the caller provided invalid profile or address data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the requested profile does not exist.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserAddressNotFound indicates the requested address does not exist.
	ErrUserAddressNotFound = errors.New("user: address not found")
)

var userPhonePattern = regexp.MustCompile(`^(0|\+84)[0-9]{9,10}$`)

// UserServiceDeps bundles the dependencies required to construct a user service.
type UserServiceDeps struct {
	Users     repositories.UserRepository
	Addresses repositories.AddressRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users     repositories.UserRepository
	addresses repositories.AddressRepository
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

var _ UserService = (*userService)(nil)

// NewUserService wires dependencies into a concrete UserService.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("user service: address repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &userService{
		users:     deps.Users,
		addresses: deps.Addresses,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	profile, err := s.users.FindByID(ctx, id)
	if err != nil {
		return UserProfile{}, s.mapRepositoryError(err, ErrUserNotFound)
	}
	return profile, nil
}

func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error) {
	id := strings.TrimSpace(cmd.UserID)
	if id == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	fullName := strings.TrimSpace(cmd.FullName)
	if fullName == "" || utf8.RuneCountInString(fullName) > 120 {
		return UserProfile{}, fmt.Errorf("%w: full name must be 1-120 characters", ErrUserInvalidInput)
	}
	phone := strings.TrimSpace(cmd.Phone)
	if phone != "" && !userPhonePattern.MatchString(phone) {
		return UserProfile{}, fmt.Errorf("%w: phone must be a Vietnamese number", ErrUserInvalidInput)
	}
	lang, err := normalizeLanguageTag(cmd.Language)
	if err != nil {
		return UserProfile{}, err
	}

	current, err := s.users.FindByID(ctx, id)
	if err != nil {
		return UserProfile{}, s.mapRepositoryError(err, ErrUserNotFound)
	}

	current.FullName = fullName
	current.Phone = phone
	current.Language = lang
	current.UpdatedAt = s.clock()

	updated, err := s.users.UpdateProfile(ctx, current)
	if err != nil {
		return UserProfile{}, s.mapRepositoryError(err, ErrUserNotFound)
	}
	return updated, nil
}

func (s *userService) ListUsers(ctx context.Context, filter UserListFilter) (domain.PagedResult[UserProfile], error) {
	return s.users.List(ctx, filter)
}

func (s *userService) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	return s.addresses.List(ctx, id)
}

func (s *userService) UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	id := strings.TrimSpace(cmd.UserID)
	if id == "" {
		return Address{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if err := validateAddress(cmd.Address); err != nil {
		return Address{}, err
	}

	addr := cmd.Address
	addr.UserID = id
	addr.UpdatedAt = s.clock()

	saved, err := s.addresses.Upsert(ctx, id, cmd.AddressID, addr)
	if err != nil {
		return Address{}, s.mapRepositoryError(err, ErrUserAddressNotFound)
	}
	return saved, nil
}

func (s *userService) DeleteAddress(ctx context.Context, userID string, addressID string) error {
	uid := strings.TrimSpace(userID)
	aid := strings.TrimSpace(addressID)
	if uid == "" || aid == "" {
		return fmt.Errorf("%w: user id and address id are required", ErrUserInvalidInput)
	}
	if err := s.addresses.Delete(ctx, uid, aid); err != nil {
		return s.mapRepositoryError(err, ErrUserAddressNotFound)
	}
	return nil
}

func (s *userService) SetDefaultAddress(ctx context.Context, userID string, addressID string) (Address, error) {
	uid := strings.TrimSpace(userID)
	aid := strings.TrimSpace(addressID)
	if uid == "" || aid == "" {
		return Address{}, fmt.Errorf("%w: user id and address id are required", ErrUserInvalidInput)
	}
	addr, err := s.addresses.SetDefault(ctx, uid, aid)
	if err != nil {
		return Address{}, s.mapRepositoryError(err, ErrUserAddressNotFound)
	}
	return addr, nil
}

func validateAddress(addr Address) error {
	if strings.TrimSpace(addr.FullName) == "" {
		return fmt.Errorf("%w: recipient name is required", ErrUserInvalidInput)
	}
	if !userPhonePattern.MatchString(strings.TrimSpace(addr.Phone)) {
		return fmt.Errorf("%w: recipient phone must be a Vietnamese number", ErrUserInvalidInput)
	}
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: street line is required", ErrUserInvalidInput)
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"ward", addr.Ward},
		{"district", addr.District},
		{"city", addr.City},
	} {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrUserInvalidInput, field.name)
		}
	}
	return nil
}

// normalizeLanguageTag canonicalises a BCP 47 tag ("VI-vn" becomes "vi-VN").
// An empty tag clears the preference.
func normalizeLanguageTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", nil
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("%w: unrecognised language tag %q", ErrUserInvalidInput, tag)
	}
	return parsed.String(), nil
}

func (s *userService) mapRepositoryError(err error, notFound error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", notFound, err)
	}
	return err
}
