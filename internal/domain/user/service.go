package user

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/domain/inventory"
	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/blobstore"
	"github.com/lifelink/lifelink/internal/platform/db"
)

type Service struct {
	repo    Repository
	tokens  *auth.TokenManager
	revoked auth.RevocationStore
	blobs   blobstore.BlobStore
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, tokens *auth.TokenManager, revoked auth.RevocationStore, blobs blobstore.BlobStore, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, revoked: revoked, blobs: blobs, logger: logger, now: time.Now}
}

func normalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", apperr.Validation("a valid email is required")
	}
	return s, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Register creates a donor, recipient or hospital account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < auth.MinPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", auth.MinPasswordLength)
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return nil, apperr.Validation("phone is required")
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil || role == auth.RoleAdmin {
		return nil, apperr.Validation("role must be donor, recipient or hospital")
	}

	u := &User{
		Name:        name,
		Email:       email,
		Role:        role,
		Phone:       phone,
		Address:     strings.TrimSpace(req.Address),
		City:        strings.TrimSpace(req.City),
		IsAvailable: true,
	}
	if req.BloodType != "" {
		bt, err := inventory.ParseBloodType(req.BloodType)
		if err != nil {
			return nil, apperr.Validation("invalid blood type")
		}
		u.BloodType = &bt
	}
	if role == auth.RoleDonor && u.BloodType == nil {
		return nil, apperr.Validation("blood type is required for donors")
	}
	if role == auth.RoleHospital {
		u.HospitalName = optional(req.HospitalName)
		u.LicenseNumber = optional(req.LicenseNumber)
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("user already exists")
	} else if !db.IsNoRows(err) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash

	if err := s.repo.Create(ctx, u); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, apperr.Conflict("user already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user registered")
	return s.issue(u)
}

func (s *Service) issue(u *User) (*AuthResult, error) {
	pair, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{User: u, TokenPair: pair}, nil
}

var errInvalidCredentials = apperr.Unauthorized("invalid credentials")

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, errInvalidCredentials
	}
	return s.issue(u)
}

// Refresh exchanges a valid refresh token for a new token pair. The role is
// re-read so a promoted account picks up its new role.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, apperr.Unauthorized("no refresh token")
	}
	claims, err := s.tokens.Parse(refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}
	if s.revoked != nil {
		revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, apperr.Unauthorized("refresh token has been revoked")
		}
	}
	u, err := s.repo.GetByID(ctx, uuid.MustParse(claims.Subject))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.Unauthorized("user not found")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	res, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	res.User = nil
	return res, nil
}

// Logout revokes the caller's access token and, when given, the refresh token.
func (s *Service) Logout(ctx context.Context, actor auth.Identity, refreshToken string) error {
	if s.revoked == nil {
		return nil
	}
	if actor.TokenID != "" {
		if err := s.revoked.Revoke(ctx, actor.TokenID, actor.ExpiresAt); err != nil {
			return fmt.Errorf("revoke token: %w", err)
		}
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.Parse(refreshToken, auth.TokenTypeRefresh)
	if err != nil || claims.Subject != actor.UserID.String() {
		return nil
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if err := s.revoked.Revoke(ctx, claims.ID, exp); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("user")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Service) Me(ctx context.Context, actor auth.Identity) (*User, error) {
	return s.Get(ctx, actor.UserID)
}

// UpdateProfile applies upd and, when picture is non-nil, stores it as the
// new profile picture.
func (s *Service) UpdateProfile(ctx context.Context, actor auth.Identity, upd ProfileUpdate, picture *multipart.FileHeader) (*User, error) {
	u, err := s.Get(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil && strings.TrimSpace(*upd.Name) != "" {
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Phone != nil && strings.TrimSpace(*upd.Phone) != "" {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Address != nil {
		u.Address = strings.TrimSpace(*upd.Address)
	}
	if upd.City != nil {
		u.City = strings.TrimSpace(*upd.City)
	}
	if upd.BloodType != nil && *upd.BloodType != "" && (u.Role == auth.RoleDonor || u.Role == auth.RoleRecipient) {
		bt, err := inventory.ParseBloodType(*upd.BloodType)
		if err != nil {
			return nil, apperr.Validation("invalid blood type")
		}
		u.BloodType = &bt
	}
	if u.Role == auth.RoleHospital {
		if upd.HospitalName != nil && strings.TrimSpace(*upd.HospitalName) != "" {
			u.HospitalName = optional(*upd.HospitalName)
		}
		if upd.LicenseNumber != nil && strings.TrimSpace(*upd.LicenseNumber) != "" {
			u.LicenseNumber = optional(*upd.LicenseNumber)
		}
	}

	if picture != nil {
		if s.blobs == nil {
			return nil, apperr.Validation("file uploads are not configured")
		}
		url, err := blobstore.SaveImage(ctx, s.blobs, u.ID, picture)
		if err != nil {
			switch {
			case errors.Is(err, blobstore.ErrFileTooLarge),
				errors.Is(err, blobstore.ErrInvalidContentType),
				errors.Is(err, blobstore.ErrEmptyFile):
				return nil, apperr.Validation("%s", err.Error())
			}
			return nil, fmt.Errorf("store profile picture: %w", err)
		}
		u.ProfilePicture = &url
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// UpdateAvailability toggles a donor's availability. Going unavailable
// records the time as the last donation.
func (s *Service) UpdateAvailability(ctx context.Context, actor auth.Identity, available bool) (*User, error) {
	if !actor.Is(auth.RoleDonor) {
		return nil, apperr.Forbidden("only donors can update availability")
	}
	var last *time.Time
	if !available {
		now := s.now()
		last = &now
	}
	if err := s.repo.SetAvailability(ctx, actor.UserID, available, last); err != nil {
		return nil, fmt.Errorf("update availability: %w", err)
	}
	return s.Get(ctx, actor.UserID)
}

// ClaimAvailability marks a donor unavailable as of at. It fails with
// ErrDonorUnavailable when the donor was already unavailable.
func (s *Service) ClaimAvailability(ctx context.Context, donorID uuid.UUID, at time.Time) error {
	ok, err := s.repo.ClaimAvailability(ctx, donorID, at)
	if err != nil {
		return fmt.Errorf("claim availability: %w", err)
	}
	if !ok {
		return ErrDonorUnavailable
	}
	return nil
}

// ErrDonorUnavailable is returned when a donor cannot take a request.
var ErrDonorUnavailable = &apperr.Error{Kind: apperr.ErrBusinessRule, Msg: "donor is not available"}

// ListDonors applies the caller's visibility rules: recipients only see
// available donors and never their contact details.
func (s *Service) ListDonors(ctx context.Context, actor auth.Identity, f DonorFilter) ([]*User, error) {
	if f.BloodType != "" && !f.BloodType.Valid() {
		f.BloodType = ""
	}
	recipient := actor.Is(auth.RoleRecipient)
	if recipient {
		yes := true
		f.Available = &yes
	}
	donors, err := s.repo.ListDonors(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	if recipient {
		for i, d := range donors {
			donors[i] = d.Redacted()
		}
	}
	return donors, nil
}

// FindDonors lists donors for other services without visibility rules.
func (s *Service) FindDonors(ctx context.Context, f DonorFilter) ([]*User, error) {
	donors, err := s.repo.ListDonors(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	return donors, nil
}

func (s *Service) GetDonor(ctx context.Context, actor auth.Identity, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("donor")
		}
		return nil, fmt.Errorf("get donor: %w", err)
	}
	if u.Role != auth.RoleDonor {
		return nil, apperr.NotFound("donor")
	}
	if actor.Is(auth.RoleRecipient) {
		if !u.IsAvailable {
			return nil, apperr.Forbidden("donor is not available")
		}
		return u.Redacted(), nil
	}
	return u, nil
}

// HospitalDonors lists every donor, available or not.
func (s *Service) HospitalDonors(ctx context.Context, f DonorFilter) ([]*User, error) {
	if f.BloodType != "" && !f.BloodType.Valid() {
		f.BloodType = ""
	}
	f.Available = nil
	return s.FindDonors(ctx, f)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	items, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return items, total, nil
}

func (s *Service) CountByRole(ctx context.Context) (map[auth.Role]int, error) {
	counts, err := s.repo.CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	return counts, nil
}

// Delete removes a user. Admins cannot delete their own account.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	if id == actor.UserID {
		return apperr.Business("you cannot delete your own account")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.logger.Info().Str("user_id", id.String()).Str("by", actor.UserID.String()).Msg("user deleted")
	return nil
}

// SeedAdmin creates an admin account, or promotes and resets the password of
// an existing account with that email. It reports whether a new account was
// created.
func (s *Service) SeedAdmin(ctx context.Context, name, email, password, phone string) (bool, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return false, err
	}
	if len(password) < auth.MinPasswordLength {
		return false, apperr.Validation("password must be at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		existing.Role = auth.RoleAdmin
		existing.PasswordHash = hash
		if err := s.repo.Update(ctx, existing); err != nil {
			return false, fmt.Errorf("promote admin: %w", err)
		}
		return false, nil
	case !db.IsNoRows(err):
		return false, fmt.Errorf("find admin: %w", err)
	}

	if name == "" {
		name = "System Admin"
	}
	u := &User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		Phone:        phone,
		IsAvailable:  false,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}
