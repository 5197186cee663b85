package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/models"
)

// UserRepository reads office users from each office's SCreateAdmin table.
type UserRepository struct {
	offices Resolver
	logger  *logrus.Logger
}

func NewUserRepository(offices Resolver, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		offices: offices,
		logger:  logger,
	}
}

// FindCredential returns the login row of userID in office.
func (r *UserRepository) FindCredential(ctx context.Context, office, userID string) (*models.Credential, error) {
	h, err := r.offices.Get(office)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT COALESCE("Name", ''), "UserId", COALESCE("Password", ''),
		       COALESCE("Post", ''), COALESCE("MobileNo"::text, '')
		FROM "SCreateAdmin"
		WHERE "UserId" = $1
		LIMIT 1
	`

	c := models.Credential{Office: office}
	err = h.QueryRow(ctx, query, userID).Scan(&c.Name, &c.UserID, &c.Password, &c.Post, &c.Mobile)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.CodeUserNotFound, "Invalid credentials - Please Verify your office %s", office)
	}
	if err != nil {
		r.logger.WithError(err).WithField("office", office).Error("Failed to fetch credential")
		return nil, fmt.Errorf("failed to fetch credential: %w", err)
	}

	return &c, nil
}

// Profile returns the profile of userID in office.
func (r *UserRepository) Profile(ctx context.Context, office, userID string) (*models.Profile, error) {
	h, err := r.offices.Get(office)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT "UserId", COALESCE("Name", ''), COALESCE("Office", ''), COALESCE("Post", ''),
		       COALESCE("MobileNo"::text, ''), COALESCE("Email", ''), COALESCE("Image", '')
		FROM "SCreateAdmin"
		WHERE "UserId" = $1
		LIMIT 1
	`

	var p models.Profile
	err = h.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.Name, &p.Office, &p.Post, &p.Mobile, &p.Email, &p.Image)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.CodeUserNotFound, "No user found with this userId")
	}
	if err != nil {
		r.logger.WithError(err).WithField("office", office).Error("Failed to fetch profile")
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if p.Office == "" {
		p.Office = office
	}

	return &p, nil
}
