package middleware

import (
	"context"
	"errors"

	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/infrastructure/supabase"
)

// SupabaseValidator is the part of supabase.JWTValidator the adapter needs.
type SupabaseValidator interface {
	Validate(ctx context.Context, token string) (*supabase.TokenClaims, error)
}

// SupabaseValidatorAdapter adapts a Supabase token validator to TokenValidator.
type SupabaseValidatorAdapter struct {
	validator SupabaseValidator
}

// NewSupabaseValidatorAdapter creates a new adapter.
//
// Usage:
//
//	jwtValidator, _ := supabase.NewJWTValidator(config)
//	authConfig := middleware.AuthConfig{
//	    TokenValidator: middleware.NewSupabaseValidatorAdapter(jwtValidator),
//	}
func NewSupabaseValidatorAdapter(validator SupabaseValidator) *SupabaseValidatorAdapter {
	if validator == nil {
		panic("supabase validator is required")
	}
	return &SupabaseValidatorAdapter{validator: validator}
}

// ValidateToken validates the token and converts its claims.
func (a *SupabaseValidatorAdapter) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	sc, err := a.validator.Validate(ctx, token)
	if err != nil {
		return nil, mapSupabaseError(err)
	}

	userID, err := uuid.ParseUUID(sc.UserID)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	return &TokenClaims{
		UserID:    userID,
		Email:     sc.Email,
		Role:      sc.Role,
		ExpiresAt: sc.ExpiresAt,
	}, nil
}

func mapSupabaseError(err error) error {
	switch {
	case errors.Is(err, supabase.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, supabase.ErrInvalidToken),
		errors.Is(err, supabase.ErrInvalidClaims),
		errors.Is(err, supabase.ErrMissingSubject),
		errors.Is(err, supabase.ErrInvalidIssuer),
		errors.Is(err, supabase.ErrInvalidAudience):
		return ErrInvalidToken
	default:
		return errors.Join(ErrInvalidToken, err)
	}
}
