package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/attestry/attestry/internal/domain"
	"github.com/attestry/attestry/jwt"
)

var tracer = otel.Tracer("auth")

type AuthService struct {
	config *domain.Config
}

func NewAuthService(config *domain.Config) *AuthService {
	return &AuthService{
		config: config,
	}
}

type AuthResult struct {
	AID string
}

func (s *AuthService) AuthJwt(ctx context.Context, token string) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "Auth.Service.AuthJwt")
	defer span.End()

	_, claims, err := jwt.Validate(token)
	if err != nil {
		span.RecordError(errors.Wrap(err, "jwt validation failed"))
		return nil, err
	}

	if claims.Audience != s.config.FQDN {
		err := fmt.Errorf("jwt audience mismatch: expected %s, got %s", s.config.FQDN, claims.Audience)
		span.RecordError(err)
		return nil, err
	}

	if claims.Subject != "attestry" {
		err := fmt.Errorf("invalid subject")
		span.RecordError(err)
		return nil, err
	}

	return &AuthResult{AID: claims.Issuer}, nil
}

// CurrentIdentity resolves the viewer set by the auth middleware. It is
// bound once per authenticated request and immutable from here on.
func (s *AuthService) CurrentIdentity(ctx context.Context) (string, error) {
	aid, ok := ctx.Value(domain.ViewerIdCtxKey).(string)
	if !ok || aid == "" {
		return "", domain.UnauthenticatedError{}
	}
	return aid, nil
}
