package authorization

import (
	"context"

	"github.com/smallbiznis/academy/internal/identity"
)

type Service interface {
	IsAdmin(ctx context.Context, id identity.Identity) (bool, error)
}
