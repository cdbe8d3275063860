package requestdata

import (
	"context"

	"github.com/google/uuid"

	"github.com/testschool/testschool-backend/internal/types"
)

var requestDataKey = struct{}{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if rd, ok := ctx.Value(requestDataKey).(*RequestData); ok {
		return rd
	}
	return nil
}

// RequestData carries the authenticated identity for one request. It is the
// only channel through which handlers and services learn who is calling.
type RequestData struct {
	TokenString string
	UserID      uuid.UUID
	Role        types.Role
}
