package hub

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"buffet-system/internal/domain"
)

// Declaration is what a client presents before the upgrade. Channel
// subscriptions are computed from it once and fixed for the connection's
// lifetime.
type Declaration struct {
	Role       string
	OrderToken string
	UserID     int
}

const (
	RoleStaff    = "staff"
	RoleKitchen  = "kitchen"
	RoleCustomer = "customer"
)

// OrderLookup is the slice of the store the resolver needs.
type OrderLookup interface {
	GetOrderByToken(ctx context.Context, token string) (domain.Order, error)
}

const tokenKeyPrefix = "buffet:order-token:"

// TokenResolver maps a public order token to its order id. Lookups go
// through redis first so a customer reconnecting after a server restart
// re-derives the same order channel cheaply; the store stays authoritative
// on a miss. A nil redis client degrades to store-only lookups.
type TokenResolver struct {
	store  OrderLookup
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewTokenResolver(store OrderLookup, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *TokenResolver {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenResolver{store: store, redis: rdb, ttl: ttl, logger: logger}
}

func (r *TokenResolver) Resolve(ctx context.Context, token string) (int, error) {
	if token == "" {
		return 0, domain.Invalid("token", "required")
	}

	if r.redis != nil {
		cached, err := r.redis.Get(ctx, tokenKeyPrefix+token).Result()
		if err == nil {
			if id, convErr := strconv.Atoi(cached); convErr == nil {
				return id, nil
			}
		} else if err != redis.Nil {
			// Cache trouble is not fatal; the store still answers.
			r.logger.Warn("token cache read failed", zap.Error(err))
		}
	}

	order, err := r.store.GetOrderByToken(ctx, token)
	if err != nil {
		return 0, err
	}

	if r.redis != nil {
		if err := r.redis.Set(ctx, tokenKeyPrefix+token, strconv.Itoa(order.ID), r.ttl).Err(); err != nil {
			r.logger.Warn("token cache write failed", zap.Error(err))
		}
	}
	return order.ID, nil
}

// Channels computes the fixed subscription set for a declaration.
// Malformed or unauthorized declarations (unknown role, missing or unknown
// token) fail here, before the websocket upgrade.
func Channels(ctx context.Context, decl Declaration, resolver *TokenResolver) ([]string, error) {
	switch decl.Role {
	case RoleStaff:
		channels := []string{domain.ChannelGlobalStaff}
		if decl.OrderToken != "" {
			orderID, err := resolver.Resolve(ctx, decl.OrderToken)
			if err != nil {
				return nil, err
			}
			channels = append(channels, domain.OrderChannel(orderID))
		}
		if decl.UserID > 0 {
			channels = append(channels, domain.UserChannel(decl.UserID))
		}
		return channels, nil

	case RoleKitchen:
		return []string{domain.ChannelKitchen}, nil

	case RoleCustomer:
		// Customer sessions see their own order and nothing else.
		orderID, err := resolver.Resolve(ctx, decl.OrderToken)
		if err != nil {
			return nil, err
		}
		return []string{domain.OrderChannel(orderID)}, nil

	default:
		return nil, domain.Invalid("role", "unknown")
	}
}
