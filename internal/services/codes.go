package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/models"
)

// Delivery codes are four digits drawn from a fixed space of 9000 values.
// Codes are never reused, so the space is a hard capacity ceiling.
const (
	DeliveryCodeMin   = 1000
	DeliveryCodeMax   = 9999
	DeliveryCodeSpace = DeliveryCodeMax - DeliveryCodeMin + 1

	OrderReferencePrefix = "ORD"
)

// CodePolicy bounds every retry loop of the allocator.
type CodePolicy struct {
	RandomAttempts    int
	ExhaustiveScan    bool
	InsertAttempts    int
	ReferenceAttempts int
}

// DefaultCodePolicy draws 200 random codes before scanning, and retries a
// colliding insert up to 40 times.
func DefaultCodePolicy() CodePolicy {
	return CodePolicy{
		RandomAttempts:    200,
		ExhaustiveScan:    true,
		InsertAttempts:    40,
		ReferenceAttempts: 10,
	}
}

// CodeUtilization reports how much of the delivery code space is used.
type CodeUtilization struct {
	Used     int64   `json:"used"`
	Capacity int64   `json:"capacity"`
	Ratio    float64 `json:"ratio"`
}

// CodeAllocator hands out order references and delivery codes inside the
// caller's transaction.
type CodeAllocator struct {
	policy  CodePolicy
	randInt func(n int) int
	now     func() time.Time
}

func NewCodeAllocator(policy CodePolicy) *CodeAllocator {
	return &CodeAllocator{
		policy:  policy,
		randInt: cryptoRandInt,
		now:     time.Now,
	}
}

// NextDeliveryCode returns a code no order holds yet.
func (a *CodeAllocator) NextDeliveryCode(ctx context.Context, tx *gorm.DB) (string, error) {
	for i := 0; i < a.policy.RandomAttempts; i++ {
		code := strconv.Itoa(DeliveryCodeMin + a.randInt(DeliveryCodeSpace))
		taken, err := a.codeTaken(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}

	if !a.policy.ExhaustiveScan {
		return "", Fail(ErrCodeSpaceExhausted)
	}

	log.Warn().Int("attempts", a.policy.RandomAttempts).Msg("random delivery code draws exhausted, scanning code space")
	return a.scanForFreeCode(ctx, tx)
}

func (a *CodeAllocator) scanForFreeCode(ctx context.Context, tx *gorm.DB) (string, error) {
	var used []string
	if err := tx.WithContext(ctx).Model(&models.Order{}).
		Where("delivery_code <> ''").
		Pluck("delivery_code", &used).Error; err != nil {
		return "", pkgerrors.Wrap(err, "load used delivery codes")
	}

	taken := make(map[string]struct{}, len(used))
	for _, code := range used {
		taken[code] = struct{}{}
	}

	for n := DeliveryCodeMin; n <= DeliveryCodeMax; n++ {
		code := strconv.Itoa(n)
		if _, ok := taken[code]; !ok {
			return code, nil
		}
	}

	log.Error().Int("capacity", DeliveryCodeSpace).Msg("delivery code space exhausted")
	return "", Fail(ErrCodeSpaceExhausted)
}

func (a *CodeAllocator) codeTaken(ctx context.Context, tx *gorm.DB, code string) (bool, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.Order{}).
		Where("delivery_code = ?", code).
		Count(&count).Error; err != nil {
		return false, pkgerrors.Wrap(err, "check delivery code")
	}
	return count > 0, nil
}

// NextOrderReference returns ORD-<yyyymmddhhmmss>-<suffix>, checked against
// existing orders.
func (a *CodeAllocator) NextOrderReference(ctx context.Context, tx *gorm.DB) (string, error) {
	for i := 0; i < a.policy.ReferenceAttempts; i++ {
		ref := a.formatReference()

		var count int64
		if err := tx.WithContext(ctx).Model(&models.Order{}).
			Where("reference = ?", ref).
			Count(&count).Error; err != nil {
			return "", pkgerrors.Wrap(err, "check order reference")
		}
		if count == 0 {
			return ref, nil
		}
	}
	return "", Fail(ErrAllocationExhausted)
}

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (a *CodeAllocator) formatReference() string {
	var suffix strings.Builder
	for i := 0; i < 6; i++ {
		suffix.WriteByte(referenceAlphabet[a.randInt(len(referenceAlphabet))])
	}
	return fmt.Sprintf("%s-%s-%s", OrderReferencePrefix, a.now().UTC().Format("20060102150405"), suffix.String())
}

// Insert assigns a reference and delivery code to order and inserts it along
// with its items. Each attempt runs in a savepoint; a unique violation rolls
// back only that attempt and draws new identifiers.
func (a *CodeAllocator) Insert(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	var lastErr error

	for attempt := 1; attempt <= a.policy.InsertAttempts; attempt++ {
		ref, err := a.NextOrderReference(ctx, tx)
		if err != nil {
			return err
		}
		code, err := a.NextDeliveryCode(ctx, tx)
		if err != nil {
			return err
		}

		order.Reference = ref
		order.DeliveryCode = code

		err = tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
			return sp.Create(order).Error
		})
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return pkgerrors.Wrap(err, "insert order")
		}

		lastErr = err
		resetForRetry(order)
		log.Warn().Err(err).Int("attempt", attempt).Str("reference", ref).Msg("order identifier collision, retrying")
	}

	log.Error().Err(lastErr).Int("attempts", a.policy.InsertAttempts).Msg("order insert retries exhausted")
	return &Error{Info: ErrAllocationExhausted, Err: lastErr}
}

// A failed Create may already have stamped ids on the order and its items.
func resetForRetry(order *models.Order) {
	order.ID = uuid.Nil
	for i := range order.Items {
		order.Items[i].ID = uuid.Nil
		order.Items[i].OrderID = uuid.Nil
	}
}

// Utilization counts issued delivery codes.
func (a *CodeAllocator) Utilization(ctx context.Context, db *gorm.DB) (CodeUtilization, error) {
	var used int64
	if err := db.WithContext(ctx).Model(&models.Order{}).
		Where("delivery_code <> ''").
		Count(&used).Error; err != nil {
		return CodeUtilization{}, pkgerrors.Wrap(err, "count delivery codes")
	}
	return CodeUtilization{
		Used:     used,
		Capacity: DeliveryCodeSpace,
		Ratio:    float64(used) / float64(DeliveryCodeSpace),
	}, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func cryptoRandInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}
