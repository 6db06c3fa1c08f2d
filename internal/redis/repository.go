package redisclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-pipeline/internal/appointment"
)

// Repository is the primary store. Each appointment is a hash keyed by id;
// a sorted set per insured id, scored by creation time, serves the lookup.
type Repository struct {
	client redis.UniversalClient
	prefix string
	logger zerolog.Logger
}

var _ appointment.Repository = (*Repository)(nil)

func NewRepository(client redis.UniversalClient, prefix string, logger zerolog.Logger) *Repository {
	if prefix == "" {
		prefix = "appointments"
	}
	return &Repository{client: client, prefix: prefix, logger: logger}
}

func (r *Repository) appointmentKey(id string) string {
	return fmt.Sprintf("%s:appointment:%s", r.prefix, id)
}

func (r *Repository) insuredKey(insuredID string) string {
	return fmt.Sprintf("%s:insured:%s", r.prefix, insuredID)
}

func (r *Repository) Create(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.appointmentKey(a.ID), a.Hash())
	pipe.ZAdd(ctx, r.insuredKey(a.InsuredID), redis.Z{
		Score:  float64(a.CreatedAt.UnixMilli()),
		Member: a.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store appointment: %w", err)
	}

	r.logger.Debug().Str("appointment_id", a.ID).Msg("appointment stored")
	return a, nil
}

// ProcessAppointment writes only status and updatedAt, and only for an
// appointment that already exists.
func (r *Repository) ProcessAppointment(ctx context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	reply, err := processScript.Run(
		ctx,
		r.client,
		[]string{r.appointmentKey(a.ID)},
		string(a.Status),
		appointment.FormatTime(a.UpdatedAt),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", appointment.ErrAppointmentNotFound, a.ID)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	h, err := hashFromReply(reply)
	if err != nil {
		return nil, err
	}
	return appointment.FromHash(h)
}

func (r *Repository) FindAllByInsuredID(ctx context.Context, insuredID string) ([]*appointment.Appointment, error) {
	ids, err := r.client.ZRevRange(ctx, r.insuredKey(insuredID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read insured index: %w", err)
	}

	result := make([]*appointment.Appointment, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, r.appointmentKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			r.logger.Warn().Str("appointment_id", ids[i]).Msg("index entry without appointment")
			continue
		}
		a, err := appointment.FromHash(h)
		if err != nil {
			return nil, fmt.Errorf("decode appointment %s: %w", ids[i], err)
		}
		result = append(result, a)
	}

	return result, nil
}

// Ping reports whether the store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
