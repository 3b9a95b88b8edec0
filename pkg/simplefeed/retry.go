package simplefeed

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds retries of MediaGateway calls.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  15 * time.Second,
	}
}

func (p RetryPolicy) options() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}
	opts := []backoff.RetryOption{backoff.WithBackOff(b), backoff.WithMaxTries(tries)}
	if p.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsedTime))
	}
	return opts
}

// permanent stops retrying on errors another attempt cannot fix.
func permanent(err error) error {
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrMediaRejected) || errors.Is(err, context.Canceled) {
		return backoff.Permanent(err)
	}
	return err
}

// uploadMedia uploads data, retrying transient failures. The payload is held
// in memory so every attempt reads it from the start.
func (s *service) uploadMedia(ctx context.Context, data []byte, opts UploadOptions) (MediaRef, error) {
	attempt := 0
	ref, err := backoff.Retry(ctx, func() (MediaRef, error) {
		attempt++
		ref, err := s.media.Upload(ctx, bytes.NewReader(data), opts)
		if err != nil {
			s.logger.Debug("Media upload attempt failed", "key", opts.Key, "attempt", attempt, "err", err)
			return MediaRef{}, permanent(err)
		}
		return ref, nil
	}, s.retry.options()...)
	if err != nil {
		return MediaRef{}, &MediaError{Key: opts.Key, Op: "upload", Err: err}
	}
	return ref, nil
}

func (s *service) deleteMedia(ctx context.Context, externalID string) error {
	if externalID == "" {
		return nil
	}
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := s.media.Delete(ctx, externalID); err != nil {
			s.logger.Debug("Media delete attempt failed", "key", externalID, "attempt", attempt, "err", err)
			return struct{}{}, permanent(err)
		}
		return struct{}{}, nil
	}, s.retry.options()...)
	if err != nil {
		return &MediaError{Key: externalID, Op: "delete", Err: err}
	}
	return nil
}
