package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/rs/zerolog"

	"muster/api/internal/media/sniffer"
	"muster/api/internal/media/svg"
)

const MaxArtworkBytes = 5 << 20

var ErrArtworkTooLarge = fmt.Errorf("%w: artwork exceeds %d bytes", ErrValidation, MaxArtworkBytes)

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type ArtworkService struct {
	store      ObjectStore
	presignTTL time.Duration
	log        zerolog.Logger
}

func NewArtworkService(store ObjectStore, presignTTL time.Duration, log zerolog.Logger) *ArtworkService {
	return &ArtworkService{
		store:      store,
		presignTTL: presignTTL,
		log:        log.With().Str("component", "artwork").Logger(),
	}
}

// Store sniffs, sanitizes and uploads an artwork image and returns its
// object key. A declared content type must agree with the sniffed one.
func (s *ArtworkService) Store(ctx context.Context, resource, id string, body io.Reader, declaredType string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxArtworkBytes+1))
	if err != nil {
		return "", fmt.Errorf("read artwork: %w", err)
	}
	if len(data) == 0 {
		return "", validationError("empty file")
	}
	if len(data) > MaxArtworkBytes {
		return "", ErrArtworkTooLarge
	}

	result, err := sniffer.DetectHead(data[:min(len(data), sniffer.HeadSize)])
	if err != nil {
		if errors.Is(err, sniffer.ErrUnknownType) {
			return "", validationError("unsupported image type")
		}
		return "", err
	}
	if declaredType != "" && declaredType != "application/octet-stream" && declaredType != result.MIME {
		return "", validationError("content type mismatch: declared %s, actual %s", declaredType, result.MIME)
	}

	if result.Type == sniffer.TypeSVG {
		clean, err := svg.Sanitize(data)
		if err != nil {
			return "", validationError("sanitize svg: %v", err)
		}
		data = clean
	}

	key := path.Join("artwork", resource, fmt.Sprintf("%s.%s", id, result.Type.Extension()))
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), result.MIME); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	s.log.Info().Str("key", key).Int("size", len(data)).Str("mime", result.MIME).Msg("artwork stored")
	return key, nil
}

func (s *ArtworkService) URL(ctx context.Context, key string) (string, error) {
	url, err := s.store.PresignGet(ctx, key, s.presignTTL)
	if err != nil {
		return "", fmt.Errorf("presign: %w", err)
	}
	return url, nil
}
