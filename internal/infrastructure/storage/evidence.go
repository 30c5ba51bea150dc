package storage

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

const MaxImageBytes = 5 << 20

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type Image struct {
	ContentType string
	Data        []byte
}

// DecodeDataURL parses a base64 image data URL and checks that the bytes are
// what the header claims.
func DecodeDataURL(s string) (*Image, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, domain.ErrInvalidProof.Withf("image is not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, domain.ErrInvalidProof.Withf("image data URL has no payload")
	}
	contentType, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return nil, domain.ErrInvalidProof.Withf("image data URL must be base64 encoded")
	}
	contentType = strings.ToLower(contentType)
	if _, ok := extensions[contentType]; !ok {
		return nil, domain.ErrInvalidProof.Withf("unsupported image type %q", contentType)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+2 {
		return nil, domain.ErrInvalidProof.Withf("image larger than %d bytes", MaxImageBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, domain.ErrInvalidProof.Withf("image payload is not valid base64")
	}
	if len(data) == 0 {
		return nil, domain.ErrInvalidProof.Withf("image is empty")
	}
	if len(data) > MaxImageBytes {
		return nil, domain.ErrInvalidProof.Withf("image larger than %d bytes", MaxImageBytes)
	}
	if sniffed := http.DetectContentType(data); sniffed != contentType {
		return nil, domain.ErrInvalidProof.Withf("image content is %s, declared %s", sniffed, contentType)
	}
	return &Image{ContentType: contentType, Data: data}, nil
}

// EvidenceStore keeps proof images under root, one directory per redemption.
// Paths handed out are relative to root.
type EvidenceStore struct {
	fs   afero.Fs
	root string
}

var _ usecase.EvidenceStorage = (*EvidenceStore)(nil)

func NewEvidenceStore(fs afero.Fs, root string) *EvidenceStore {
	return &EvidenceStore{fs: fs, root: root}
}

func (s *EvidenceStore) Store(ctx context.Context, redemptionID uuid.UUID, dataURLs []string) ([]string, error) {
	images := make([]*Image, 0, len(dataURLs))
	for i, u := range dataURLs {
		img, err := DecodeDataURL(u)
		if err != nil {
			var de *domain.Error
			if errors.As(err, &de) {
				return nil, de.Withf("image %d: %s", i+1, de.Message)
			}
			return nil, err
		}
		images = append(images, img)
	}

	dir := redemptionID.String()
	if err := s.fs.MkdirAll(path.Join(s.root, dir), 0o755); err != nil {
		return nil, domain.ErrStorage.Wrap(err)
	}

	paths := make([]string, 0, len(images))
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, s.abort(ctx, paths, err)
		}
		sum := blake2b.Sum256(img.Data)
		name := fmt.Sprintf("%s-%s%s", uuid.NewString()[:8], hex.EncodeToString(sum[:16]), extensions[img.ContentType])
		rel := path.Join(dir, name)
		if err := afero.WriteFile(s.fs, path.Join(s.root, rel), img.Data, 0o644); err != nil {
			return nil, s.abort(ctx, paths, err)
		}
		paths = append(paths, rel)
	}
	return paths, nil
}

// abort removes what was written before a failure and reports the failure.
func (s *EvidenceStore) abort(ctx context.Context, written []string, cause error) error {
	if err := s.Delete(ctx, written...); err != nil {
		cause = errors.Join(cause, err)
	}
	return domain.ErrStorage.Wrap(cause)
}

// Delete removes files. Missing files count as deleted.
func (s *EvidenceStore) Delete(_ context.Context, paths ...string) error {
	var errs []error
	for _, p := range paths {
		full, err := s.resolve(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.fs.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (s *EvidenceStore) Open(p string) (afero.File, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return s.fs.Open(full)
}

func (s *EvidenceStore) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" || clean != "/"+p {
		return "", fmt.Errorf("invalid evidence path %q", p)
	}
	return path.Join(s.root, clean), nil
}
