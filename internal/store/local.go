package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/iieono/make-via-backend-sub000/internal/config"
)

// LocalStore keeps artifacts on the local filesystem and signs download
// URLs with an HS256 token so links expire like presigned ones do.
type LocalStore struct {
	root    string
	baseURL string
	secret  []byte
	log     *zap.Logger
}

type downloadClaims struct {
	Path string `json:"path"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

func NewLocalStore(config *config.LocalStoreConfig, log *zap.Logger) (*LocalStore, error) {
	if config.SigningSecret == "" {
		return nil, errors.New("local store requires a signing secret")
	}
	if config.Root == "" {
		return nil, errors.New("local store requires a root directory")
	}

	if err := os.MkdirAll(config.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}

	return &LocalStore{
		root:    config.Root,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		secret:  []byte(config.SigningSecret),
		log:     log,
	}, nil
}

func (s *LocalStore) Upload(ctx context.Context, localPath, storedPath string) error {
	dst, err := s.resolve(storedPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	if err := copyFile(localPath, dst); err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	s.log.Debug("stored artifact",
		zap.String("path", storedPath))
	return nil
}

func (s *LocalStore) DownloadURL(ctx context.Context, storedPath, downloadName string, expiresIn time.Duration) (string, error) {
	if _, err := s.resolve(storedPath); err != nil {
		return "", err
	}

	claims := &downloadClaims{
		Path: storedPath,
		Name: downloadName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign download token: %w", err)
	}

	return fmt.Sprintf("%s/download/%s", s.baseURL, signed), nil
}

// VerifyToken checks a download token and returns the stored path it grants
// along with the filename the response should carry.
func (s *LocalStore) VerifyToken(tokenString string) (string, string, error) {
	claims := &downloadClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", "", err
	}

	if !token.Valid {
		return "", "", errors.New("invalid token")
	}

	return claims.Path, claims.Name, nil
}

func (s *LocalStore) Exists(ctx context.Context, storedPath string) (bool, error) {
	full, err := s.resolve(storedPath)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *LocalStore) Copy(ctx context.Context, srcPath, dstPath string) error {
	src, err := s.resolve(srcPath)
	if err != nil {
		return err
	}
	dst, err := s.resolve(dstPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return ErrArtifactNotFound
		}
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return copyFile(src, dst)
}

func (s *LocalStore) Delete(ctx context.Context, storedPath string) error {
	full, err := s.resolve(storedPath)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// FilePath exposes the absolute path of a stored artifact for serving.
func (s *LocalStore) FilePath(storedPath string) (string, error) {
	return s.resolve(storedPath)
}

// resolve maps a stored path under the root, rejecting escapes.
func (s *LocalStore) resolve(storedPath string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(storedPath))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid artifact path: %s", storedPath)
	}
	return full, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, dst)
}
