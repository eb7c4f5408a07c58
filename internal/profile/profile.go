package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go-creator-hub/internal/api"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/session"
)

const (
	DefaultAvatarSize = 512
	maxAvatarInput    = 10 << 20
	avatarQuality     = 90
)

var (
	ErrNotSignedIn    = errors.New("not signed in")
	ErrAvatarTooLarge = errors.New("avatar image is too large")
	ErrNotAnImage     = errors.New("unsupported or corrupt image")
)

type Service struct {
	client *api.Client
	store  *session.Store
}

func NewService(client *api.Client, store *session.Store) *Service {
	return &Service{client: client, store: store}
}

// Get loads the profile from the endpoint that matches the stored role.
func (s *Service) Get(ctx context.Context) (*model.Profile, error) {
	segment, err := s.segment()
	if err != nil {
		return nil, err
	}
	return s.client.GetProfile(ctx, segment)
}

func (s *Service) Update(ctx context.Context, update model.ProfileUpdate) (*model.Profile, error) {
	segment, err := s.segment()
	if err != nil {
		return nil, err
	}
	return s.client.UpdateProfile(ctx, segment, update)
}

// UploadAvatar scales the image in r and stores it as the profile avatar.
func (s *Service) UploadAvatar(ctx context.Context, r io.Reader) (*model.Profile, error) {
	segment, err := s.segment()
	if err != nil {
		return nil, err
	}

	jpg, err := PrepareAvatar(r, DefaultAvatarSize)
	if err != nil {
		return nil, err
	}

	return s.client.UploadAvatar(ctx, segment, jpg)
}

func (s *Service) segment() (string, error) {
	if !s.store.IsAuthenticated() {
		return "", ErrNotSignedIn
	}
	if s.store.IsContentCreator() {
		return api.SegmentContentCreator, nil
	}
	return api.SegmentCompany, nil
}

// PrepareAvatar decodes any supported image, fits it inside maxDim x maxDim
// without upscaling and re-encodes it as JPEG on a white background.
func PrepareAvatar(r io.Reader, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		maxDim = DefaultAvatarSize
	}

	data, err := io.ReadAll(io.LimitReader(r, maxAvatarInput+1))
	if err != nil {
		return nil, fmt.Errorf("read avatar: %w", err)
	}
	if len(data) > maxAvatarInput {
		return nil, ErrAvatarTooLarge
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, ErrNotAnImage
	}

	longest := max(width, height)
	scale := math.Min(1, float64(maxDim)/float64(longest))

	targetWidth := max(1, int(math.Round(float64(width)*scale)))
	targetHeight := max(1, int(math.Round(float64(height)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: avatarQuality}); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}

	return out.Bytes(), nil
}
