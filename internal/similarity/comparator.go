package similarity

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/hyperjump/kasane/internal/models"
)

// coeffGridSize is the side length of the grayscale coefficient grid used
// for cross-correlation and coefficient hashing. 8x8 matches the classic
// average-hash layout.
const coeffGridSize = 8

// coeffLoadDim bounds the decode size when loading an image only to derive
// coefficients. The grid is tiny, so a small decode is plenty.
const coeffLoadDim = 64

// ImageLoader loads a decoded photo by id, bounded to maxDim on the longest
// side. library.Source satisfies this.
type ImageLoader interface {
	Load(ctx context.Context, photoID string, maxDim int) (image.Image, string, error)
}

// Comparator answers pairwise comparisons between two photos: embedding
// cosine plus the coefficient-domain measures (cross-correlation and hash
// distance), which work directly on pixels and catch near-duplicates the
// embedding may smooth over.
type Comparator struct {
	resolver Resolver
	loader   ImageLoader
}

// NewComparator creates a comparator from an embedding resolver and an
// image loader.
func NewComparator(resolver Resolver, loader ImageLoader) *Comparator {
	return &Comparator{resolver: resolver, loader: loader}
}

// Compare evaluates both photos pairwise. Either photo being unknown or
// undecodable yields an error.
func (c *Comparator) Compare(ctx context.Context, query *models.CompareQuery) (*models.CompareResponse, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	embA, err := c.resolveOne(ctx, query.PhotoA)
	if err != nil {
		return nil, err
	}
	embB, err := c.resolveOne(ctx, query.PhotoB)
	if err != nil {
		return nil, err
	}

	coeffA, err := c.coefficients(ctx, query.PhotoA)
	if err != nil {
		return nil, err
	}
	coeffB, err := c.coefficients(ctx, query.PhotoB)
	if err != nil {
		return nil, err
	}

	return &models.CompareResponse{
		PhotoA:           query.PhotoA,
		PhotoB:           query.PhotoB,
		Cosine:           Cosine(embA.Vector, embB.Vector),
		CrossCorrelation: CrossCorrelation(coeffA, coeffB),
		HammingDistance:  HammingDistance(CoefficientHash(coeffA), CoefficientHash(coeffB)),
	}, nil
}

func (c *Comparator) resolveOne(ctx context.Context, photoID string) (*models.Embedding, error) {
	emb, err := c.resolver.ResolveEmbedding(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", photoID, err)
	}
	if emb == nil {
		return nil, fmt.Errorf("photo not found: %s", photoID)
	}
	return emb, nil
}

func (c *Comparator) coefficients(ctx context.Context, photoID string) ([]uint8, error) {
	img, _, err := c.loader.Load(ctx, photoID, coeffLoadDim)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", photoID, err)
	}
	return GrayCoefficients(img, coeffGridSize), nil
}

// GrayCoefficients reduces img to a size-by-size grid of 8-bit luma values,
// row-major. The grid is the input format for CrossCorrelation and
// CoefficientHash.
func GrayCoefficients(img image.Image, size int) []uint8 {
	if size <= 0 {
		return nil
	}
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	coeffs := make([]uint8, 0, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			coeffs = append(coeffs, dst.GrayAt(x, y).Y)
		}
	}
	return coeffs
}

// CoefficientHash packs up to 64 coefficients into a bit hash: a set bit
// marks a coefficient above the mean. With an 8x8 grid this is the classic
// average hash, suitable for HammingDistance.
func CoefficientHash(coeffs []uint8) uint64 {
	n := len(coeffs)
	if n == 0 {
		return 0
	}
	if n > 64 {
		n = 64
	}
	var sum int
	for i := 0; i < n; i++ {
		sum += int(coeffs[i])
	}
	mean := float64(sum) / float64(n)

	var hash uint64
	for i := 0; i < n; i++ {
		if float64(coeffs[i]) > mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}
