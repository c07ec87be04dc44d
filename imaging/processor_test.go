package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/arya/errs"
)

func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(w*31 + h)))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type call struct {
	width, height, quality int
}

// sizedEncoder writes width*quality bytes so the loop is deterministic.
func sizedEncoder(calls *[]call) Encoder {
	return func(w io.Writer, img image.Image, quality int) error {
		b := img.Bounds()
		*calls = append(*calls, call{b.Dx(), b.Dy(), quality})
		_, err := w.Write(bytes.Repeat([]byte{0xff}, b.Dx()*quality))
		return err
	}
}

func TestSmallImagesAreUntouched(t *testing.T) {
	data := noisyPNG(t, 64, 64)
	p := NewProcessor()

	var stages []Stage
	res, err := p.Process(context.Background(), data, func(pr Progress) { stages = append(stages, pr.Stage) })
	require.NoError(t, err)
	assert.Equal(t, data, res.Data)
	assert.False(t, res.Compressed)
	assert.Equal(t, "png", res.Format)
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, []Stage{StageCompleted}, stages)
}

func TestStopsOnceUnderCeiling(t *testing.T) {
	var calls []call
	data := noisyPNG(t, 400, 30)
	p := NewProcessor(WithCeiling(30000), WithEncoder(sizedEncoder(&calls)))
	require.Greater(t, len(data), p.Ceiling())

	res, err := p.Process(context.Background(), data, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 70, res.Quality)
	assert.Len(t, res.Data, 28000)
	assert.Equal(t, []call{{400, 30, 90}, {400, 30, 80}, {400, 30, 70}}, calls)
}

func TestDownscalesOnceWhenQualityRunsOut(t *testing.T) {
	var calls []call
	data := noisyPNG(t, 1000, 10)
	p := NewProcessor(WithCeiling(10), WithEncoder(sizedEncoder(&calls)))

	res, err := p.Process(context.Background(), data, nil)
	require.NoError(t, err)
	require.Len(t, calls, MaxAttempts)

	var qualities []int
	for _, c := range calls {
		qualities = append(qualities, c.quality)
	}
	assert.Equal(t, []int{90, 80, 70, 60, 50, 40, 30, 70}, qualities)
	assert.Equal(t, 1000, calls[6].width)
	assert.Equal(t, 800, calls[7].width)
	assert.Equal(t, 8, calls[7].height)

	// Smallest encoding wins even though the ceiling was never met.
	assert.Equal(t, MaxAttempts, res.Attempts)
	assert.Equal(t, 30, res.Quality)
	assert.Equal(t, 1000, res.Width)
	assert.Len(t, res.Data, 30000)
}

func TestNarrowImagesAreNotDownscaled(t *testing.T) {
	var calls []call
	p := NewProcessor(WithCeiling(10), WithEncoder(sizedEncoder(&calls)))

	_, err := p.Process(context.Background(), noisyPNG(t, 200, 20), nil)
	require.NoError(t, err)
	require.Len(t, calls, MaxAttempts)
	for _, c := range calls {
		assert.Equal(t, 200, c.width)
	}
	assert.Equal(t, 20, calls[7].quality)
}

func TestClampsDimensions(t *testing.T) {
	var calls []call
	p := NewProcessor(WithCeiling(10), WithEncoder(sizedEncoder(&calls)))

	_, err := p.Process(context.Background(), noisyPNG(t, 5000, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, 4096, calls[0].width)
	assert.Equal(t, 8, calls[0].height)
}

func TestClampSize(t *testing.T) {
	tests := []struct {
		w, h, wantW, wantH int
	}{
		{800, 600, 800, 600},
		{8192, 4096, 4096, 2048},
		{3000, 6000, 2048, 4096},
		{4096, 4096, 4096, 4096},
		{10000, 1, 4096, 1},
	}
	for _, tt := range tests {
		w, h := ClampSize(tt.w, tt.h)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
		assert.LessOrEqual(t, w*h, MaxPixels)
	}
}

func TestRealEncodingConverges(t *testing.T) {
	data := noisyPNG(t, 300, 300)
	ceiling := len(data) / 4
	p := NewProcessor(WithCeiling(ceiling))

	var percents []int
	res, err := p.Process(context.Background(), data, func(pr Progress) { percents = append(percents, pr.Percent) })
	require.NoError(t, err)
	assert.True(t, res.Compressed)
	assert.Equal(t, "jpeg", res.Format)
	assert.True(t, len(res.Data) <= ceiling || res.Attempts == MaxAttempts)

	_, err = jpeg.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)

	require.NotEmpty(t, percents)
	assert.Equal(t, 10, percents[0])
	assert.Equal(t, 100, percents[len(percents)-1])
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}
}

func TestTransparencyIsFlattenedOnWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	p := NewProcessor(WithCeiling(10))
	res, err := p.Process(context.Background(), buf.Bytes(), nil)
	require.NoError(t, err)

	out, err := jpeg.Decode(bytes.NewReader(res.Data))
	require.NoError(t, err)
	r, g, b, _ := out.At(32, 32).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestOversizedGIFPassesThrough(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 32, 32), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, pal, nil))

	p := NewProcessor(WithCeiling(10))
	res, err := p.Process(context.Background(), buf.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), res.Data)
	assert.Equal(t, "gif", res.Format)
	assert.False(t, res.Compressed)
}

func TestUndecodableInput(t *testing.T) {
	p := NewProcessor(WithCeiling(10))
	_, err := p.Process(context.Background(), bytes.Repeat([]byte("not an image"), 10), nil)
	assert.Equal(t, errs.EncodingFailed, errs.KindOf(err))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewProcessor(WithCeiling(10))
	_, err := p.Process(ctx, noisyPNG(t, 32, 32), nil)
	assert.Equal(t, errs.Timeout, errs.KindOf(err))
}
