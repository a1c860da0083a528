package detection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/magickplan/pkg/types"
)

type fakeClient struct {
	analysis *types.FaceAnalysis
	err      error
	prompt   string
}

func (f *fakeClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return "a face", nil
}

func (f *fakeClient) LocateFaces(ctx context.Context, model, prompt, imgB64 string) (*types.FaceAnalysis, error) {
	f.prompt = prompt
	return f.analysis, f.err
}

type fakePreparer struct{ err error }

func (p fakePreparer) PrepareImageForModel(data []byte) (string, error) {
	return "aGk=", p.err
}

func TestVisionDetectorConvertsToPixels(t *testing.T) {
	c := &fakeClient{analysis: &types.FaceAnalysis{Faces: []types.DetectedFace{
		{Confidence: 0.9, Box: types.Box{X: 0.1, Y: 0.2, W: 0.25, H: 0.5}},
		{Confidence: 0.05, Box: types.Box{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}},
		{Confidence: 0.8, Box: types.Box{X: 0.9, Y: 0.9, W: 0.5, H: 0.5}},
		{Confidence: 0.8, Box: types.Box{X: 0.3, Y: 0.3, W: 0, H: 0.1}},
	}}}
	d := NewVisionDetector(c, fakePreparer{}, "llava")

	faces, err := d.DetectFaces(context.Background(), Source{Width: 1000, Height: 400})
	require.NoError(t, err)
	require.Len(t, faces, 2)

	assert.InDelta(t, 100.0, faces[0].X, 1e-9)
	assert.InDelta(t, 80.0, faces[0].Y, 1e-9)
	assert.InDelta(t, 250.0, faces[0].Width, 1e-9)
	assert.InDelta(t, 200.0, faces[0].Height, 1e-9)
	assert.Equal(t, 0.9, faces[0].Confidence)

	// clipped to the image edge
	assert.InDelta(t, 100.0, faces[1].Width, 1e-9)
	assert.InDelta(t, 40.0, faces[1].Height, 1e-9)
	assert.Equal(t, DefaultPrompt, c.prompt)
}

func TestVisionDetectorNoFaces(t *testing.T) {
	d := NewVisionDetector(&fakeClient{analysis: &types.FaceAnalysis{}}, fakePreparer{}, "m")
	faces, err := d.DetectFaces(context.Background(), Source{Width: 10, Height: 10})
	require.NoError(t, err)
	assert.NotNil(t, faces)
	assert.Empty(t, faces)
}

func TestVisionDetectorErrors(t *testing.T) {
	d := NewVisionDetector(&fakeClient{err: errors.New("model offline")}, fakePreparer{}, "m")
	_, err := d.DetectFaces(context.Background(), Source{Width: 10, Height: 10})
	assert.ErrorContains(t, err, "model offline")

	d = NewVisionDetector(&fakeClient{}, fakePreparer{err: errors.New("bad image")}, "m")
	_, err = d.DetectFaces(context.Background(), Source{Width: 10, Height: 10})
	assert.ErrorContains(t, err, "bad image")

	_, err = d.DetectFaces(context.Background(), Source{})
	assert.Error(t, err)
}

func TestVisionDetectorCustomPromptAndDescribe(t *testing.T) {
	c := &fakeClient{analysis: &types.FaceAnalysis{}}
	d := NewVisionDetector(c, fakePreparer{}, "m").WithPrompt("custom")
	_, err := d.DetectFaces(context.Background(), Source{Width: 1, Height: 1})
	require.NoError(t, err)
	assert.Equal(t, "custom", c.prompt)

	answer, err := d.Describe(context.Background(), Source{})
	require.NoError(t, err)
	assert.Equal(t, "a face", answer)
}

func TestNormalizeBoxPixels(t *testing.T) {
	b := normalizeBox(types.Box{X: 100, Y: 50, W: 200, H: 100}, 1000, 500)
	assert.InDelta(t, 0.1, b.X, 1e-9)
	assert.InDelta(t, 0.1, b.Y, 1e-9)
	assert.InDelta(t, 0.2, b.W, 1e-9)
	assert.InDelta(t, 0.2, b.H, 1e-9)
}

func TestUnavailable(t *testing.T) {
	base := errors.New("timeout")
	err := Unavailable(base)

	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.True(t, errors.Is(err, base))
	assert.Same(t, err, Unavailable(err))
}

func TestStatic(t *testing.T) {
	s := Static{Faces: []types.FaceRegion{{X: 1}}}
	faces, err := s.DetectFaces(context.Background(), Source{})
	require.NoError(t, err)
	faces[0].X = 9
	assert.Equal(t, 1.0, s.Faces[0].X)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.DetectFaces(ctx, Source{})
	assert.ErrorIs(t, err, context.Canceled)
}

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.lastTTL = ttl
	return nil
}

func countingDetector(calls *int, faces []types.FaceRegion, err error) FaceDetector {
	return Func(func(ctx context.Context, src Source) ([]types.FaceRegion, error) {
		*calls++
		return faces, err
	})
}

func TestCachedHitsStore(t *testing.T) {
	calls := 0
	store := newMemStore()
	c := NewCached(countingDetector(&calls, []types.FaceRegion{{X: 5, Width: 10, Height: 10}}, nil), store, time.Hour, nil)
	src := Source{Data: []byte("img"), Width: 100, Height: 100}

	first, err := c.DetectFaces(context.Background(), src)
	require.NoError(t, err)
	second, err := c.DetectFaces(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Equal(t, time.Hour, store.lastTTL)
}

func TestCachedRemembersEmptyResults(t *testing.T) {
	calls := 0
	c := NewCached(countingDetector(&calls, nil, nil), newMemStore(), time.Minute, nil)
	src := Source{Data: []byte("landscape"), Width: 10, Height: 10}

	faces, err := c.DetectFaces(context.Background(), src)
	require.NoError(t, err)
	assert.NotNil(t, faces)

	faces, err = c.DetectFaces(context.Background(), src)
	require.NoError(t, err)
	assert.Empty(t, faces)
	assert.Equal(t, 1, calls)
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	calls := 0
	store := newMemStore()
	c := NewCached(countingDetector(&calls, nil, errors.New("down")), store, time.Minute, nil)

	_, err := c.DetectFaces(context.Background(), Source{Data: []byte("x")})
	assert.Error(t, err)
	assert.Empty(t, store.data)
}

func TestCachedSurvivesStoreErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	calls := 0
	store := newMemStore()
	store.getErr = errors.New("redis down")
	store.setErr = errors.New("redis down")

	c := NewCached(countingDetector(&calls, []types.FaceRegion{{X: 1}}, nil), store, time.Minute, logger)
	faces, err := c.DetectFaces(context.Background(), Source{Data: []byte("x")})
	require.NoError(t, err)
	assert.Len(t, faces, 1)
	assert.Equal(t, 2, len(hook.AllEntries()))
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestSourceKey(t *testing.T) {
	a := SourceKey(Source{Data: []byte("a"), Width: 1, Height: 1})
	b := SourceKey(Source{Data: []byte("a"), Width: 2, Height: 1})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, SourceKey(Source{Data: []byte("a"), Width: 1, Height: 1}))
}

func TestCachedSeparatesModelsAndPrompts(t *testing.T) {
	store := newMemStore()
	src := Source{Data: []byte("img"), Width: 10, Height: 10}
	base := &fakeClient{analysis: &types.FaceAnalysis{}}

	detectors := []*VisionDetector{
		NewVisionDetector(base, fakePreparer{}, "llava"),
		NewVisionDetector(base, fakePreparer{}, "llava").WithPrompt("only the largest face"),
		NewVisionDetector(base, fakePreparer{}, "qwen2.5vl"),
	}
	seen := map[string]bool{}
	for _, d := range detectors {
		calls := 0
		counted := &countingVision{VisionDetector: d, calls: &calls}
		c := NewCached(counted, store, time.Minute, nil)

		_, err := c.DetectFaces(context.Background(), src)
		require.NoError(t, err)
		_, err = c.DetectFaces(context.Background(), src)
		require.NoError(t, err)
		assert.Equal(t, 1, calls, d.CacheNamespace())

		seen[d.CacheNamespace()] = true
	}
	assert.Len(t, seen, 3)
	assert.Len(t, store.data, 3)
}

type countingVision struct {
	*VisionDetector
	calls *int
}

func (c *countingVision) DetectFaces(ctx context.Context, src Source) ([]types.FaceRegion, error) {
	*c.calls++
	return c.VisionDetector.DetectFaces(ctx, src)
}
