package enrich

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/resilience"
	"github.com/sells-group/catalog-cli/pkg/gimages"
)

// fakeSearch is a scripted gimages.Client.
type fakeSearch struct {
	results []gimages.Result
	err     error
}

func (f *fakeSearch) SearchImages(context.Context, string, int) ([]gimages.Result, error) {
	return f.results, f.err
}

// fakeProc records processing calls and can fail specific URLs.
type fakeProc struct {
	failURLs  map[string]bool
	bgRemoved []bool
	uploaded  []string
}

func (f *fakeProc) ProcessImage(_ context.Context, sourceURL string, removeBackground bool) ([]byte, error) {
	if f.failURLs[sourceURL] {
		return nil, eris.Errorf("unreadable source %s", sourceURL)
	}
	f.bgRemoved = append(f.bgRemoved, removeBackground)
	return []byte("img"), nil
}

func (f *fakeProc) Upload(_ context.Context, name string, _ []byte) (string, error) {
	f.uploaded = append(f.uploaded, name)
	return "https://img.example.com/" + name, nil
}

func results(urls ...string) []gimages.Result {
	out := make([]gimages.Result, len(urls))
	for i, u := range urls {
		out[i] = gimages.Result{URL: u}
	}
	return out
}

func TestImageStage_StoresRankedImages(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 7, Code: "HP-M428", NormalizedName: "impresora hp m428"},
	)
	search := &fakeSearch{results: results("https://a/1.jpg", "https://a/2.jpg", "https://a/3.jpg")}
	proc := &fakeProc{}

	stage := NewImageStage(st, search, proc, 5)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	require.Len(t, st.images[7], 3)
	assert.Equal(t, 0, st.images[7][0].Order)
	assert.Equal(t, "https://img.example.com/products/7-0.jpg", st.images[7][0].URL)
	assert.Equal(t, []bool{true, false, false}, proc.bgRemoved,
		"background removal applies to the cover image only")
}

func TestImageStage_CoverFailureShiftsRemoval(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 7, Code: "HP-M428", NormalizedName: "impresora"},
	)
	search := &fakeSearch{results: results("https://a/dead.jpg", "https://a/2.jpg")}
	proc := &fakeProc{failURLs: map[string]bool{"https://a/dead.jpg": true}}

	stage := NewImageStage(st, search, proc, 5)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	require.Len(t, st.images[7], 1)
	assert.Equal(t, 0, st.images[7][0].Order, "the first surviving image becomes the cover")
}

func TestImageStage_ZeroSuccessMarksListingError(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 7, Code: "HP-M428", NormalizedName: "impresora"},
	)
	search := &fakeSearch{results: results("https://a/dead.jpg")}
	proc := &fakeProc{failURLs: map[string]bool{"https://a/dead.jpg": true}}

	stage := NewImageStage(st, search, proc, 5)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, model.ListingError, st.statuses[7])
	assert.Empty(t, st.images[7])
}

func TestImageStage_NoSearchResultsMarksListingError(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 7, Code: "HP-M428", NormalizedName: "impresora"},
	)
	search := &fakeSearch{}
	proc := &fakeProc{}

	stage := NewImageStage(st, search, proc, 5)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, model.ListingError, st.statuses[7])
}

func TestImageStage_RecoverableSearchErrorMarksListingError(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 7, Code: "HP-M428", NormalizedName: "impresora"},
	)
	search := &fakeSearch{err: resilience.NewRecoverable(eris.New("quota exceeded"), 429)}
	proc := &fakeProc{}

	stage := NewImageStage(st, search, proc, 5)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, model.ListingError, st.statuses[7])
	assert.Empty(t, proc.uploaded)
}

func TestImageStage_DryRunWritesNothing(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 7, Code: "HP-M428", NormalizedName: "impresora"},
	)
	search := &fakeSearch{results: results("https://a/1.jpg", "https://a/2.jpg")}
	proc := &fakeProc{}

	stage := NewImageStage(st, search, proc, 5)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10, DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Empty(t, proc.uploaded, "dry run must stop after the search")
	assert.Empty(t, st.images[7])
}

func TestImageStage_DryRunNoResultsWritesNothing(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 7, Code: "HP-M428", NormalizedName: "impresora"},
	)
	search := &fakeSearch{}
	proc := &fakeProc{}

	stage := NewImageStage(st, search, proc, 5)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10, DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.NotContains(t, st.statuses, int64(7), "dry run must not touch the listing status")
	assert.Empty(t, proc.uploaded)
}

func TestImageStage_GateSkipsProductsWithImages(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 7, Code: "HP-M428", ImageCount: 3},
	)
	search := &fakeSearch{err: eris.New("must not be called")}

	stage := NewImageStage(st, search, &fakeProc{}, 5)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
}
