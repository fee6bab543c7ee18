package enrich

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/resilience"
	"github.com/sells-group/catalog-cli/pkg/anthropic"
)

var testRules = ContentRules{
	TitleMaxLength: 60,
	TitleDenylist:  []string{"nuevo", "oferta", "envio gratis"},
}

func TestSanitizeTitle_RemovesDeniedWords(t *testing.T) {
	got := SanitizeTitle("Nuevo Monitor LG 24 OFERTA", testRules)
	assert.Equal(t, "Monitor LG 24", got)
}

func TestSanitizeTitle_RemovesDeniedPhrases(t *testing.T) {
	got := SanitizeTitle("Monitor LG 24 Envío Gratis", testRules)
	assert.Equal(t, "Monitor LG 24", got)
}

func TestSanitizeTitle_TruncatesOnWordBoundary(t *testing.T) {
	long := "Impresora Multifuncional HP LaserJet Pro M428fdw Monocromatica Duplex"
	got := SanitizeTitle(long, testRules)
	assert.LessOrEqual(t, len(got), 60)
	assert.NotContains(t, got, "Monocromatica", "cut must land between words")
	assert.Equal(t, "Impresora Multifuncional HP LaserJet Pro M428fdw", got)
}

func TestSanitizeTitle_HardCutsSingleLongWord(t *testing.T) {
	got := SanitizeTitle("Supercalifragilisticoespialidoso", ContentRules{TitleMaxLength: 10})
	assert.Len(t, got, 10)
}

// contentGen is a scripted ContentGenerator.
type contentGen struct {
	title    string
	desc     string
	titleErr error
	calls    int
}

func (g *contentGen) GenerateTitle(context.Context, anthropic.ProductInput) (string, error) {
	g.calls++
	return g.title, g.titleErr
}

func (g *contentGen) GenerateDescription(context.Context, anthropic.ProductInput) (string, error) {
	return g.desc, nil
}

func TestContentStage_Run(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 1, Code: "HP-M428", Description: "Impresora HP", IsEligible: true},
	)
	gen := &contentGen{title: "Nuevo Impresora HP LaserJet M428", desc: "Una impresora confiable."}

	stage := NewContentStage(st, gen, testRules)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, "Impresora HP LaserJet M428", st.contents[1][0], "denied word stripped before persisting")
	assert.Equal(t, "Una impresora confiable.", st.contents[1][1])
}

func TestContentStage_GateSkipsExisting(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 1, Code: "HP-M428", SEOTitle: "done", SEODescription: "done"},
	)
	gen := &contentGen{title: "anything"}

	stage := NewContentStage(st, gen, testRules)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, gen.calls, "gated items must not reach the generator")
}

func TestContentStage_FallsBackToProductFields(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 1, Code: "HP-M428", Description: "Impresora HP", NormalizedName: "impresora hp laserjet m428"},
	)
	// The model returns only denied words, which sanitize to nothing.
	gen := &contentGen{title: "NUEVO OFERTA", desc: ""}

	stage := NewContentStage(st, gen, testRules)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, "impresora hp laserjet m428", st.contents[1][0])
	assert.Equal(t, "Impresora HP", st.contents[1][1], "empty description falls back to the original")
}

func TestContentStage_GenerationFailureIsolated(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 1, Code: "FAIL-1"},
		model.Product{ID: 2, Code: "OK-2", Description: "Teclado USB"},
	)
	gen := &contentGen{title: "Teclado USB", desc: "d", titleErr: resilience.NewRecoverable(eris.New("overloaded"), 529)}

	stage := NewContentStage(st, gen, testRules)

	// First run: both items fail generation. The one with a description gets
	// fallback content persisted anyway; the bare one has nothing to fall
	// back to.
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	_, persisted := st.contents[1]
	assert.False(t, persisted)
	assert.Equal(t, "Teclado USB", st.contents[2][0], "fallback keeps the product usable")
	assert.Equal(t, "Teclado USB", st.contents[2][1])

	gen.titleErr = nil
	summary, err = stage.Run(context.Background(), RunParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
}
