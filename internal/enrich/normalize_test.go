package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/model"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Impresión Láser HP® M428":     "impresion laser hp m428",
		"  MONITOR   LG  24\"  ":       "monitor lg 24",
		"Teclado (USB) ñandú":          "teclado usb nandu",
		"Disco SSD 1TB NVMe M.2":       "disco ssd 1tb nvme m.2",
		"Cable HDMI/DP 4K":             "cable hdmi/dp 4k",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), "input %q", in)
	}
}

func TestSkuFromCode(t *testing.T) {
	assert.Equal(t, "HP-M428", skuFromCode(" hp-m428 "))
	assert.Equal(t, "ABC123", skuFromCode("abc_123!"))
}

func TestModelFromSpecs(t *testing.T) {
	assert.Equal(t, "M428fdw", modelFromSpecs(map[string]string{"Modelo": "M428fdw"}))
	assert.Empty(t, modelFromSpecs(map[string]string{"marca": "HP"}))
}

func TestNormalizeStage_Run(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 1, Code: "HP-M428", Description: "Impresión Láser HP M428"},
		model.Product{ID: 2, Code: "LG-24", Description: "Monitor LG 24", NormalizedName: "monitor lg 24"},
		model.Product{ID: 3, Code: "EMPTY", Description: "   "},
	)

	stage := NewNormalizeStage(st)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Skipped, "already-normalized product is gated out")
	assert.Equal(t, 1, summary.Failed, "blank description cannot normalize")
	assert.Equal(t, [3]string{"impresion laser hp m428", "HP-M428", ""}, st.normalized[1])
}

func TestNormalizeStage_ForceReprocesses(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 2, Code: "LG-24", Description: "Monitor LG 24", NormalizedName: "stale"},
	)

	stage := NewNormalizeStage(st)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10, Force: true})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, "monitor lg 24", st.normalized[2][0])
}

func TestNormalizeStage_DryRunWritesNothing(t *testing.T) {
	st := newFakeStore(
		model.Product{ID: 1, Code: "HP-M428", Description: "Impresora HP"},
	)

	stage := NewNormalizeStage(st)
	summary, err := stage.Run(context.Background(), RunParams{Limit: 10, DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Empty(t, st.normalized)
}
