package convert

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/attrmigrate/catalog"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/runlog"
)

func newTestEngine(reg *fakeRegistry, store *fakeStore) *Engine {
	return NewEngine(reg, store, Options{Logger: zap.NewNop().Sugar()})
}

func TestRunPass_SingleEntryScenario(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"Red"}}))

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Color"})
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, runlog.SuccessMessage, summary.Message())
	assert.Equal(t, 1, summary.TaxonomiesCreated)
	assert.Equal(t, 1, summary.TermsCreated)
	assert.Equal(t, 1, summary.EntriesConverted)

	taxID, ok := reg.taxonomies["color"]
	require.True(t, ok, "taxonomy pa_color exists")
	assert.Equal(t, []string{"Red"}, reg.termNames("pa_color"))
	redID := reg.termID("pa_color", "Red")

	got := store.entry(1)
	want := map[string]catalog.Attribute{
		"pa_color": {
			Kind:       catalog.KindGlobal,
			Name:       "pa_color",
			Options:    []string{"Red"},
			TaxonomyID: taxID,
			TermIDs:    []int64{redID},
			Position:   0,
			Visible:    true,
			Variation:  false,
		},
	}
	if diff := cmp.Diff(want, got.Attributes); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int64{redID}, store.terms[1]["pa_color"])
	assert.Equal(t, []string{"product"}, reg.objectTypes["pa_color"])
}

func TestRunPass_Conservation(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"Red", "Blue", "Red"}}))

	_, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Color"})
	require.NoError(t, err)

	got := store.entry(1)
	_, hasLocal := got.Attribute("color")
	assert.False(t, hasLocal, "local key removed")

	global, ok := got.Attribute("pa_color")
	require.True(t, ok)
	assert.Equal(t, []string{"Red", "Blue"}, global.Options)
	assert.Equal(t, []int64{reg.termID("pa_color", "Red"), reg.termID("pa_color", "Blue")}, global.TermIDs)
}

func TestRunPass_Idempotent(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(
		localEntry(1, map[string][]string{"Color": {"Red", "Blue"}, "Size": {"M"}}),
		localEntry(2, map[string][]string{"Color": {"Blue"}}),
	)
	engine := newTestEngine(reg, store)
	ctx := context.Background()

	_, err := engine.RunPass(ctx, []string{"Color", "Size"})
	require.NoError(t, err)
	after1 := map[int64]*catalog.Entry{1: store.entry(1), 2: store.entry(2)}
	saves := store.saves

	second, err := engine.RunPass(ctx, []string{"Color", "Size"})
	require.NoError(t, err)
	assert.Zero(t, second.TermsCreated)
	assert.Zero(t, second.TaxonomiesCreated)
	assert.Equal(t, 2, second.TaxonomiesReused)
	assert.Zero(t, second.EntriesConverted)
	assert.Equal(t, saves, store.saves, "no further saves")

	after2 := map[int64]*catalog.Entry{1: store.entry(1), 2: store.entry(2)}
	if diff := cmp.Diff(after1, after2, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("second pass changed entries (-first +second):\n%s", diff)
	}
}

func TestRunPass_NoDuplicateTerms(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(
		localEntry(1, map[string][]string{"Color": {"Red", "Blue"}}),
		localEntry(2, map[string][]string{"Color": {"Blue", "Red", "Green"}}),
		localEntry(3, map[string][]string{"color": {"Red"}}),
	)
	engine := newTestEngine(reg, store)

	for i := 0; i < 3; i++ {
		_, err := engine.RunPass(context.Background(), []string{"Color", "COLOR"})
		require.NoError(t, err)
	}
	// New entry sharing values arrives later
	store.entries[4] = localEntry(4, map[string][]string{"Color": {"Green", "Red"}})
	summary, err := engine.RunPass(context.Background(), []string{"Color"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TermsReused)
	assert.Zero(t, summary.TermsCreated)

	assert.ElementsMatch(t, []string{"Red", "Blue", "Green"}, reg.termNames("pa_color"))
	assert.Len(t, reg.taxonomies, 1)
}

func TestRunPass_SkipIfAbsent(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"Red"}}))

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Size"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.EntriesScanned)
	assert.Zero(t, summary.EntriesConverted)

	got := store.entry(1)
	_, hasSize := got.Attribute("size")
	_, hasGlobal := got.Attribute("pa_size")
	assert.False(t, hasSize)
	assert.False(t, hasGlobal)
	assert.Equal(t, []string{"color"}, got.Keys())
	assert.Zero(t, store.saves)
}

func TestRunPass_SkipIfAlreadyGlobal(t *testing.T) {
	reg := newFakeRegistry()
	existing := &catalog.Entry{ID: 1}
	// Taxonomy-backed attribute sitting under the local key
	existing.SetAttribute("color", catalog.NewGlobal("color", 99, []int64{5}, []string{"Red"}))
	store := newFakeStore(existing)
	before := store.entry(1)

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Color"})
	require.NoError(t, err)
	assert.Zero(t, summary.EntriesConverted)
	assert.Zero(t, store.saves)
	assert.Empty(t, reg.termNames("pa_color"))

	if diff := cmp.Diff(before, store.entry(1)); diff != "" {
		t.Errorf("entry modified (-before +after):\n%s", diff)
	}
}

func TestRunPass_PartialFailureContainment(t *testing.T) {
	reg := newFakeRegistry()
	reg.failTerm["Blue"] = true
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"Red", "Blue", "Green"}}))

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Color"})
	require.NoError(t, err)
	assert.True(t, summary.Success, "per-item errors do not fail the pass")
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 2, summary.TermsCreated)
	assert.Equal(t, 1, store.saves, "entry still saved")

	global, ok := store.entry(1).Attribute("pa_color")
	require.True(t, ok)
	assert.Equal(t, []string{"Red", "Green"}, global.Options)
	assert.Len(t, global.TermIDs, 2)
}

func TestRunPass_EmptyValueIsTermError(t *testing.T) {
	reg := newFakeRegistry()
	reg.failTerm[""] = true
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"", "Red"}}))

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Color"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)

	global, ok := store.entry(1).Attribute("pa_color")
	require.True(t, ok)
	assert.Equal(t, []string{"Red"}, global.Options)
}

func TestRunPass_TaxonomyFailureExcludesAttribute(t *testing.T) {
	reg := newFakeRegistry()
	reg.failTaxonomy["size"] = true
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"Red"}, "Size": {"M"}}))

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Size", "Color"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.AttributesConverted)

	got := store.entry(1)
	assert.Equal(t, []string{"pa_color", "size"}, got.Keys(), "size left local")
}

func TestRunPass_SaveFailureContinues(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(
		localEntry(1, map[string][]string{"Color": {"Red"}}),
		localEntry(2, map[string][]string{"Color": {"Blue"}}),
	)
	store.failSave[1] = true

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Color"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.EntriesConverted)

	assert.Equal(t, []string{"color"}, store.entry(1).Keys(), "unsaved entry keeps its local attribute")
	assert.Equal(t, []string{"pa_color"}, store.entry(2).Keys())
	// Term associations are not rolled back
	assert.NotEmpty(t, store.terms[1]["pa_color"])

	// The next pass converts it once storage recovers
	store.failSave[1] = false
	_, err = newTestEngine(reg, store).RunPass(context.Background(), []string{"Color"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pa_color"}, store.entry(1).Keys())
}

func TestRunPass_SeveralAttributesOnOneEntry(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"Red"}, "Size": {"S", "M"}, "Brand": {"Acme"}}))

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Color", "Size"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.EntriesConverted)
	assert.Equal(t, 2, summary.AttributesConverted)
	assert.Equal(t, 2, store.saves, "saved once per attribute")
	assert.Equal(t, []string{"brand", "pa_color", "pa_size"}, store.entry(1).Keys())
}

func TestRunPass_EmptyConfigurationIsNoOp(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"Red"}}))

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{" ", ""})
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, runlog.SuccessMessage, summary.Message())
	assert.Zero(t, summary.EntriesScanned)
	assert.Empty(t, reg.taxonomies)
}

func TestRunPass_InvalidatesOncePerCreation(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"Red"}}))
	engine := newTestEngine(reg, store)

	_, err := engine.RunPass(context.Background(), []string{"Color", "Size"})
	require.NoError(t, err)
	assert.Equal(t, 2, reg.invalidations)

	_, err = engine.RunPass(context.Background(), []string{"Color", "Size"})
	require.NoError(t, err)
	assert.Equal(t, 2, reg.invalidations, "reuse does not invalidate")
}

func TestRunPass_RefusesConcurrentPass(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"Red"}}))
	store.entered = make(chan struct{})
	store.release = make(chan struct{})
	engine := newTestEngine(reg, store)

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunPass(context.Background(), []string{"Color"})
		done <- err
	}()
	<-store.entered

	_, err := engine.RunPass(context.Background(), []string{"Color"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPassInProgress))

	close(store.release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"pa_color"}, store.entry(1).Keys())
}

func TestRunPass_IgnoresCancellation(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Color": {"Red"}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newTestEngine(reg, store).RunPass(ctx, []string{"Color"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.EntriesConverted)
}

func TestNormalizeNames(t *testing.T) {
	got := NormalizeNames([]string{" Color ", "size", "", "COLOR", "Size", "Material"})
	assert.Equal(t, []string{"Color", "size", "Material"}, got)
}

func TestRunPass_MultiWordName(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Shoe Size": {"42", "43"}}))

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Shoe Size"})
	require.NoError(t, err)
	assert.Zero(t, summary.Errors)
	assert.Equal(t, 1, summary.AttributesConverted)

	assert.Equal(t, "Shoe Size", reg.labels["shoe-size"])
	assert.Equal(t, []string{"42", "43"}, reg.termNames("pa_shoe-size"))

	got := store.entry(1)
	assert.Equal(t, []string{"pa_shoe-size"}, got.Keys(), "local key with a space is replaced by the dashed global key")
	global, ok := got.Attribute("pa_shoe-size")
	require.True(t, ok)
	assert.Equal(t, []string{"42", "43"}, global.Options)
}

func TestRunPass_SlugCollisionKeepsFirstName(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Shoe Size": {"42"}, "shoe-size": {"43"}}))

	summary, err := newTestEngine(reg, store).RunPass(context.Background(), []string{"Shoe Size", "shoe-size"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors, "the colliding name is reported")
	assert.Equal(t, 1, summary.AttributesConverted)
	assert.Equal(t, 1, summary.TaxonomiesCreated)
	assert.Zero(t, summary.TaxonomiesReused)

	got := store.entry(1)
	assert.Equal(t, []string{"pa_shoe-size", "shoe-size"}, got.Keys())
	global, _ := got.Attribute("pa_shoe-size")
	assert.Equal(t, []string{"42"}, global.Options)
	local, _ := got.Attribute("shoe-size")
	assert.Equal(t, catalog.KindLocal, local.Kind)
	assert.Equal(t, []string{"43"}, local.Options, "excluded attribute keeps its values")
	assert.Equal(t, []int64{reg.termID("pa_shoe-size", "42")}, store.terms[1]["pa_shoe-size"])
}

func TestRunPass_MergesIntoExistingGlobal(t *testing.T) {
	reg := newFakeRegistry()
	store := newFakeStore(localEntry(1, map[string][]string{"Shoe Size": {"42"}, "shoe-size": {"43", "42"}}))
	engine := newTestEngine(reg, store)

	_, err := engine.RunPass(context.Background(), []string{"Shoe Size"})
	require.NoError(t, err)

	// A later configuration names the other spelling
	summary, err := engine.RunPass(context.Background(), []string{"shoe-size"})
	require.NoError(t, err)
	assert.Zero(t, summary.Errors)
	assert.Equal(t, 1, summary.AttributesConverted)

	got := store.entry(1)
	assert.Equal(t, []string{"pa_shoe-size"}, got.Keys())
	global, _ := got.Attribute("pa_shoe-size")
	assert.Equal(t, []string{"42", "43"}, global.Options)
	want := []int64{reg.termID("pa_shoe-size", "42"), reg.termID("pa_shoe-size", "43")}
	assert.Equal(t, want, global.TermIDs)
	assert.Equal(t, want, store.terms[1]["pa_shoe-size"])
}
