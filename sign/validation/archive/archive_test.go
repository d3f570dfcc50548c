package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgepadayatti/adesval/sign/ades"
	"github.com/georgepadayatti/adesval/sign/validation"
	"github.com/georgepadayatti/adesval/sign/validation/report"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return a
}

func sampleReports(id, digest string, at time.Time, valid bool) *report.Reports {
	conclusion := ades.Passed()
	if !valid {
		conclusion = ades.Indeterminate(ades.SubIndicationNoTrustedChain)
	}
	return &report.Reports{
		ID:             id,
		DocumentName:   "contract.pdf",
		DocumentDigest: digest,
		ValidationTime: at,
		Policy:         "default (B)",
		Detailed: &report.DetailedReport{
			Signatures: []*report.SignatureOutcome{{
				ID:          "S-1",
				Basic:       conclusion,
				Timestamped: conclusion,
				LongTerm:    conclusion,
				Archive:     conclusion,
			}},
			BasicBuildingBlocks: []*validation.BasicBuildingBlock{},
			Levels: map[string]map[ades.SignatureLevel]*ades.Conclusion{
				"S-1": {ades.LevelB: conclusion},
			},
		},
		Simple: &report.SimpleReport{
			ValidationTime: at,
			Signatures: []*report.SimpleSignature{{
				ID:             "S-1",
				Indication:     conclusion.Indication,
				SubIndication:  conclusion.SubIndication,
				SignatureLevel: ades.LevelB,
				RequiredLevel:  ades.LevelB,
				ValidationTime: at,
			}},
		},
		Faults: []report.Fault{{SignatureID: "S-2", Error: "malformed evidence"}},
	}
}

func TestArchive_SaveLoad(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	r := sampleReports("r-1", "abcd", at, true)
	require.NoError(t, a.Save(ctx, r))

	loaded, err := a.Load(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "contract.pdf", loaded.DocumentName)
	assert.True(t, loaded.ValidationTime.Equal(at))
	assert.True(t, loaded.Simple.IsValid("S-1"))

	c, err := loaded.Detailed.LevelConclusion("S-1", ades.LevelB)
	require.NoError(t, err)
	assert.True(t, c.IsValid())

	want, err := r.Canonical()
	require.NoError(t, err)
	raw, err := a.Raw(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, want, raw)

	got, err := loaded.Canonical()
	require.NoError(t, err)
	assert.Equal(t, want, got, "reloaded report must canonicalize identically")
}

func TestArchive_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, a.Save(ctx, sampleReports("r-1", "abcd", at, true)))
	require.NoError(t, a.Save(ctx, sampleReports("r-1", "abcd", at, false)))

	entries, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].ValidSignatures)
}

func TestArchive_List(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	older := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	newer := older.Add(500 * time.Millisecond)

	require.NoError(t, a.Save(ctx, sampleReports("r-old", "aaaa", older, true)))
	require.NoError(t, a.Save(ctx, sampleReports("r-new", "bbbb", newer, false)))

	entries, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "r-new", entries[0].ID)
	assert.Equal(t, "r-old", entries[1].ID)

	e := entries[1]
	assert.Equal(t, "aaaa", e.DocumentDigest)
	assert.Equal(t, "default (B)", e.Policy)
	assert.Equal(t, 1, e.Signatures)
	assert.Equal(t, 1, e.ValidSignatures)
	assert.Equal(t, 1, e.Faults)
	assert.True(t, e.ValidationTime.Equal(older))
	assert.True(t, e.ArchivedAt.Equal(a.now()))

	byDigest, err := a.ListByDigest(ctx, "bbbb")
	require.NoError(t, err)
	require.Len(t, byDigest, 1)
	assert.Equal(t, "r-new", byDigest[0].ID)
}

func TestArchive_NotFound(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)

	_, err := a.Load(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = a.Raw(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(a.Delete(ctx, "missing"), ErrNotFound))
}

func TestArchive_Delete(t *testing.T) {
	ctx := context.Background()
	a := newTestArchive(t)
	require.NoError(t, a.Save(ctx, sampleReports("r-1", "abcd", time.Now(), true)))

	require.NoError(t, a.Delete(ctx, "r-1"))
	entries, err := a.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArchive_PersistsToFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reports.db")
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	a, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, a.Save(ctx, sampleReports("r-1", "abcd", at, true)))
	require.NoError(t, a.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", loaded.ID)
}
