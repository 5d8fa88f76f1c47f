package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/infra/storage/memory"
)

func sampleEntries(t *testing.T) []domain.AuditEntry {
	t.Helper()
	l, _ := newTestLogger(t, Config{}, nil)
	ctx := context.Background()

	_, err := l.Log(ctx, Event{
		Action:   "validate",
		Category: domain.AuditValidation,
		Details: map[string]any{
			"parameter": "degreesOfFreedom",
			"note":      "comma, \"quote\"\nnewline <tag> & more",
			"matrix":    [][]float64{{1, 0.5}, {0.5, 1}},
		},
		Result:   domain.ResultFailed,
		Duration: 2 * time.Millisecond,
	}, domain.LevelWarning)
	require.NoError(t, err)

	_, err = l.Log(ctx, Event{
		Action:   "calculation_submitted",
		Category: domain.AuditCalculation,
		Details:  map[string]any{"ünïcode": "naïve café"},
		Result:   domain.ResultSuccess,
	}, domain.LevelInfo)
	require.NoError(t, err)

	return l.Entries()
}

func TestExportImport_RoundTrip(t *testing.T) {
	entries := sampleEntries(t)

	for _, f := range []Format{FormatJSON, FormatCSV, FormatXML} {
		t.Run(string(f), func(t *testing.T) {
			data, err := Encode(f, entries)
			require.NoError(t, err)

			back, err := Import(f, data)
			require.NoError(t, err)
			require.Len(t, back, len(entries))

			for i := range entries {
				assert.Equal(t, entries[i].ID, back[i].ID)
				assert.True(t, entries[i].Timestamp.Equal(back[i].Timestamp))
				assert.Equal(t, entries[i].Details, back[i].Details)
				assert.Equal(t, entries[i].DurationMs, back[i].DurationMs)
				assert.Equal(t, entries[i].Signature, back[i].Signature)
			}
			assert.True(t, VerifyEntries(back, &Anchor{}).Valid)
		})
	}
}

func TestExportImport_LargeIntegersStillVerify(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage(0)
	l, _ := newTestLogger(t, Config{}, store)

	e, err := l.Log(ctx, Event{
		Action:   "calculation_submitted",
		Category: domain.AuditCalculation,
		Details:  map[string]any{"seed": int64(9007199254740993)},
		Result:   domain.ResultSuccess,
	}, domain.LevelInfo)
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), e.Details["seed"])

	for _, f := range []Format{FormatJSON, FormatCSV, FormatXML} {
		data, err := l.Export(ctx, f, Criteria{})
		require.NoError(t, err)
		back, err := Import(f, data)
		require.NoError(t, err)
		require.Len(t, back, 1)
		assert.Equal(t, int64(9007199254740993), back[0].Details["seed"], "format %s", f)
		assert.True(t, VerifyEntries(back, &Anchor{}).Valid, "format %s", f)
	}

	require.NoError(t, l.Flush(ctx))
	reloaded := NewLogger(Config{}, store, nil)
	require.NoError(t, reloaded.Load(ctx))
	res, err := reloaded.VerifyChainIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, res.Valid, "%+v", res)
}

func TestEncodeCSV_HeaderIsUnionOfKeys(t *testing.T) {
	entries := sampleEntries(t)

	data, err := Encode(FormatCSV, entries)
	require.NoError(t, err)
	header := strings.SplitN(string(data), "\n", 2)[0]
	assert.Contains(t, header, "durationMs")

	data, err = Encode(FormatCSV, entries[1:])
	require.NoError(t, err)
	header = strings.SplitN(string(data), "\n", 2)[0]
	assert.NotContains(t, header, "durationMs")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("yaml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestQuery_Criteria(t *testing.T) {
	l, c := newTestLogger(t, Config{}, nil)
	ctx := context.Background()

	log := func(action string, cat domain.AuditCategory, result string, details map[string]any) {
		_, err := l.Log(ctx, Event{Action: action, Category: cat, Result: result, Details: details}, domain.LevelInfo)
		require.NoError(t, err)
		c.Advance(time.Minute)
	}
	start := c.Now()
	log("validate", domain.AuditValidation, domain.ResultFailed, map[string]any{"parameter": "alpha"})
	log("validate", domain.AuditValidation, domain.ResultSuccess, map[string]any{"parameter": "power"})
	log("error_handled", domain.AuditError, domain.ResultRecovered, nil)
	log("error_handled", domain.AuditSecurity, domain.ResultFailed, nil)

	got, err := l.Query(ctx, Criteria{Categories: []domain.AuditCategory{domain.AuditValidation}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, _ = l.Query(ctx, Criteria{Result: domain.ResultFailed})
	assert.Len(t, got, 2)

	got, _ = l.Query(ctx, Criteria{Text: "POWER"})
	require.Len(t, got, 1)
	assert.Equal(t, domain.ResultSuccess, got[0].Result)

	got, _ = l.Query(ctx, Criteria{Since: start.Add(90 * time.Second)})
	assert.Len(t, got, 2)

	got, _ = l.Query(ctx, Criteria{Actions: []string{"error_handled"}, Offset: 1, Limit: 5})
	require.Len(t, got, 1)
	assert.Equal(t, domain.AuditSecurity, got[0].Category)

	data, err := l.Export(ctx, FormatJSON, Criteria{Limit: 1})
	require.NoError(t, err)
	back, err := Import(FormatJSON, data)
	require.NoError(t, err)
	assert.Len(t, back, 1)
}
