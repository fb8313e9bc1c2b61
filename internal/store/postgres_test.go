package store

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/match-service/internal/model"
)

// fakeRows replays rows column by column; a nil value scans as NULL.
type fakeRows struct {
	data    [][]any
	i       int
	err     error
	scanErr error
}

func (f *fakeRows) Next() bool {
	if f.i >= len(f.data) {
		return false
	}
	f.i++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	row := f.data[f.i-1]
	for i, d := range dest {
		v := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			v.SetZero()
			continue
		}
		v.Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (f *fakeRows) Err() error { return f.err }

func externalValues(externalID, title, company string, posted *time.Time) []any {
	return []any{
		"1", externalID, "adzuna", title, company, "",
		[]string{"Go"}, []string{},
		"Paris", "remote",
		0.0, 0.0, "",
		posted, 70, "active",
	}
}

func TestCollectPostings_SkipsAndCountsMalformedExternalRows(t *testing.T) {
	posted := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	rows := &fakeRows{data: [][]any{
		externalValues("a", "Go Developer", "Acme", &posted),
		externalValues("b", "", "Acme", &posted),
		externalValues("c", "Go Developer", "  ", &posted),
		externalValues("d", "Go Developer", "Globex", nil),
		externalValues("e", "Backend Engineer", "Initech", &posted),
	}}

	got, skipped, err := collectPostings[externalRow](rows)
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ExternalID)
	assert.Equal(t, "e", got[1].ExternalID)
	assert.Equal(t, model.SourceCachedExternal, got[1].Source)
	assert.Equal(t, model.WorkRemote, got[0].WorkArrangement)
	assert.Equal(t, posted, got[0].PostedDate)
}

func TestCollectPostings_SkipsInternalRowWithoutCompany(t *testing.T) {
	created := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	expires := created.AddDate(0, 1, 0)
	row := func(id, company string) []any {
		return []any{
			id, "Backend Engineer", company, "",
			[]string{"Go"}, []string{},
			"", "",
			0.0, 0.0,
			&created, &expires,
		}
	}
	rows := &fakeRows{data: [][]any{row("j1", "JobMate"), row("j2", "")}}

	got, skipped, err := collectPostings[internalRow](rows)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, got, 1)
	assert.Equal(t, "j1", got[0].ID)
	assert.Equal(t, 100, got[0].TrustScore)
	assert.Equal(t, &expires, got[0].ExpiresAt)
}

func TestCollectPostings_ScanAndIterationErrors(t *testing.T) {
	posted := time.Now()
	scanErr := errors.New("can't scan into dest[0]")
	_, _, err := collectPostings[externalRow](&fakeRows{
		data:    [][]any{externalValues("a", "Go Developer", "Acme", &posted)},
		scanErr: scanErr,
	})
	assert.ErrorIs(t, err, scanErr)

	connErr := errors.New("conn closed")
	_, _, err = collectPostings[externalRow](&fakeRows{err: connErr})
	assert.ErrorIs(t, err, connErr)
}
