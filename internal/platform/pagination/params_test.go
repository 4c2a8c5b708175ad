package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderOptions = Options{
	AllowedSortFields: []string{"created_at", "updated_at", "total_price"},
	DefaultSort:       "created_at",
}

func TestParseDefaults(t *testing.T) {
	params, err := Parse(nil, orderOptions)
	require.NoError(t, err)
	assert.Equal(t, Params{Page: 1, Limit: DefaultLimit, Sort: "created_at", Desc: true}, params)
	assert.Equal(t, 0, params.Offset())
}

func TestParseValues(t *testing.T) {
	values := url.Values{"page": {"3"}, "limit": {"25"}, "sort": {"Total_Price"}, "order": {"ASC"}}
	params, err := Parse(values, orderOptions)
	require.NoError(t, err)
	assert.Equal(t, Params{Page: 3, Limit: 25, Sort: "total_price", Desc: false}, params)
	assert.Equal(t, 50, params.Offset())
}

func TestParseClampsLimit(t *testing.T) {
	params, err := Parse(url.Values{"limit": {"500"}}, orderOptions)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxLimit, params.Limit)

	params, err = Parse(nil, Options{DefaultLimit: 50, MaxLimit: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, params.Limit)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		want   error
	}{
		{name: "zero page", values: url.Values{"page": {"0"}}, want: ErrInvalidPage},
		{name: "non numeric page", values: url.Values{"page": {"two"}}, want: ErrInvalidPage},
		{name: "page above cap", values: url.Values{"page": {"100001"}}, want: ErrInvalidPage},
		{name: "page beyond int range", values: url.Values{"page": {"99999999999999999999"}}, want: ErrInvalidPage},
		{name: "negative limit", values: url.Values{"limit": {"-1"}}, want: ErrInvalidLimit},
		{name: "unknown sort", values: url.Values{"sort": {"name"}}, want: ErrInvalidSort},
		{name: "unknown order", values: url.Values{"order": {"sideways"}}, want: ErrInvalidOrder},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.values, orderOptions)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
