package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextWeekFromDate(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		yearMin int
		want    int
	}{
		{name: "mid-year date", date: "2019-08-03", yearMin: 2019, want: 31},
		{name: "spills into the following year", date: "2020-01-06", yearMin: 2019, want: 54},
		{name: "zero anchor defaults to the date's year", date: "2019-08-03", yearMin: 0, want: 31},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			week, err := nextWeekFromDate(tt.date, tt.yearMin)
			require.NoError(t, err)
			assert.Equal(t, tt.want, week)
		})
	}
}

func TestNextWeekFromDateRejectsMalformedDate(t *testing.T) {
	_, err := nextWeekFromDate("03/08/2019", 2019)
	assert.Error(t, err)
}
