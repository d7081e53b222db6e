package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadCIK(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"12345", "0000012345"},
		{"0000012345", "0000012345"},
		{" 320193 ", "0000320193"},
		{"1", "0000000001"},
		{"12345678901", "12345678901"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, PadCIK(tt.in, CIKWidth))
		})
	}
}

func TestFiling_Company(t *testing.T) {
	f := Filing{CIK: "0000012345", CompanyName: "ACME CORP", FormType: "10-K"}
	assert.Equal(t, Company{CIK: "0000012345", Name: "ACME CORP"}, f.Company())
}

func TestFiling_Key(t *testing.T) {
	f := Filing{
		CIK:       "0000012345",
		FormType:  "10-K",
		DateFiled: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Filename:  "edgar/data/12345/acme.txt",
	}
	assert.Equal(t, "0000012345|10-K|2024-01-15|edgar/data/12345/acme.txt", f.Key())
}

func TestDay(t *testing.T) {
	in := time.Date(2024, 9, 18, 23, 59, 1, 5, time.FixedZone("EST", -5*3600))
	assert.Equal(t, time.Date(2024, 9, 18, 0, 0, 0, 0, time.UTC), Day(in))
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay(" 2024-09-18\n")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 9, 18, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDay("20240918")
	assert.Error(t, err)
}
