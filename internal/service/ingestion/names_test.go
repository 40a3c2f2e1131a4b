package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakehouse/internal/domain"
)

func TestCleanColumnName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"John!Doe", "JohnDoe"},
		{"Welcome, User 123!", "Welcome User 123"},
		{"order-id", "order-id"},
		{"snake_case", "snake_case"},
		{"tab\there", "tab\there"},
		{"prix (€)", "prix "},
		{"!!!", ""},
		{"", ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanColumnName(tc.in))
		})
	}
}

func TestDeduplicateNames(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"duplicate", []string{"id", "name", "id"}, []string{"id", "name", "id_1"}},
		{"no collisions", []string{"a", "b", "c"}, []string{"a", "b", "c"}},
		{"empty names", []string{"", "x", ""}, []string{"column_1", "x", "column_2"}},
		{"shared counter", []string{"id", "", "id", ""}, []string{"id", "column_1", "id_2", "column_3"}},
		{"collision after cleaning", []string{"a!", "a?"}, []string{"a", "a_1"}},
		{"synthetic clash", []string{"id", "id_1", "id"}, []string{"id", "id_1", "id_2"}},
		{"later literal clash", []string{"id", "id", "id_1"}, []string{"id", "id_1", "id_1_2"}},
		{"case-only difference", []string{"ID", "id", "Id"}, []string{"ID", "id_1", "Id_2"}},
		{"case clash with synthetic", []string{"a", "A_1", "A"}, []string{"a", "A_1", "A_2"}},
		{"nothing", nil, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeduplicateNames(tc.in))
		})
	}
}

func TestDeduplicateNames_Deterministic(t *testing.T) {
	in := []string{"a", "", "a", "b!", "b", "", "a"}
	first := DeduplicateNames(in)
	second := DeduplicateNames(in)
	assert.Equal(t, first, second)

	s := make(domain.Schema, len(first))
	for i, n := range first {
		s[i] = domain.Column{Name: n, DataType: domain.TypeUtf8, Nullable: true}
	}
	require.NoError(t, s.Validate())
}

func TestCleanSchema(t *testing.T) {
	in := domain.Schema{
		{Name: "id", DataType: domain.TypeInt64, Nullable: true},
		{Name: "na*me", DataType: domain.TypeUtf8, Nullable: true},
		{Name: "id", DataType: domain.TypeFloat64, Nullable: true},
	}
	out := CleanSchema(in)

	assert.Equal(t, []string{"id", "name", "id_1"}, out.Names())
	assert.Equal(t, domain.TypeFloat64, out[2].DataType)
	assert.Equal(t, "na*me", in[1].Name, "input must not be mutated")
}

func TestValidatePartitions(t *testing.T) {
	s := domain.Schema{{Name: "year", DataType: domain.TypeInt64}, {Name: "v", DataType: domain.TypeUtf8}}

	require.NoError(t, ValidatePartitions(s, []string{"year"}))
	require.NoError(t, ValidatePartitions(s, nil))

	err := ValidatePartitions(s, []string{"year", "month"})
	var upc *domain.UnknownPartitionColumnError
	require.ErrorAs(t, err, &upc)
	assert.Equal(t, "month", upc.Column)
	assert.Equal(t, []string{"year", "v"}, upc.Available)
}
