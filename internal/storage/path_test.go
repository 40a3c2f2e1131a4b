package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStem(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"events.csv", "events"},
		{"/data/in/Sales 2024.CSV", "Sales_2024"},
		{"weird$name!.csv", "weirdname"},
		{"a.b.c.csv", "abc"},
		{"my-table_v2.csv", "my-table_v2"},
		{"$$$.csv", "table"},
		{"", "table"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeStem(tt.in))
		})
	}
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "sales2024", SanitizeName("sales.2024"))
	assert.Equal(t, "daily_events", SanitizeName(" daily  events "))
	assert.Equal(t, "table", SanitizeName("///"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "events/events.parquet", ObjectKey("events", "events.parquet"))
	assert.Equal(t, "events/year=2024/month=1/data_0.parquet", PartitionKey("events", "year=2024/month=1/data_0.parquet"))
	assert.Equal(t, "events/", DirPrefix("events"))
	assert.Equal(t, "events/", DirPrefix("/events//"))
	assert.Equal(t, "p/events/x", joinPrefix("/p/", "events/x"))
	assert.Equal(t, "p/events/", joinPrefix("p", "events/"))
	assert.Equal(t, "events/x", joinPrefix("", "events/x"))
}

func TestValidateKey(t *testing.T) {
	for _, ok := range []string{"a", "a/b.parquet", "stem/col=v/f"} {
		assert.NoError(t, validateKey(ok), ok)
	}
	for _, bad := range []string{"", "/abs", "a/../b", "..", "./a", `a\b`} {
		assert.Error(t, validateKey(bad), bad)
	}
	assert.Error(t, validatePrefix(""))
	assert.Error(t, validatePrefix("/"))
	assert.NoError(t, validatePrefix("stem/"))
}

func TestChunks(t *testing.T) {
	assert.Equal(t, [][]byte{{}}, chunks([]byte{}, 4))
	assert.Equal(t, [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}, {9}}, chunks([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, 4))
	assert.Equal(t, [][]byte{{1, 2}}, chunks([]byte{1, 2}, 4))
	assert.Len(t, chunks(make([]byte, 8), 4), 2)
}
