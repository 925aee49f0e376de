package strata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  Class
	}{
		{"plain text", "hello world", ClassOpaque},
		{"empty", "", ClassOpaque},
		{"whitespace only", "   ", ClassOpaque},
		{"integer", "42", ClassNumeric},
		{"float", "3.14", ClassNumeric},
		{"negative", "-17", ClassNumeric},
		{"scientific", "1e3", ClassNumeric},
		{"padded number", "  42  ", ClassNumeric},
		{"iso date", "2024-01-15", ClassDate},
		{"iso datetime", "2024-01-15T10:30:00", ClassDate},
		{"rfc3339", "2024-01-15T10:30:00Z", ClassDate},
		{"spaced datetime", "2024-01-15 10:30:00", ClassDate},
		{"wiki date", "15 Jan 2024", ClassDate},
		{"wiki datetime", "15 Jan 2024 - 10:30", ClassDate},
		{"compact date is both", "20240115", ClassNumericAndDate},
		{"almost a date", "2024-13-45", ClassOpaque},
		{"version string", "1.2.3", ClassOpaque},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.value)
			assert.Equal(t, tt.want, got.Class, "Classify(%q)", tt.value)
		})
	}
}

func TestClassifyProjections(t *testing.T) {
	t.Run("numeric value", func(t *testing.T) {
		c := Classify("3.5")
		assert.Equal(t, 3.5, c.Num)
		assert.True(t, c.Class.hasNum())
		assert.False(t, c.Class.hasTime())
	})

	t.Run("date value", func(t *testing.T) {
		c := Classify("2024-01-15")
		assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), c.Time)
		assert.False(t, c.Class.hasNum())
		assert.True(t, c.Class.hasTime())
	})

	t.Run("numeric-and-date populates both", func(t *testing.T) {
		c := Classify("20240115")
		assert.Equal(t, float64(20240115), c.Num)
		assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), c.Time)
		assert.True(t, c.Class.hasNum())
		assert.True(t, c.Class.hasTime())
	})
}

// The numeric tag wins on the string row for values that parse both ways.
func TestClassifyDuckTag(t *testing.T) {
	assert.Equal(t, int16(duckString), ClassOpaque.duckTag())
	assert.Equal(t, int16(duckNumeric), ClassNumeric.duckTag())
	assert.Equal(t, int16(duckDate), ClassDate.duckTag())
	assert.Equal(t, int16(duckNumeric), ClassNumericAndDate.duckTag())
}
