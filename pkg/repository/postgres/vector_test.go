package postgres

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestFormatVector(t *testing.T) {
	gt.Value(t, formatVector(nil)).Equal("[]")
	gt.Value(t, formatVector([]float32{0.5, -1, 0.25})).Equal("[0.500000,-1.000000,0.250000]")
}

func TestParseVector(t *testing.T) {
	t.Run("null column", func(t *testing.T) {
		vec, err := parseVector(nil)
		gt.NoError(t, err).Required()
		gt.Value(t, vec).Nil()
	})

	t.Run("text form", func(t *testing.T) {
		text := "[0.5,-1,0.25]"
		vec, err := parseVector(&text)
		gt.NoError(t, err).Required()
		gt.Array(t, vec).Length(3)
		gt.Value(t, vec[1]).Equal(float32(-1))
	})

	t.Run("invalid component", func(t *testing.T) {
		text := "[0.5,abc]"
		_, err := parseVector(&text)
		gt.Error(t, err)
	})
}

func TestSchemaStatementsUseDimension(t *testing.T) {
	found := 0
	for _, stmt := range SchemaStatements(768) {
		if strings.Contains(stmt, "vector(768)") {
			found++
		}
	}
	gt.Value(t, found).Equal(2)
}
