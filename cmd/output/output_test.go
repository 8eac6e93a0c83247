package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	t.Parallel()

	rendered := Table(
		[]string{"Code", "Common Name", "Count"},
		[][]string{{"blujay", "Blue Jay", "3"}, {"amecro"}},
		2,
	)

	lines := strings.Split(rendered, "\n")
	require.Len(t, lines, 6, "top border, header, separator, two rows, bottom border")
	assert.Contains(t, lines[1], "Common Name")
	assert.Contains(t, lines[3], "Blue Jay")
	assert.Contains(t, lines[4], "amecro")
	assert.True(t, strings.HasPrefix(lines[0], "╭"))
}

func TestTable_NoHeaders(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Table(nil, [][]string{{"x"}}))
}

func TestJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, map[string]int{"total": 2}))
	assert.Equal(t, "{\n  \"total\": 2\n}\n", buf.String())
}
