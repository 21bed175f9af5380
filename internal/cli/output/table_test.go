package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableData(t *testing.T) {
	table := NewTableData("Name", "Status", "Chunks")

	assert.Equal(t, []string{"Name", "Status", "Chunks"}, table.Headers())
	assert.Empty(t, table.Rows())

	table.AddRow("node1", "active", "12")
	table.AddRow("node2", "maintenance", "3")

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"node1", "active", "12"}, rows[0])
	assert.Equal(t, []string{"node2", "maintenance", "3"}, rows[1])
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("Name", "Status")
	table.AddRow("node1", "active")
	table.AddRow("node2", "inactive")

	var buf bytes.Buffer
	err := PrintTable(&buf, table)
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "node1")
	assert.Contains(t, output, "active")
	assert.Contains(t, output, "node2")
	assert.Contains(t, output, "inactive")
}
