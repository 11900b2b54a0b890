package exporter

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")

	w := NewCSVWriter()
	err := w.WriteCSV(path, WriteOptions{
		Headers: []string{"a", "b"},
		Records: [][]string{{"1", "2"}, {"3", "4"}},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n3,4\n", string(data))
}

func TestStreamWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.csv")

	w := NewCSVWriter()
	stream, err := w.CreateStreamWriter(path, []string{"user_id", "late"}, ';')
	require.NoError(t, err)
	require.NoError(t, stream.WriteRecord([]string{"u1", "true"}))
	require.NoError(t, stream.WriteRecord([]string{"u2", "false"}))
	require.NoError(t, stream.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}), "stream output should carry a BOM")
	assert.Equal(t, "user_id;late\nu1;true\nu2;false\n", string(data[3:]))
}
