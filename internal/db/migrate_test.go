package db

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionsAreSortedSQLFiles(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)

	assert.True(t, sort.StringsAreSorted(versions))
	assert.Equal(t, "0001_ledger.sql", versions[0])
	for _, v := range versions {
		assert.Contains(t, v, ".sql")
	}
}
