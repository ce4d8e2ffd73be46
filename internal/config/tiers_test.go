package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bonusdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
)

func readTierFile(t *testing.T, body string) *viper.Viper {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bonus.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v
}

func TestLoadTierTableParsesEntries(t *testing.T) {
	v := readTierFile(t, `
bonus:
  tiers:
    - tier: 0
      threshold: 0
      bonus: 0
    - tier: 1
      threshold: "2500.50"
      bonus: 25
    - tier: 2
      threshold: 7500
      bonus: "80.25"
`)

	table, err := loadTierTable(v)
	require.NoError(t, err)
	require.Len(t, table, 3)
	assert.Equal(t, "2500.5", table[1].Threshold.String())
	assert.Equal(t, "80.25", table[2].Bonus.String())
	assert.Equal(t, 2, table.ForSales(table[2].Threshold).Level)
}

func TestLoadTierTableRejectsDescendingThresholds(t *testing.T) {
	v := readTierFile(t, `
bonus:
  tiers:
    - tier: 0
      threshold: 0
      bonus: 0
    - tier: 1
      threshold: 9000
      bonus: 50
    - tier: 2
      threshold: 4000
      bonus: 100
`)

	_, err := loadTierTable(v)
	require.ErrorIs(t, err, bonusdomain.ErrInvalidTierTable)
}

func TestLoadTierTableDefaultsWhenSectionMissing(t *testing.T) {
	v := readTierFile(t, "other: true\n")

	table, err := loadTierTable(v)
	require.NoError(t, err)
	assert.Equal(t, bonusdomain.DefaultTierTable(), table)
}

func TestLoadTierTableRejectsBadAmount(t *testing.T) {
	v := readTierFile(t, `
bonus:
  tiers:
    - tier: 0
      threshold: 0
      bonus: 0
    - tier: 1
      threshold: lots
      bonus: 50
`)

	_, err := loadTierTable(v)
	require.Error(t, err)
}
