package config

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	bonusdomain "github.com/mygitzaki/zylike-creator-platform-sub001/internal/bonus/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// TierEntry is the file representation of one bonus tier. Amounts are read
// as strings so decimal precision survives the yaml decoder.
type TierEntry struct {
	Tier      int    `mapstructure:"tier"`
	Threshold string `mapstructure:"threshold"`
	Bonus     string `mapstructure:"bonus"`
}

// BonusTierConfigHolder serves the bonus tier table and swaps it in place
// when bonus.yml changes on disk.
type BonusTierConfigHolder struct {
	current atomic.Value // holds bonusdomain.TierTable
}

func NewBonusTierConfigHolder() (*BonusTierConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("bonus")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/creatorpay/config")
	v.AddConfigPath("/etc/creatorpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CREATORPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &BonusTierConfigHolder{}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(bonusdomain.DefaultTierTable())
		return holder, nil
	}

	table, err := loadTierTable(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(table)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := loadTierTable(v)
		if err != nil {
			log.Printf("[bonus-config] invalid tier table ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[bonus-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Tiers returns the table currently in effect.
func (h *BonusTierConfigHolder) Tiers() bonusdomain.TierTable {
	return h.current.Load().(bonusdomain.TierTable)
}

func loadTierTable(v *viper.Viper) (bonusdomain.TierTable, error) {
	var entries []TierEntry
	if err := v.UnmarshalKey("bonus.tiers", &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return bonusdomain.DefaultTierTable(), nil
	}

	table := make(bonusdomain.TierTable, 0, len(entries))
	for _, entry := range entries {
		threshold, err := decimal.NewFromString(strings.TrimSpace(entry.Threshold))
		if err != nil {
			return nil, fmt.Errorf("bonus.tiers[%d].threshold: %w", entry.Tier, err)
		}
		bonus, err := decimal.NewFromString(strings.TrimSpace(entry.Bonus))
		if err != nil {
			return nil, fmt.Errorf("bonus.tiers[%d].bonus: %w", entry.Tier, err)
		}
		table = append(table, bonusdomain.Tier{
			Level:     entry.Tier,
			Threshold: threshold,
			Bonus:     bonus,
		})
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

var _ bonusdomain.TierSource = (*BonusTierConfigHolder)(nil)
