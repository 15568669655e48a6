package catalog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/nkiryanov/venuewallet/internal/models"
	"github.com/nkiryanov/venuewallet/internal/money"
)

// YAML representation of a catalog entry
type rewardFile struct {
	ID         string    `yaml:"id"`
	MerchantID string    `yaml:"merchant_id"`
	Title      string    `yaml:"title"`
	PointsCost int64     `yaml:"points_cost"`
	ValidFrom  time.Time `yaml:"valid_from"`
	ValidUntil time.Time `yaml:"valid_until"`

	// Wallet credit in major units, e.g. "5.00"
	Credit string `yaml:"credit"`
}

// LoadRewards reads catalog entries from the YAML file on disk
func LoadRewards(path string) ([]models.Reward, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close() // nolint:errcheck

	return ParseRewards(f)
}

func ParseRewards(r io.Reader) ([]models.Reward, error) {
	var entries []rewardFile
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	rewards := make([]models.Reward, 0, len(entries))
	for _, e := range entries {
		credit := int64(0)
		if e.Credit != "" {
			major, err := decimal.NewFromString(e.Credit)
			if err != nil {
				return nil, fmt.Errorf("reward %q credit: %w", e.ID, err)
			}
			credit, err = money.FromMajor(major)
			if err != nil {
				return nil, fmt.Errorf("reward %q credit: %w", e.ID, err)
			}
		}

		rewards = append(rewards, models.Reward{
			ID:           e.ID,
			MerchantID:   e.MerchantID,
			Title:        e.Title,
			PointsCost:   e.PointsCost,
			ValidFrom:    e.ValidFrom,
			ValidUntil:   e.ValidUntil,
			CreditAmount: credit,
		})
	}

	return rewards, nil
}
