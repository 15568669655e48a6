// Package directory is the read-only merchant directory loaded from a YAML file.
package directory

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/models"
)

type Merchant struct {
	ID       string
	Name     string
	Category string

	// Loyalty points per major currency unit spent
	EarnRate decimal.Decimal
	Tiers    models.TierTable
}

// YAML representation of the directory
type file struct {
	DefaultTiers models.TierTable `yaml:"default_tiers"`
	Merchants    []merchantFile   `yaml:"merchants"`
}

type merchantFile struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	Category string           `yaml:"category"`
	EarnRate string           `yaml:"earn_rate"`
	Tiers    models.TierTable `yaml:"tiers"`
}

type Directory struct {
	merchants map[string]Merchant
}

// Load reads directory from the YAML file on disk
func Load(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}
	defer f.Close() // nolint:errcheck

	return Parse(f)
}

func Parse(r io.Reader) (*Directory, error) {
	var content file
	if err := yaml.NewDecoder(r).Decode(&content); err != nil {
		return nil, fmt.Errorf("decode directory: %w", err)
	}

	merchants := make([]Merchant, 0, len(content.Merchants))
	for _, entry := range content.Merchants {
		rate := decimal.Zero
		if raw := strings.TrimSpace(entry.EarnRate); raw != "" {
			parsed, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("merchant %s earn_rate: %w", entry.ID, err)
			}
			rate = parsed
		}

		tiers := entry.Tiers
		if len(tiers) == 0 {
			tiers = content.DefaultTiers
		}

		merchants = append(merchants, Merchant{
			ID:       entry.ID,
			Name:     entry.Name,
			Category: entry.Category,
			EarnRate: rate,
			Tiers:    tiers,
		})
	}

	return New(merchants...)
}

func New(merchants ...Merchant) (*Directory, error) {
	registry := make(map[string]Merchant, len(merchants))

	for _, m := range merchants {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return nil, fmt.Errorf("merchant id required")
		}
		if _, exists := registry[id]; exists {
			return nil, fmt.Errorf("duplicate merchant %s", id)
		}
		if m.EarnRate.IsNegative() {
			return nil, fmt.Errorf("merchant %s earn_rate must be non-negative", id)
		}
		if err := m.Tiers.Validate(); err != nil {
			return nil, fmt.Errorf("merchant %s: %w", id, err)
		}

		m.ID = id
		m.Tiers = append(models.TierTable(nil), m.Tiers...)
		registry[id] = m
	}

	return &Directory{merchants: registry}, nil
}

func (d *Directory) MerchantExists(merchantID string) bool {
	_, ok := d.merchants[merchantID]
	return ok
}

// If merchant not found returns apperrors.ErrMerchantNotFound
func (d *Directory) Merchant(merchantID string) (Merchant, error) {
	m, ok := d.merchants[merchantID]
	if !ok {
		return Merchant{}, fmt.Errorf("merchant %q: %w", merchantID, apperrors.ErrMerchantNotFound)
	}
	return m, nil
}

func (d *Directory) TierThresholds(merchantID string) (models.TierTable, error) {
	m, err := d.Merchant(merchantID)
	if err != nil {
		return nil, err
	}
	return m.Tiers, nil
}

// All merchants ordered by id
func (d *Directory) Merchants() []Merchant {
	merchants := make([]Merchant, 0, len(d.merchants))
	for _, m := range d.merchants {
		merchants = append(merchants, m)
	}
	sort.Slice(merchants, func(i, j int) bool { return merchants[i].ID < merchants[j].ID })
	return merchants
}
