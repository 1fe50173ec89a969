package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rewired-gh/coinpulse/internal/models"
)

const exportSuffix = "_data_export.json"

// ExportPath is where the export for coin lives inside dir.
func ExportPath(dir, coin string) string {
	return filepath.Join(dir, strings.ToUpper(coin)+exportSuffix)
}

// LoadExport reads a coin's exported series from dir.
func LoadExport(dir, coin string) (*models.CryptoData, error) {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if coin == "" || strings.ContainsAny(coin, `/\.`) {
		return nil, fmt.Errorf("invalid coin %q: %w", coin, ErrDataUnavailable)
	}

	raw, err := os.ReadFile(ExportPath(dir, coin))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no export for %s: %w", coin, ErrDataUnavailable)
		}
		return nil, fmt.Errorf("failed to read export: %w", err)
	}

	var data models.CryptoData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse export for %s: %w", coin, err)
	}
	// ticks carry upper-case symbols and cards match on them exactly
	data.Coin = strings.ToUpper(strings.TrimSpace(data.Coin))
	if data.Coin == "" {
		data.Coin = coin
	}
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", coin, ErrDataUnavailable, err)
	}
	return &data, nil
}

// ExportedCoins lists the coins that have an export file in dir.
func ExportedCoins(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+exportSuffix))
	if err != nil {
		return nil, err
	}
	coins := make([]string, 0, len(matches))
	for _, m := range matches {
		coins = append(coins, strings.TrimSuffix(filepath.Base(m), exportSuffix))
	}
	sort.Strings(coins)
	return coins, nil
}
