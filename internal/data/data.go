package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"candlebot/internal/exchange"
	"candlebot/internal/logger"
	"candlebot/internal/models"
)

var csvHeader = []string{"datetime", "open", "high", "low", "close", "volume"}

// Loader serves candle history from a CSV cache directory, downloading
// from the exchange on a miss.
type Loader struct {
	dir    string
	client exchange.Client
	log    *logger.Logger
}

func NewLoader(dir string, client exchange.Client, log *logger.Logger) *Loader {
	return &Loader{dir: dir, client: client, log: log}
}

// Load returns clean ascending candles for [from, to). Malformed rows are
// an error, never silently repaired or dropped.
func (l *Loader) Load(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error) {
	path := l.cachePath(symbol, interval, from, to)
	if _, err := os.Stat(path); err == nil {
		candles, err := ReadCSV(path)
		if err != nil {
			return nil, err
		}
		l.log.WithComponent("data").WithFields(logrus.Fields{
			"symbol": symbol, "path": path, "bars": len(candles),
		}).Info("loaded candles from cache")
		return candles, nil
	}

	if l.client == nil {
		return nil, fmt.Errorf("no cached candles at %s and no exchange client configured", path)
	}

	candles, err := l.client.GetKlines(ctx, symbol, interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("download klines %s %s: %w", symbol, interval, err)
	}
	candles, err = Clean(candles)
	if err != nil {
		return nil, err
	}
	if err := WriteCSV(path, candles); err != nil {
		return nil, err
	}
	l.log.WithComponent("data").WithFields(logrus.Fields{
		"symbol": symbol, "path": path, "bars": len(candles),
	}).Info("downloaded and cached candles")
	return candles, nil
}

func (l *Loader) cachePath(symbol, interval string, from, to time.Time) string {
	name := fmt.Sprintf("%s_%s_%s_%s.csv",
		symbol, interval, from.UTC().Format("20060102"), to.UTC().Format("20060102"))
	return filepath.Join(l.dir, name)
}

// Clean sorts ascending, drops exact duplicate timestamps and validates
// every bar.
func Clean(candles []models.Candle) ([]models.Candle, error) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Datetime.Before(candles[j].Datetime)
	})
	out := candles[:0]
	var last time.Time
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if !last.IsZero() && c.Datetime.Equal(last) {
			continue
		}
		last = c.Datetime
		out = append(out, c)
	}
	return out, nil
}

func ReadCSV(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse candle file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if rows[0][0] == csvHeader[0] {
		rows = rows[1:]
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		candles = append(candles, c)
	}
	return Clean(candles)
}

// WriteCSV writes atomically: tmp file in the same directory, then
// rename.
func WriteCSV(path string, candles []models.Candle) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create candle file: %w", err)
	}

	w := csv.NewWriter(f)
	_ = w.Write(csvHeader)
	for _, c := range candles {
		_ = w.Write([]string{
			c.Datetime.UTC().Format(time.RFC3339),
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.Volume),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write candle file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close candle file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit candle file: %w", err)
	}
	return nil
}

func parseRow(row []string) (models.Candle, error) {
	if len(row) != len(csvHeader) {
		return models.Candle{}, fmt.Errorf("expected %d fields, got %d", len(csvHeader), len(row))
	}
	dt, err := time.Parse(time.RFC3339, row[0])
	if err != nil {
		return models.Candle{}, fmt.Errorf("bad datetime %q: %w", row[0], err)
	}
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		vals[i], err = strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("bad value %q: %w", row[i+1], err)
		}
	}
	return models.Candle{
		Datetime: dt.UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
