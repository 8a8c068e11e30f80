package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"thumbnailer/internal/thumbnail"
)

// PreviewKeys lists the preview toggles the store accepts.
var PreviewKeys = []string{
	thumbnail.PreviewImage,
	thumbnail.PreviewVideo,
	thumbnail.PreviewText,
	thumbnail.PreviewDocument,
}

// IsPreviewKey reports whether key names a preview toggle.
func IsPreviewKey(key string) bool {
	for _, k := range PreviewKeys {
		if k == key {
			return true
		}
	}
	return false
}

// SeedPreviews stores defaults for toggles that have never been set. Values
// already in the database are kept.
func (d *Database) SeedPreviews(ctx context.Context, defaults map[string]bool) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_setting", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, key := range sortedKeys(defaults) {
		if !IsPreviewKey(key) {
			tx.Rollback()
			return fmt.Errorf("unknown preview setting %q", key)
		}
		if _, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO preferences (key, value) VALUES (?, ?)",
			key, boolToInt(defaults[key]),
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	_, err = d.loadPreviews(ctx)
	return err
}

// Previews returns every stored toggle. Toggles never stored are enabled.
func (d *Database) Previews(ctx context.Context) (map[string]bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return d.loadPreviews(ctx)
}

func (d *Database) loadPreviews(ctx context.Context) (prefs map[string]bool, err error) {
	start := time.Now()
	defer func() { recordQuery("get_settings", start, err) }()

	rows, err := d.db.QueryContext(ctx, "SELECT key, value FROM preferences")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prefs = make(map[string]bool, len(PreviewKeys))
	for _, k := range PreviewKeys {
		prefs[k] = true
	}
	for rows.Next() {
		var key string
		var value int
		if err = rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		prefs[key] = value != 0
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	d.prefsMu.Lock()
	d.prefs = prefs
	d.prefsMu.Unlock()

	out := make(map[string]bool, len(prefs))
	for k, v := range prefs {
		out[k] = v
	}
	return out, nil
}

// SetPreview stores a toggle.
func (d *Database) SetPreview(ctx context.Context, key string, enabled bool) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_setting", start, err) }()

	if !IsPreviewKey(key) {
		return fmt.Errorf("unknown preview setting %q", key)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = strftime('%s', 'now')
	`, key, boolToInt(enabled))
	if err != nil {
		return err
	}

	d.prefsMu.Lock()
	d.prefs[key] = enabled
	d.prefsMu.Unlock()
	return nil
}

// PreviewEnabled reports a toggle from the in-memory copy. Unknown keys are
// enabled.
func (d *Database) PreviewEnabled(key string) bool {
	d.prefsMu.RLock()
	defer d.prefsMu.RUnlock()
	enabled, ok := d.prefs[key]
	return !ok || enabled
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
