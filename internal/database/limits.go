package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// defaultLimitKey is the size_limits row holding the default limit.
const defaultLimitKey = "*"

// SizeLimitOverrides are limits changed at runtime. A zero Default means no
// override was stored.
type SizeLimitOverrides struct {
	Default int64
	Mimes   map[string]int64
}

// LimitSetter receives stored overrides. *thumbnail.Service satisfies it.
type LimitSetter interface {
	SetSizeLimit(mime string, n int64)
	SetDefaultSizeLimit(n int64)
}

// SizeLimits returns every stored override.
func (d *Database) SizeLimits(ctx context.Context) (out SizeLimitOverrides, err error) {
	start := time.Now()
	defer func() { recordQuery("get_size_limits", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT mime, bytes FROM size_limits ORDER BY mime")
	if err != nil {
		return SizeLimitOverrides{}, err
	}
	defer rows.Close()

	out.Mimes = make(map[string]int64)
	for rows.Next() {
		var mime string
		var n int64
		if err = rows.Scan(&mime, &n); err != nil {
			return SizeLimitOverrides{}, err
		}
		if mime == defaultLimitKey {
			out.Default = n
			continue
		}
		out.Mimes[mime] = n
	}
	err = rows.Err()
	return out, err
}

// SetSizeLimit stores the limit for mime.
func (d *Database) SetSizeLimit(ctx context.Context, mime string, n int64) error {
	if mime == "" || mime == defaultLimitKey {
		return errors.New("mime type is required")
	}
	return d.putLimit(ctx, mime, n)
}

// SetDefaultSizeLimit stores the limit for mimes without an entry.
func (d *Database) SetDefaultSizeLimit(ctx context.Context, n int64) error {
	return d.putLimit(ctx, defaultLimitKey, n)
}

func (d *Database) putLimit(ctx context.Context, key string, n int64) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_size_limit", start, err) }()

	if n <= 0 {
		return errors.New("size limit must be positive")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO size_limits (mime, bytes) VALUES (?, ?)
		ON CONFLICT(mime) DO UPDATE SET bytes = excluded.bytes, updated_at = strftime('%s', 'now')
	`, key, n)
	return err
}

// ApplySizeLimits pushes stored overrides into target.
func (d *Database) ApplySizeLimits(ctx context.Context, target LimitSetter) (int, error) {
	overrides, err := d.SizeLimits(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if overrides.Default > 0 {
		target.SetDefaultSizeLimit(overrides.Default)
	}
	for _, mime := range sortedKeys(overrides.Mimes) {
		target.SetSizeLimit(mime, overrides.Mimes[mime])
	}
	return len(overrides.Mimes), nil
}
