// filepath: internal/repository/settings_repo.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lostfound/internal/models"
	"lostfound/internal/shared"

	"github.com/Masterminds/squirrel"
)

var settingColumns = []string{`"key"`, "value", "updated_at"}

func scanSetting(row rowScanner) (*models.Setting, error) {
	var s models.Setting
	var value, updatedAt sql.NullString
	if err := row.Scan(&s.Key, &value, &updatedAt); err != nil {
		return nil, err
	}
	s.Value = value.String
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// InsertSettingIfAbsent writes key only when it has no row yet and reports
// whether it did. An existing value, customised or not, is left alone.
func (r *Repository) InsertSettingIfAbsent(ctx context.Context, key, value string, at time.Time) (bool, error) {
	res, err := r.exec(ctx, r.Builder.Insert(SettingsTableName).
		Columns(settingColumns...).
		Values(key, value, formatTime(at)).
		Suffix(`ON CONFLICT("key") DO NOTHING`))
	if err != nil {
		return false, Classify(fmt.Errorf("seed setting %s: %w", key, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetSetting inserts or replaces the value of key.
func (r *Repository) SetSetting(ctx context.Context, key, value string, at time.Time) error {
	_, err := r.exec(ctx, r.Builder.Insert(SettingsTableName).
		Columns(settingColumns...).
		Values(key, value, formatTime(at)).
		Suffix(`ON CONFLICT("key") DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`))
	if err != nil {
		return Classify(fmt.Errorf("set setting %s: %w", key, err))
	}
	return nil
}

// GetSetting returns one setting or shared.ErrSettingNotFound.
func (r *Repository) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	row, err := r.queryRow(ctx, r.Builder.Select(settingColumns...).From(SettingsTableName).Where(squirrel.Eq{`"key"`: key}))
	if err != nil {
		return nil, err
	}
	s, err := scanSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSettingNotFound, key)
	}
	if err != nil {
		return nil, Classify(fmt.Errorf("get setting %s: %w", key, err))
	}
	return s, nil
}

// GetSettings returns all settings ordered by key.
func (r *Repository) GetSettings(ctx context.Context) ([]models.Setting, error) {
	rows, err := r.query(ctx, r.Builder.Select(settingColumns...).From(SettingsTableName).OrderBy(`"key"`))
	if err != nil {
		return nil, Classify(fmt.Errorf("list settings: %w", err))
	}
	defer rows.Close()

	settings := make([]models.Setting, 0)
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, Classify(fmt.Errorf("list settings: %w", err))
		}
		settings = append(settings, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(fmt.Errorf("list settings: %w", err))
	}
	return settings, nil
}
