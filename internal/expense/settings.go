package expense

import (
	"context"
	"strings"

	"github.com/zombor/trip-expenses/internal/database"
)

const entitySetting = "setting"

// SettingDefaultCurrency names the currency applied when a receipt does not state one.
const SettingDefaultCurrency = "default_currency"

// SettingsRepository stores user preferences as key/value pairs
type SettingsRepository struct {
	conn Conn
}

// NewSettingsRepository creates a SettingsRepository
func NewSettingsRepository(conn Conn) *SettingsRepository {
	return &SettingsRepository{conn: conn}
}

// Get returns the value stored under key, or nil when unset
func (r *SettingsRepository) Get(ctx context.Context, key string) (*string, error) {
	row, err := selectRow(ctx, r.conn, entitySetting, "get", "SELECT value FROM user_setting WHERE key = ?", key)
	if err != nil || row == nil {
		return nil, err
	}
	return row.nullString("value"), nil
}

// Set stores value under key, replacing any previous value
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return &database.ValidationError{Entity: entitySetting, Fields: map[string]string{"key": "required"}}
	}
	if key == SettingDefaultCurrency && len(value) != 3 {
		return &database.ValidationError{Entity: entitySetting, Fields: map[string]string{"value": "len=3"}}
	}
	_, err := exec(ctx, r.conn, entitySetting, "set", `INSERT INTO user_setting (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = (strftime('%Y-%m-%d %H:%M:%f', 'now'))`,
		key, value)
	return err
}

// DefaultCurrency returns the configured default currency, falling back to USD
func (r *SettingsRepository) DefaultCurrency(ctx context.Context) (string, error) {
	v, err := r.Get(ctx, SettingDefaultCurrency)
	if err != nil {
		return "", err
	}
	if v == nil || *v == "" {
		return DefaultCurrency, nil
	}
	return *v, nil
}
