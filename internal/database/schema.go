package database

// CurrentSchemaVersion is the schema version this build expects. Bump it together
// with a new entry in migrations and a matching change in the expense record mapper.
const CurrentSchemaVersion = 3

// DefaultFileName is the database file name used when none is configured.
const DefaultFileName = "trip_expenses.db"

const schemaVersionKey = "schema_version"

// UncategorizedCategoryID is the seeded category expenses default to.
const UncategorizedCategoryID = 8

// timestampNow renders the current time with millisecond precision so that
// updated_at strictly advances between quick successive writes.
const timestampNow = `(strftime('%Y-%m-%d %H:%M:%f', 'now'))`

const (
	createTrip = `CREATE TABLE IF NOT EXISTS trip (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    destination TEXT,
    purpose TEXT,
    notes TEXT,
    default_currency TEXT NOT NULL DEFAULT 'USD' CHECK (length(default_currency) = 3),
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'completed', 'archived')),
    created_at TEXT NOT NULL DEFAULT ` + timestampNow + `,
    updated_at TEXT NOT NULL DEFAULT ` + timestampNow + `,
    CHECK (end_date >= start_date)
)`

	createExpenseCategory = `CREATE TABLE IF NOT EXISTS expense_category (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'custom' CHECK (type IN ('standard', 'custom')),
    icon TEXT,
    sort_order INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1 CHECK (is_active IN (0, 1)),
    created_at TEXT NOT NULL DEFAULT ` + timestampNow + `
)`

	createExpense = `CREATE TABLE IF NOT EXISTS expense (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trip_id INTEGER REFERENCES trip(id) ON DELETE RESTRICT,
    merchant_name TEXT NOT NULL,
    amount REAL NOT NULL CHECK (amount >= 0),
    currency TEXT NOT NULL CHECK (length(currency) = 3),
    tax_amount REAL CHECK (tax_amount IS NULL OR tax_amount >= 0),
    tax_type TEXT CHECK (tax_type IS NULL OR tax_type IN ('GST', 'HST', 'PST', 'VAT', 'SALES_TAX', 'OTHER', 'NONE')),
    tax_rate REAL CHECK (tax_rate IS NULL OR (tax_rate >= 0 AND tax_rate <= 100)),
    transaction_date TEXT NOT NULL,
    transaction_time TEXT,
    category_id INTEGER NOT NULL DEFAULT 8 REFERENCES expense_category(id) ON DELETE RESTRICT,
    receipt_image_path TEXT NOT NULL,
    thumbnail_path TEXT,
    notes TEXT,
    capture_method TEXT NOT NULL DEFAULT 'manual' CHECK (capture_method IN ('ai_service', 'offline_ocr', 'manual')),
    ai_service_id TEXT,
    verification_status TEXT NOT NULL DEFAULT 'pending' CHECK (verification_status IN ('pending', 'verified', 'edited')),
    created_at TEXT NOT NULL DEFAULT ` + timestampNow + `,
    updated_at TEXT NOT NULL DEFAULT ` + timestampNow + `
)`

	createCategorisationRule = `CREATE TABLE IF NOT EXISTS categorisation_rule (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pattern TEXT NOT NULL,
    category_id INTEGER NOT NULL REFERENCES expense_category(id) ON DELETE CASCADE,
    priority INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1 CHECK (is_active IN (0, 1)),
    created_at TEXT NOT NULL DEFAULT ` + timestampNow + `,
    UNIQUE (pattern, category_id)
)`

	createProcessingQueue = `CREATE TABLE IF NOT EXISTS processing_queue (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    image_path TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT 'image/jpeg',
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
    attempts INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    expense_id INTEGER REFERENCES expense(id) ON DELETE SET NULL,
    created_at TEXT NOT NULL DEFAULT ` + timestampNow + `,
    updated_at TEXT NOT NULL DEFAULT ` + timestampNow + `
)`

	createUserSetting = `CREATE TABLE IF NOT EXISTS user_setting (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT ` + timestampNow + `
)`

	createDBMetadata = `CREATE TABLE IF NOT EXISTS db_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT ` + timestampNow + `
)`
)

// Indexes may only reference columns that existed in schema v1: they run before
// migrations on an upgraded database.
const (
	idxExpenseTrip       = `CREATE INDEX IF NOT EXISTS idx_expense_trip ON expense(trip_id)`
	idxExpenseCategory   = `CREATE INDEX IF NOT EXISTS idx_expense_category ON expense(category_id)`
	idxExpenseDate       = `CREATE INDEX IF NOT EXISTS idx_expense_date ON expense(transaction_date DESC)`
	idxTripStatus        = `CREATE INDEX IF NOT EXISTS idx_trip_status ON trip(status)`
	idxTripStartDate     = `CREATE INDEX IF NOT EXISTS idx_trip_start_date ON trip(start_date DESC)`
	idxRulePriority      = `CREATE INDEX IF NOT EXISTS idx_categorisation_rule_priority ON categorisation_rule(priority DESC)`
	idxQueueStatus       = `CREATE INDEX IF NOT EXISTS idx_processing_queue_status ON processing_queue(status, created_at)`
	idxCategorySortOrder = `CREATE INDEX IF NOT EXISTS idx_expense_category_sort ON expense_category(sort_order)`
)

const (
	trgTripUpdatedAt = `CREATE TRIGGER IF NOT EXISTS trg_trip_updated_at
AFTER UPDATE ON trip
FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
BEGIN
    UPDATE trip SET updated_at = ` + timestampNow + ` WHERE id = NEW.id;
END`

	trgExpenseUpdatedAt = `CREATE TRIGGER IF NOT EXISTS trg_expense_updated_at
AFTER UPDATE ON expense
FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
BEGIN
    UPDATE expense SET updated_at = ` + timestampNow + ` WHERE id = NEW.id;
END`

	trgQueueUpdatedAt = `CREATE TRIGGER IF NOT EXISTS trg_processing_queue_updated_at
AFTER UPDATE ON processing_queue
FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
BEGIN
    UPDATE processing_queue SET updated_at = ` + timestampNow + ` WHERE id = NEW.id;
END`
)

const seedCategories = `INSERT OR IGNORE INTO expense_category (id, name, type, icon, sort_order) VALUES
    (1, 'Meals', 'standard', 'restaurant', 1),
    (2, 'Transportation', 'standard', 'car', 2),
    (3, 'Accommodation', 'standard', 'bed', 3),
    (4, 'Office Supplies', 'standard', 'briefcase', 4),
    (5, 'Entertainment', 'standard', 'film', 5),
    (6, 'Communication', 'standard', 'phone', 6),
    (7, 'Other', 'standard', 'ellipsis', 7),
    (8, 'Uncategorized', 'standard', 'help-circle', 99)`

// Catalog lists every schema statement in execution order. Each statement is
// idempotent so the whole list can run on every process start.
var Catalog = []string{
	createTrip,
	createExpenseCategory,
	createExpense,
	createCategorisationRule,
	createProcessingQueue,
	createUserSetting,
	createDBMetadata,

	idxExpenseTrip,
	idxExpenseCategory,
	idxExpenseDate,
	idxTripStatus,
	idxTripStartDate,
	idxRulePriority,
	idxQueueStatus,
	idxCategorySortOrder,

	trgTripUpdatedAt,
	trgExpenseUpdatedAt,
	trgQueueUpdatedAt,

	seedCategories,
}
