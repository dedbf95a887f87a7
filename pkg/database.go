package extractor

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
	"github.com/zeebo/blake3"
)

const extractionsSchema = `CREATE TABLE IF NOT EXISTS extractions (
	run_id        VARCHAR(36)  NOT NULL PRIMARY KEY,
	input         VARCHAR(255) NOT NULL,
	input_blake3  CHAR(64)     NOT NULL,
	archive       VARCHAR(255) NOT NULL,
	metadata      VARCHAR(255) NOT NULL,
	events        INTEGER      NOT NULL,
	entries       INTEGER      NOT NULL,
	short_traces  INTEGER      NOT NULL,
	decode_errors INTEGER      NOT NULL,
	finished_at   BIGINT       NOT NULL
)`

// ExtractionRecord is one row of the extractions table.
type ExtractionRecord struct {
	RunID        string `db:"run_id"`
	Input        string `db:"input"`
	InputBlake3  string `db:"input_blake3"`
	Archive      string `db:"archive"`
	Metadata     string `db:"metadata"`
	Events       int    `db:"events"`
	Entries      int    `db:"entries"`
	ShortTraces  int    `db:"short_traces"`
	DecodeErrors int    `db:"decode_errors"`
	FinishedAt   int64  `db:"finished_at"`
}

// Catalog keeps a table of completed extractions.
type Catalog struct {
	db *sqlx.DB
}

func MySQLDSN(user string, pass string, host string, dbname string) string {
	port := "3306"
	return fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
}

// CatalogDSN returns the driver name and data source for the configured
// catalog, or an empty driver when the catalog is disabled.
func (c Configuration) CatalogDSN() (string, string) {
	switch c.CatalogDriver {
	case "mysql":
		return "mysql", MySQLDSN(c.User, c.Passwd, c.Host, c.DBName)
	case "sqlite":
		return "sqlite", c.CatalogPath
	default:
		return "", ""
	}
}

// OpenCatalog connects with the given registered driver and creates the
// extractions table if needed.
func OpenCatalog(driver string, dsn string) (*Catalog, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to catalog: %w", err)
	}
	if _, err := db.Exec(extractionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating extractions table: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) Record(summary Summary) error {
	tx, err := c.begin(summary)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// begin inserts the record of summary in a transaction left open for the
// caller to commit once the archive is in place.
func (c *Catalog) begin(summary Summary) (*sqlx.Tx, error) {
	digest, err := HashFile(summary.Input)
	if err != nil {
		return nil, err
	}
	record := ExtractionRecord{
		RunID:        uuid.NewString(),
		Input:        summary.Input,
		InputBlake3:  digest,
		Archive:      summary.Archive,
		Metadata:     summary.Metadata,
		Events:       summary.EventsWritten,
		Entries:      len(summary.Entries),
		ShortTraces:  summary.ShortTraces,
		DecodeErrors: summary.DecodeErrors,
		FinishedAt:   time.Now().Unix(),
	}
	tx, err := c.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("error starting catalog transaction: %w", err)
	}
	query := `INSERT INTO extractions
		(run_id, input, input_blake3, archive, metadata, events, entries, short_traces, decode_errors, finished_at)
		VALUES (:run_id, :input, :input_blake3, :archive, :metadata, :events, :entries, :short_traces, :decode_errors, :finished_at)`
	if _, err := tx.NamedExec(query, record); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("error inserting extraction record: %w", err)
	}
	return tx, nil
}

// Extractions returns the recorded runs of input, oldest first.
func (c *Catalog) Extractions(input string) ([]ExtractionRecord, error) {
	var records []ExtractionRecord
	query := c.db.Rebind("SELECT * FROM extractions WHERE input = ? ORDER BY finished_at")
	if err := c.db.Select(&records, query, input); err != nil {
		return nil, fmt.Errorf("error querying extractions: %w", err)
	}
	return records, nil
}

// HashFile returns the hex BLAKE3 digest of the file contents.
func HashFile(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return "", &ErrOpenFile{Filename: filename, Err: err}
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("error hashing %q: %w", filename, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
