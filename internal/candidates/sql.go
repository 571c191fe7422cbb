package candidates

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vk/qorgraph/internal/labels"
	"github.com/vk/qorgraph/internal/pipelineerr"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// SQLSource implements Source over the db4hls table layout.
type SQLSource struct {
	db     *sql.DB
	schema string
}

// Open connects to the database. schema qualifies every table name, e.g.
// "db4hls"; it may be empty.
func Open(ctx context.Context, driver, dsn, schema string) (*SQLSource, error) {
	const op = "open candidate store"

	switch driver {
	case DriverSQLite:
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.Configuration, op, err)
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	default:
		return nil, pipelineerr.New(pipelineerr.Configuration, op, "unsupported driver %q (want %s or %s)", driver, DriverSQLite, DriverMySQL)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Source, op, err)
	}

	if driver == DriverSQLite {
		// Only one writer at a time for SQLite.
		db.SetMaxOpenConns(1)
		for _, p := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, p); err != nil {
				db.Close()
				return nil, pipelineerr.Wrap(pipelineerr.Source, op, fmt.Errorf("set pragma %q: %w", p, err))
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, pipelineerr.Wrap(pipelineerr.Source, op, err)
	}
	return NewSQLSource(db, schema), nil
}

// NewSQLSource wraps an open database.
func NewSQLSource(db *sql.DB, schema string) *SQLSource {
	return &SQLSource{db: db, schema: schema}
}

func (s *SQLSource) Close() error { return s.db.Close() }

// t qualifies a table name with the schema.
func (s *SQLSource) t(name string) string {
	if s.schema == "" {
		return name
	}
	return s.schema + "." + name
}

// joins renders the FROM clause shared by every query; the replacer keeps
// the SQL readable with table names left symbolic.
func (s *SQLSource) joins() string {
	return strings.NewReplacer(
		"{configuration}", s.t("configuration"),
		"{configuration_space}", s.t("configuration_space"),
		"{implementation}", s.t("implementation"),
		"{resource_results}", s.t("resource_results"),
		"{performance_results}", s.t("performance_results"),
	).Replace(`
		FROM {configuration}
		JOIN {configuration_space} ON {configuration}.id_configuration_space = {configuration_space}.id_configuration_space
		JOIN {implementation} ON {configuration}.hash_configuration = {implementation}.hash_configuration
		LEFT JOIN {resource_results} ON {implementation}.id_resource_results = {resource_results}.id_resource_result
		LEFT JOIN {performance_results} ON {implementation}.id_performance_results = {performance_results}.id_performance_result`)
}

func (s *SQLSource) Maxima(ctx context.Context) (labels.Maxima, error) {
	q := fmt.Sprintf(`SELECT MAX(%[1]s.hls_lut), MAX(%[1]s.hls_ff), MAX(%[1]s.hls_bram), MAX(%[1]s.hls_dsp),
		MAX(%[2]s.estimated_clock), MAX(%[2]s.average_latency) %[3]s
		WHERE %[2]s.average_latency > 0`,
		s.t("resource_results"), s.t("performance_results"), s.joins())

	var v [6]sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, q).Scan(&v[0], &v[1], &v[2], &v[3], &v[4], &v[5]); err != nil {
		return labels.Maxima{}, pipelineerr.Wrap(pipelineerr.Source, "query maxima", err)
	}
	return labels.Maxima{
		LUTs:    v[0].Float64,
		FFs:     v[1].Float64,
		BRAMs:   v[2].Float64,
		DSPs:    v[3].Float64,
		Clock:   v[4].Float64,
		Latency: v[5].Float64,
	}, nil
}

func (s *SQLSource) Candidates(ctx context.Context, spaceID int64) ([]Candidate, error) {
	const op = "query candidates"
	q := fmt.Sprintf(`SELECT %[1]s.config_script, %[2]s.hls_lut, %[2]s.hls_ff, %[2]s.hls_bram, %[2]s.hls_dsp,
		%[3]s.estimated_clock, %[3]s.average_latency %[4]s
		WHERE %[5]s.id_configuration_space = ? AND %[3]s.average_latency > 0
		ORDER BY %[6]s.id_implementation`,
		s.t("configuration"), s.t("resource_results"), s.t("performance_results"), s.joins(),
		s.t("configuration_space"), s.t("implementation"))

	rows, err := s.db.QueryContext(ctx, q, spaceID)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Source, op, err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var script string
		var v [6]sql.NullFloat64
		if err := rows.Scan(&script, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5]); err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.Source, op, err)
		}
		c := Candidate{Script: script, Complete: true}
		for _, f := range v {
			c.Complete = c.Complete && f.Valid
		}
		c.Measurements = labels.Measurements{
			LUT:     v[0].Float64,
			FF:      v[1].Float64,
			BRAM:    v[2].Float64,
			DSP:     v[3].Float64,
			Clock:   v[4].Float64,
			Latency: v[5].Float64,
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Source, op, err)
	}
	return out, nil
}

func (s *SQLSource) Count(ctx context.Context, spaceID int64) (int, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) %s WHERE %s.id_configuration_space = ?`, s.joins(), s.t("configuration_space"))
	var n int
	if err := s.db.QueryRowContext(ctx, q, spaceID).Scan(&n); err != nil {
		return 0, pipelineerr.Wrap(pipelineerr.Source, "count candidates", err)
	}
	return n, nil
}

// Init creates the tables if they do not exist.
func (s *SQLSource) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS %s (id_configuration_space INTEGER PRIMARY KEY, kernel_name VARCHAR(255))`,
		`CREATE TABLE IF NOT EXISTS %s (hash_configuration VARCHAR(64) PRIMARY KEY, id_configuration_space INTEGER NOT NULL, config_script TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS %s (id_resource_result INTEGER PRIMARY KEY, hls_lut DOUBLE, hls_ff DOUBLE, hls_bram DOUBLE, hls_dsp DOUBLE)`,
		`CREATE TABLE IF NOT EXISTS %s (id_performance_result INTEGER PRIMARY KEY, estimated_clock DOUBLE, average_latency DOUBLE)`,
		`CREATE TABLE IF NOT EXISTS %s (id_implementation INTEGER PRIMARY KEY, hash_configuration VARCHAR(64) NOT NULL, id_resource_results INTEGER, id_performance_results INTEGER)`,
	}
	tables := []string{"configuration_space", "configuration", "resource_results", "performance_results", "implementation"}
	for i, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(stmt, s.t(tables[i]))); err != nil {
			return pipelineerr.Wrap(pipelineerr.Source, "init candidate store", fmt.Errorf("create %s: %w", tables[i], err))
		}
	}
	return nil
}

// Add records one implemented design point. A nil m stores an implementation
// without results, as left behind by a failed synthesis run.
func (s *SQLSource) Add(ctx context.Context, spaceID int64, kernel, script string, m *labels.Measurements) error {
	const op = "add candidate"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.Source, op, err)
	}
	defer tx.Rollback()

	exec := func(q string, args ...any) error {
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	}
	nextID := func(table, col string) (int64, error) {
		var id int64
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(%s), 0) + 1 FROM %s`, col, s.t(table))).Scan(&id)
		return id, err
	}

	var known int
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id_configuration_space = ?`, s.t("configuration_space")), spaceID).Scan(&known); err != nil {
		return pipelineerr.Wrap(pipelineerr.Source, op, err)
	}
	if known == 0 {
		if err := exec(fmt.Sprintf(`INSERT INTO %s (id_configuration_space, kernel_name) VALUES (?, ?)`, s.t("configuration_space")), spaceID, kernel); err != nil {
			return pipelineerr.Wrap(pipelineerr.Source, op, err)
		}
	}

	hash := uuid.NewString()
	if err := exec(fmt.Sprintf(`INSERT INTO %s (hash_configuration, id_configuration_space, config_script) VALUES (?, ?, ?)`, s.t("configuration")), hash, spaceID, script); err != nil {
		return pipelineerr.Wrap(pipelineerr.Source, op, err)
	}

	var resID, perfID sql.NullInt64
	if m != nil {
		if resID.Int64, err = nextID("resource_results", "id_resource_result"); err != nil {
			return pipelineerr.Wrap(pipelineerr.Source, op, err)
		}
		resID.Valid = true
		if err := exec(fmt.Sprintf(`INSERT INTO %s (id_resource_result, hls_lut, hls_ff, hls_bram, hls_dsp) VALUES (?, ?, ?, ?, ?)`, s.t("resource_results")),
			resID.Int64, m.LUT, m.FF, m.BRAM, m.DSP); err != nil {
			return pipelineerr.Wrap(pipelineerr.Source, op, err)
		}
		if perfID.Int64, err = nextID("performance_results", "id_performance_result"); err != nil {
			return pipelineerr.Wrap(pipelineerr.Source, op, err)
		}
		perfID.Valid = true
		if err := exec(fmt.Sprintf(`INSERT INTO %s (id_performance_result, estimated_clock, average_latency) VALUES (?, ?, ?)`, s.t("performance_results")),
			perfID.Int64, m.Clock, m.Latency); err != nil {
			return pipelineerr.Wrap(pipelineerr.Source, op, err)
		}
	}

	implID, err := nextID("implementation", "id_implementation")
	if err != nil {
		return pipelineerr.Wrap(pipelineerr.Source, op, err)
	}
	if err := exec(fmt.Sprintf(`INSERT INTO %s (id_implementation, hash_configuration, id_resource_results, id_performance_results) VALUES (?, ?, ?, ?)`, s.t("implementation")),
		implID, hash, resID, perfID); err != nil {
		return pipelineerr.Wrap(pipelineerr.Source, op, err)
	}

	if err := tx.Commit(); err != nil {
		return pipelineerr.Wrap(pipelineerr.Source, op, err)
	}
	return nil
}
