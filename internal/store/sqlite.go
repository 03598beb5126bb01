// Package store provides SQLite-backed install history: which installer
// invocations ran and which packages they put on disk. Recording failures
// are reported to the caller but must never abort an install.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateInstallRun inserts a new InstallRun and sets its ID.
func (s *Store) CreateInstallRun(run *InstallRun) error {
	const query = `
		INSERT INTO install_runs (
			command, host, target, version, arch, start_time, end_time,
			packages_installed, bytes_downloaded, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.Command, run.Host, run.Target, run.Version, run.Arch,
		run.StartTime, run.EndTime, run.PackagesInstalled,
		run.BytesDownloaded, run.Status, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert install run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// UpdateInstallRun updates an existing InstallRun by ID.
func (s *Store) UpdateInstallRun(run *InstallRun) error {
	const query = `
		UPDATE install_runs SET
			command = ?, host = ?, target = ?, version = ?, arch = ?,
			start_time = ?, end_time = ?, packages_installed = ?,
			bytes_downloaded = ?, status = ?, error_message = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.Command, run.Host, run.Target, run.Version, run.Arch,
		run.StartTime, run.EndTime, run.PackagesInstalled,
		run.BytesDownloaded, run.Status, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update install run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("install run %d not found", run.ID)
	}
	return nil
}

// ListInstallRuns returns the most recent install runs, newest first.
func (s *Store) ListInstallRuns(limit int) ([]InstallRun, error) {
	const query = `
		SELECT id, command, host, target, version, arch, start_time,
			end_time, packages_installed, bytes_downloaded, status,
			COALESCE(error_message, '')
		FROM install_runs
		ORDER BY start_time DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list install runs: %w", err)
	}
	defer rows.Close()

	var runs []InstallRun
	for rows.Next() {
		var r InstallRun
		if err := rows.Scan(
			&r.ID, &r.Command, &r.Host, &r.Target, &r.Version, &r.Arch,
			&r.StartTime, &r.EndTime, &r.PackagesInstalled,
			&r.BytesDownloaded, &r.Status, &r.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan install run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordInstalledPackage inserts one installed package row.
func (s *Store) RecordInstalledPackage(p *InstalledPackage) error {
	const query = `
		INSERT INTO installed_packages (
			name, archive_path, install_path, size, install_run_id, installed_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		p.Name, p.ArchivePath, p.InstallPath, p.Size, p.InstallRunID, p.InstalledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert installed package: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	p.ID = id
	return nil
}

// ListInstalledPackages returns the packages recorded for one run, or all
// packages when runID is zero.
func (s *Store) ListInstalledPackages(runID int64) ([]InstalledPackage, error) {
	query := `
		SELECT id, name, archive_path, install_path, size, install_run_id, installed_at
		FROM installed_packages
	`
	var args []any
	if runID != 0 {
		query += " WHERE install_run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY installed_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed packages: %w", err)
	}
	defer rows.Close()

	var pkgs []InstalledPackage
	for rows.Next() {
		var p InstalledPackage
		if err := rows.Scan(
			&p.ID, &p.Name, &p.ArchivePath, &p.InstallPath,
			&p.Size, &p.InstallRunID, &p.InstalledAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan installed package: %w", err)
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, rows.Err()
}

// CountInstalledPackages returns the total recorded package count.
func (s *Store) CountInstalledPackages() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM installed_packages").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count installed packages: %w", err)
	}
	return count, nil
}
