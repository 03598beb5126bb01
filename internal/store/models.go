package store

import "time"

// InstallRun records one installer invocation.
type InstallRun struct {
	ID                int64
	Command           string // "install-qt" or "install-tool"
	Host              string
	Target            string
	Version           string // Qt version or tool name
	Arch              string
	StartTime         time.Time
	EndTime           time.Time
	PackagesInstalled int
	BytesDownloaded   int64
	Status            string // "running", "success", "failed"
	ErrorMessage      string
}

// InstalledPackage records one extracted archive.
type InstalledPackage struct {
	ID           int64
	Name         string
	ArchivePath  string
	InstallPath  string
	Size         int64
	InstallRunID int64
	InstalledAt  time.Time
}
