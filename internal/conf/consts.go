package conf

import "regexp"

// MaxFeeds is the upper bound on the generated feed population.
const MaxFeeds = 1000

// Database backends.
const (
	DatabaseMySQL  = "mysql"
	DatabaseSQLite = "sqlite"
)

// Archive targets.
const (
	ArchiveS3     = "s3"
	ArchiveLocal  = "local"
	ArchiveSFTP   = "sftp"
	ArchiveFTP    = "ftp"
	ArchiveGDrive = "gdrive"
)

// ArchiveTargets lists the supported archive target names.
var ArchiveTargets = []string{ArchiveS3, ArchiveLocal, ArchiveSFTP, ArchiveFTP, ArchiveGDrive}

// Janus config layouts.
const (
	JanusLayoutMultistream = "multistream"
	JanusLayoutPerStream   = "per-stream"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
