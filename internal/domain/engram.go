package domain

// FileAction classifies a change recorded against a file in an Engram.
type FileAction string

const (
	FileCreated  FileAction = "created"
	FileModified FileAction = "modified"
	FileDeleted  FileAction = "deleted"
)

// FileChange records one file touched during a session checkpoint.
type FileChange struct {
	Path         string
	Action       FileAction
	LinesAdded   int
	LinesRemoved int
	Diff         string // optional
}

// TranscriptMessage is one turn of a session's transcript.
type TranscriptMessage struct {
	Role      string
	Content   string
	Timestamp int64
	ToolCalls []string
}

// AgentInfo records the coding-assistant metadata for an Engram.
type AgentInfo struct {
	Type         string
	Model        string
	DurationMS   int64
	Tokens       int
	CostUSD      float64
}

// Engram is an atomic session checkpoint: transcript, files changed, and
// the Decisions extracted from it (§3).
type Engram struct {
	ID                  string
	Namespace           Namespace
	SessionID           string
	CommitSHA           string
	Branch              string
	Timestamp           int64
	Agent               AgentInfo
	Transcript          []TranscriptMessage
	FilesChanged        []FileChange
	DecisionsExtracted  []string // Decision ids
	ContextInjected     bool
	AntipatternsTriggered []string

	// Optional deeper introspection fields.
	ReasoningTrail        []string
	ConfidenceTrajectory  []float64
	ToolCallGraph         map[string][]string
}

// SessionContext is short-lived hint state for the next decision (§3).
type SessionContext struct {
	SessionID    string // key
	Namespace    Namespace
	Task         string
	Focus        string
	CurrentPlan  []string
	Constraints  []string
	DocShotID    string
	CreatedAt    int64
	ExpiresAt    int64
	IsActive     bool
}

// Expired reports whether the session context has outlived its TTL at
// the given unix-seconds "now".
func (s *SessionContext) Expired(now int64) bool {
	return s.ExpiresAt > 0 && now >= s.ExpiresAt
}

// Document is one chunk of an ingested file (§3, §4.M).
type Document struct {
	ID         string
	Namespace  Namespace
	FilePath   string
	Content    string
	DocType    string
	Embedding  []float32
	ChunkIndex int
	ChunkTotal int
	CreatedAt  int64
	UpdatedAt  int64
}

// DocShot is an immutable snapshot of a set of Document chunks, cited by
// Decisions via the USES_DOCSHOT edge (§3).
type DocShot struct {
	ID          string
	Namespace   Namespace
	DocumentIDs []string
	CreatedAt   int64
}

// MigrationStatus is the recorded result of applying one Migration.
type MigrationStatus string

const (
	MigrationSuccess MigrationStatus = "success"
	MigrationFailed  MigrationStatus = "failed"
)

// SchemaVersion records one applied migration (§3, §4.A).
type SchemaVersion struct {
	Version     string // SemVer
	ExecutedAt  int64
	DurationMS  int64
	Status      MigrationStatus
	Description string
	Error       string
}
