package db

import "time"

// Run statuses.
const (
	RunQueued              = "queued"
	RunAnalyzing           = "analyzing"
	RunAnalyzingStructure  = "analyzing_structure"
	RunDeterminingStrategy = "determining_strategy"
	RunGenerating          = "generating"
	RunWritingHooks        = "writing_hooks"
	RunPolishing           = "polishing"
	RunPublishing          = "publishing"
	RunGenerated           = "generated"
	RunPublished           = "published"
	RunFailed              = "failed"
)

// Unit statuses.
const (
	UnitGenerated = "generated"
	UnitPublished = "published"
	UnitFailed    = "failed"
)

type Account struct {
	ID              string
	DisplayName     string
	SubscribeURL    string
	CustomPrompt    string
	ExampleTwitter  string
	ExampleLinkedIn string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Credential struct {
	AccountID string
	Blob      string
	Version   int64
	UpdatedAt time.Time
}

type Run struct {
	ID           string
	AccountID    string
	EditionURL   string
	ContentTypes string
	Publish      bool
	Status       string
	Message      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Unit struct {
	ID          int64
	RunID       string
	PostNumber  int64
	ContentType string
	Envelope    string
	Status      string
	Error       string
	CreatedAt   time.Time
}

type PublishedPost struct {
	ID        int64
	UnitID    int64
	AccountID string
	Platform  string
	ItemIndex int64
	PostType  string
	PostID    string
	ParentID  string
	QuoteID   string
	URL       string
	Text      string
	CreatedAt time.Time
}
