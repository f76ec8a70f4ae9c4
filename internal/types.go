package internal

import "time"

// Unknown is the sentinel stored in a field whose extraction failed.
const Unknown = "Unknown"

type Field string

const (
	FieldName Field = "name"
	FieldRank Field = "rank"
	FieldUnit Field = "unit"
)

type SourceKind string

const (
	SourceCSV    SourceKind = "csv"
	SourceXLSX   SourceKind = "xlsx"
	SourceHTML   SourceKind = "html"
	SourceRemote SourceKind = "remote"
	SourceMail   SourceKind = "mail"
)

// SoldierRecord is one dated entry reconstructed from the roster.
type SoldierRecord struct {
	Name            string    `json:"name"`
	Rank            string    `json:"rank"`
	Unit            string    `json:"unit"`
	DeathDate       time.Time `json:"death_date"`
	DeathDateString string    `json:"death_date_string"`
}

type DefaultedRecord struct {
	Index   int    `json:"index"`
	Field   Field  `json:"field"`
	Snippet string `json:"snippet"`
}

// Diagnostics counts what a parse pass dropped or defaulted.
type Diagnostics struct {
	RawRecords  int               `json:"raw_records"`
	Dropped     int               `json:"dropped"`
	UnknownName int               `json:"unknown_name"`
	UnknownRank int               `json:"unknown_rank"`
	UnknownUnit int               `json:"unknown_unit"`
	Defaulted   []DefaultedRecord `json:"defaulted"`
}

func (d Diagnostics) UnknownCount(field Field) int {
	switch field {
	case FieldName:
		return d.UnknownName
	case FieldRank:
		return d.UnknownRank
	case FieldUnit:
		return d.UnknownUnit
	default:
		return 0
	}
}

type RunSummary struct {
	ID          int64
	TraceID     string
	Source      string
	SourceKind  SourceKind
	Strategy    string
	MailID      *int
	RawRecords  int
	Dropped     int
	Emitted     int
	UnknownName int
	UnknownRank int
	UnknownUnit int
	TimingsJSON string
	CreatedAt   string
}

type MailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
