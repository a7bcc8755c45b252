package store

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Annotation is an arbitrary structured note attached to a message,
// typically a citation produced during web-search enrichment.
// Persisted as a JSON array in the message row.
type Annotation struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Message is one turn of a conversation. Assistant messages are created
// as empty placeholders and mutated in place while streaming: every
// update writes the full accumulated state, never a delta, so the row
// is safely readable mid-stream.
type Message struct {
	UID            string
	Role           Role
	Content        string
	ContentHTML    *string
	Reasoning      *string
	Error          *string
	ModelID        string
	Provider       string
	TokenCount     *int32
	CostUsd        *float64
	Annotations    []Annotation
	Suggestions    []string
	CreatedTs      int64
	UpdatedTs      int64
	ID             int64
	ConversationID int32
}

type FindMessage struct {
	ID             *int64
	UID            *string
	ConversationID *int32
	Role           *Role
}

type UpdateMessage struct {
	Content     *string
	ContentHTML *string
	Reasoning   *string
	Error       *string
	TokenCount  *int32
	CostUsd     *float64
	Annotations []Annotation
	Suggestions []string
	UpdatedTs   *int64
	ID          int64
}
