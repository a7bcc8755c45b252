package store

// TitleSource indicates how the conversation title was created.
// - "default": system placeholder ("New Chat")
// - "auto": generated from conversation content
// - "user": user-provided title (manual rename)
type TitleSource string

const (
	TitleSourceDefault TitleSource = "default"
	TitleSourceAuto    TitleSource = "auto"
	TitleSourceUser    TitleSource = "user"
)

// DefaultTitle is the placeholder title for fresh conversations.
// Auto title generation only fires while the title still equals this
// and the source is still "default".
const DefaultTitle = "New Chat"

type Conversation struct {
	UID         string
	Title       string
	TitleSource TitleSource
	// ParentUID references the conversation this one was branched from.
	ParentUID *string
	// Generating is true for the whole span of an in-flight background
	// generation. Every exit path of a run must clear it.
	Generating bool
	// CostUsd is the running total of all generation costs.
	CostUsd   float64
	Pinned    bool
	Public    bool
	CreatedTs int64
	UpdatedTs int64
	ID        int32
	CreatorID int32
}

type FindConversation struct {
	ID        *int32
	UID       *string
	CreatorID *int32
	Pinned    *bool
}

type UpdateConversation struct {
	Title       *string
	TitleSource *TitleSource
	Generating  *bool
	// AddCostUsd is added to the running total atomically in SQL
	// (cost_usd = cost_usd + ?), so concurrent runs for different
	// conversations never lose increments.
	AddCostUsd *float64
	Pinned     *bool
	Public     *bool
	UpdatedTs  *int64
	ID         int32
}

type DeleteConversation struct {
	ID int32
}
