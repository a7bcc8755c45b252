package store

// Rule is a reusable instruction snippet. Always-attach rules join
// every generation for their owner; others are pulled in when a message
// mentions them with an @name token.
type Rule struct {
	UID          string
	Name         string
	Content      string
	AlwaysAttach bool
	CreatedTs    int64
	UpdatedTs    int64
	ID           int32
	CreatorID    int32
}

type FindRule struct {
	ID           *int32
	UID          *string
	CreatorID    *int32
	Name         *string
	AlwaysAttach *bool
}

type UpdateRule struct {
	Name         *string
	Content      *string
	AlwaysAttach *bool
	UpdatedTs    *int64
	ID           int32
}

type DeleteRule struct {
	ID        int32
	CreatorID int32
}
