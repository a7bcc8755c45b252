package store

// Modality is the kind of output a model produces. It determines which
// generation branch the orchestrator dispatches to.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
)

// EnabledModel is a per-user record of a model the user may generate
// with, including the pricing snapshot taken when it was enabled.
// Prices are USD per one million tokens.
type EnabledModel struct {
	ModelID         string
	Provider        string
	Modality        Modality
	PromptPrice     float64
	CompletionPrice float64
	CreatedTs       int64
	ID              int32
	UserID          int32
}

type FindEnabledModel struct {
	ID      *int32
	UserID  *int32
	ModelID *string
}

type DeleteEnabledModel struct {
	ID     int32
	UserID int32
}
