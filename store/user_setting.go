package store

// UserSetting is the per-user generation preference snapshot.
type UserSetting struct {
	UserID             int32
	MemoryEnabled      bool
	CompressionEnabled bool
}

type FindUserSetting struct {
	UserID int32
}

// UserCredential stores one provider API key for a user. KeyCipher is
// AES-256-GCM encrypted with the instance secret; the plaintext never
// touches the database.
type UserCredential struct {
	Provider  string
	KeyCipher string
	CreatedTs int64
	UpdatedTs int64
	ID        int32
	UserID    int32
}

type FindUserCredential struct {
	UserID   *int32
	Provider *string
}

type DeleteUserCredential struct {
	UserID   int32
	Provider string
}

// UserMemory is the compressed cross-conversation memory text for a
// user. A single row per user, replaced wholesale on recompression.
type UserMemory struct {
	UserID    int32
	Content   string
	UpdatedTs int64
}
