package database

type UserRepository interface {
	CreateUser(accountEmail, passwordHash, recipientEmail string) (int64, error)
	GetUserByID(id int64) (*User, error)
	GetUserByEmail(accountEmail string) (*User, error)

	// UpdateSettings stores model and prompt; an empty encryptedAPIKey
	// preserves the previously stored credential.
	UpdateSettings(userID int64, encryptedAPIKey, model, prompt string) error
}

type ChannelRepository interface {
	UpsertChannel(userID int64, channelID, source, title, recipientEmail string) error
	ListChannels(userID int64) ([]Channel, error)
	DeleteChannel(userID, channelPK int64) error
}

type ScanRepository interface {
	UpsertScannedItem(item ScannedItem) error
	DeleteScannedItems(userID int64) error

	GetRecentScanned(userID int64, limit int) ([]ScannedItem, error)
	GetScannedByVideoIDs(userID int64, videoIDs []string) ([]ScannedItem, error)
	ListScannedPage(userID int64, limit, offset int) ([]ScannedItem, error)
	CountScanned(userID int64) (int, error)
}

type SummaryRepository interface {
	UpsertGeneratedItem(item GeneratedItem) error
	GetGeneratedItem(userID int64, videoID string) (*GeneratedItem, error)
	ListGeneratedPage(userID int64, limit, offset int) ([]GeneratedItem, error)
	CountGenerated(userID int64) (int, error)
	DeleteGeneratedItem(userID int64, videoID string) error
}

type SentRepository interface {
	IsSent(userID int64, videoID string) (bool, error)

	// MarkSent inserts the delivery marker, ignoring the insert when a
	// row for (userID, videoID) already exists. Reports whether a new
	// row was written.
	MarkSent(userID int64, channelID, videoID, videoTitle string) (bool, error)
}
