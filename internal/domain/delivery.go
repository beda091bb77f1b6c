package domain

// DeliveryMode selects the strategy used to hand off a query's results.
type DeliveryMode string

const (
	DeliveryModeFilesystem DeliveryMode = "filesystem"
	DeliveryModeEmail      DeliveryMode = "email"
	DeliveryModeMessaging  DeliveryMode = "messaging"
)

// DeliveryConfig is a tagged union over DeliveryMode: exactly the field
// matching Mode is set, so each channel reads its required fields from a
// typed struct instead of defaulted lookups.
type DeliveryConfig struct {
	Mode DeliveryMode

	Filesystem *FilesystemDelivery
	Email      *EmailDelivery
	Messaging  *MessagingDelivery
}

type FilesystemDelivery struct {
	// OutputDir overrides the export root; empty means the root itself.
	OutputDir string
}

// EmailDelivery configures the email channel. The artifact is written to
// the filesystem first and then attached; To/CC/LegacyRecipients are
// pipe-separated address lists.
type EmailDelivery struct {
	FilesystemDelivery

	To string
	CC string
	// LegacyRecipients is the deprecated recipients field, used as a
	// fallback when To is empty.
	LegacyRecipients string
	Subject          string
	Body             string
}

type MessagingDelivery struct {
	Topic           string
	KeyField        string
	BatchSize       int
	IncludeMetadata bool
	// Connection names a bus connection in the configuration document.
	Connection string
}
