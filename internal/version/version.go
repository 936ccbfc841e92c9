package version

// Version is the aiterm release. Release builds override it with
// -ldflags "-X aiterm/internal/version.Version=...".
var Version = "0.1.0"
