package version

// Version is the build version, set with
// -ldflags "-X icinga-passive-checks/internal/version.Version=1.2.3"
var Version = "dev"
