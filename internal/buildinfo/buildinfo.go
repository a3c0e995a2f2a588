package buildinfo

import "fmt"

// Set at link time with -ldflags "-X ridesim/internal/buildinfo.Version=..."
var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
}

// String renders the build info on one line for the version command.
func String() string {
	s := "ridesim " + Version
	if Commit != "" {
		s += fmt.Sprintf(" (%s)", Commit)
	}
	if BuiltAt != "" {
		s += " built " + BuiltAt
	}
	return s
}
