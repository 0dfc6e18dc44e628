package util

import (
	"os"
	os_user "os/user"
	"strings"
)

func GetenvDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ExpandHomeDir replaces a leading "~/" with the current user's home directory.
func ExpandHomeDir(filename string) (string, error) {
	if !strings.HasPrefix(filename, "~/") {
		return filename, nil
	}
	user, err := os_user.Current()
	if err != nil {
		return "", NewError(err, "cannot get current user")
	}
	return user.HomeDir + filename[1:], nil
}
