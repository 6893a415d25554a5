package util

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnvStrict replaces ${NAME} with the value of NAME and fails when it is
// unset. ${NAME:-fallback} uses fallback instead of failing.
func ExpandEnvStrict(s string) (string, error) {
	var missing []string

	out := envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		expr := envVarPattern.FindStringSubmatch(m)[1]

		name, fallback, hasFallback := strings.Cut(expr, ":-")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable %s is not set", strings.Join(missing, ", "))
	}
	return out, nil
}
