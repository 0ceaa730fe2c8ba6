package corpus

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ferg-cod3s/docuforge/internal/docgen/errs"
)

var scpLikeRe = regexp.MustCompile(`[:/]([^/]+)/([^/]+?)(?:\.git)?$`)

// ParseRepoURL extracts (owner, repo) from any of the forms GitHub accepts
// on its own UI: "https://github.com/owner/repo[.git]",
// "git@github.com:owner/repo.git", or bare "owner/repo".
func ParseRepoURL(raw string) (owner, repo string, err error) {
	raw = strings.TrimSpace(raw)

	if strings.Contains(raw, "/") && !strings.Contains(raw, "github.com") && !strings.Contains(raw, "@") {
		parts := strings.Split(raw, "/")
		if len(parts) == 2 {
			return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
		}
	}

	if strings.HasPrefix(raw, "git@") || strings.HasPrefix(raw, "ssh://") {
		if m := scpLikeRe.FindStringSubmatch(raw); m != nil {
			return m[1], m[2], nil
		}
	}

	if parsed, parseErr := url.Parse(raw); parseErr == nil && strings.Contains(parsed.Host+raw, "github.com") {
		path := strings.Trim(parsed.Path, "/")
		parts := strings.Split(path, "/")
		if len(parts) >= 2 {
			return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
		}
	}

	return "", "", errs.New(errs.ErrValidationFailure, "corpus",
		"invalid GitHub repository URL: "+raw+" (expected https://github.com/owner/repo or owner/repo)")
}
