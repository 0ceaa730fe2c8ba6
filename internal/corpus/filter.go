package corpus

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// candidate is a tree entry seen before its content has necessarily been
// fetched, letting the filter pipeline reject files before paying for a
// blob download.
type candidate struct {
	path string
	size int
}

// FilterConfig bounds what a catalog+fetch pass admits. Filtering order is
// fixed: ignored-path regex set, then extension whitelist, then per-file
// size cap, then cumulative file-count cap, then cumulative byte cap. Once
// a cumulative cap trips, remaining files are skipped, not errored.
type FilterConfig struct {
	IgnoredPatterns    []*regexp.Regexp
	AllowedExtensions  map[string]bool
	MaxFiles           int
	MaxTotalBytes      int
	MaxSingleFileBytes int
}

// NewFilterConfig compiles raw pattern/extension lists into a FilterConfig.
func NewFilterConfig(ignoredPatterns, allowedExtensions []string, maxFiles, maxTotalBytes, maxSingleFileBytes int) (*FilterConfig, error) {
	compiled := make([]*regexp.Regexp, 0, len(ignoredPatterns))
	for _, p := range ignoredPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignored pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	extSet := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		extSet[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	return &FilterConfig{
		IgnoredPatterns:    compiled,
		AllowedExtensions:  extSet,
		MaxFiles:           maxFiles,
		MaxTotalBytes:      maxTotalBytes,
		MaxSingleFileBytes: maxSingleFileBytes,
	}, nil
}

func (fc *FilterConfig) shouldIgnore(p string) bool {
	for _, re := range fc.IgnoredPatterns {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func (fc *FilterConfig) isAllowedExtension(p string) bool {
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if ext == "" {
		return false
	}
	return fc.AllowedExtensions[strings.ToLower(ext)]
}

// filterDecision is the result of running one candidate through the
// pipeline before its content is fetched.
type filterDecision int

const (
	decisionAdmit filterDecision = iota
	decisionSkip
	decisionStopCumulative
)

// evaluate runs a candidate through the ordered filter pipeline given the
// admission state so far. It never mutates fc.
func (fc *FilterConfig) evaluate(c candidate, admittedCount, admittedBytes int) (filterDecision, string, string) {
	if fc.shouldIgnore(c.path) {
		return decisionSkip, fmt.Sprintf("%s (ignored pattern)", c.path), ""
	}
	if !fc.isAllowedExtension(c.path) {
		return decisionSkip, fmt.Sprintf("%s (unsupported extension)", c.path), ""
	}
	if fc.MaxSingleFileBytes > 0 && c.size > fc.MaxSingleFileBytes {
		return decisionSkip,
			fmt.Sprintf("%s (too large: %d bytes)", c.path, c.size),
			fmt.Sprintf("skipped %s: exceeds max file size (%d bytes)", c.path, fc.MaxSingleFileBytes)
	}
	if fc.MaxFiles > 0 && admittedCount >= fc.MaxFiles {
		return decisionStopCumulative,
			fmt.Sprintf("%s (max files reached: %d)", c.path, fc.MaxFiles),
			fmt.Sprintf("reached maximum file limit (%d); remaining files were skipped", fc.MaxFiles)
	}
	if fc.MaxTotalBytes > 0 && admittedBytes+c.size > fc.MaxTotalBytes {
		return decisionStopCumulative,
			fmt.Sprintf("%s (total size limit reached)", c.path),
			fmt.Sprintf("reached total size limit (%d bytes) after %d files; remaining files were skipped", fc.MaxTotalBytes, admittedCount)
	}
	return decisionAdmit, "", ""
}

// filterCandidates runs candidates through the pipeline and returns which
// ones to admit, skip notes, and warnings. It stops admitting (but keeps
// recording skips) once a cumulative cap trips.
func filterCandidates(fc *FilterConfig, candidates []candidate) (admit []candidate, skipped, warnings []string) {
	admittedBytes := 0
	stopped := false
	for _, c := range candidates {
		if stopped {
			skipped = append(skipped, fmt.Sprintf("%s (after cumulative cap)", c.path))
			continue
		}
		decision, skipNote, warning := fc.evaluate(c, len(admit), admittedBytes)
		switch decision {
		case decisionAdmit:
			admit = append(admit, c)
			admittedBytes += c.size
		case decisionSkip:
			skipped = append(skipped, skipNote)
		case decisionStopCumulative:
			skipped = append(skipped, skipNote)
			if warning != "" {
				warnings = append(warnings, warning)
			}
			stopped = true
		}
	}
	return admit, skipped, warnings
}

func canonicalPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "/")
}
