package corpus

import (
	"fmt"
	"time"
)

// GenerateRepoID builds the opaque repo_id used to key jobs and
// checkpoints: "<owner>_<repo>_<unix-seconds>".
func GenerateRepoID(owner, repo string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d", owner, repo, now.Unix())
}
