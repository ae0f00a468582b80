package tool

import (
	"os/exec"
	"sort"
	"strings"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// Probe resolves each executable on PATH once. It returns the resolved paths
// keyed by the requested name, or ErrToolNotFound naming every missing tool.
func Probe(names ...string) (map[string]string, error) {
	found := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		if name == "" {
			continue
		}
		path, err := exec.LookPath(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		found[name] = path
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return found, job.Errorf(job.ErrToolNotFound, "probe", "%s", strings.Join(missing, ", "))
	}
	return found, nil
}
