package engine

import (
	"bufio"
	"io"
	"strings"
)

// milestone maps a log line marker onto coarse progress. Progress is
// informational only; completion is decided by process exit, never by log
// contents.
type milestone struct {
	marker  string
	percent int
	message string
}

var gradleMilestones = []milestone{
	{"Starting a Gradle Daemon", 10, "preparing build environment"},
	{"Task :app:preBuild", 20, "resolving dependencies"},
	{"Task :app:compile", 40, "compiling sources"},
	{"Task :app:merge", 60, "merging resources"},
	{"Task :app:package", 80, "packaging artifact"},
	{"BUILD SUCCESSFUL", 95, "finalizing"},
}

var xcodeMilestones = []milestone{
	{"Resolving package", 10, "resolving dependencies"},
	{"Planning build", 20, "planning build"},
	{"CompileSwift", 40, "compiling sources"},
	{"CompileAssetCatalog", 60, "compiling assets"},
	{"Ld ", 75, "linking"},
	{"ProcessProductPackaging", 85, "signing"},
	{"BUILD SUCCEEDED", 95, "finalizing"},
}

var archiveMilestones = []milestone{
	{"collecting sources", 30, "collecting sources"},
	{"writing archive", 70, "writing archive"},
	{"archive written", 95, "finalizing"},
}

func milestonesFor(buildType string) []milestone {
	switch buildType {
	case "ipa":
		return xcodeMilestones
	case "source":
		return archiveMilestones
	default:
		return gradleMilestones
	}
}

// scanProgress reads build output line by line and reports each milestone
// the first time it is passed. Reported progress never goes backwards.
func scanProgress(r io.Reader, buildType string, report func(percent int, message string)) {
	milestones := milestonesFor(buildType)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	best := 0
	for scanner.Scan() {
		line := scanner.Text()
		for _, m := range milestones {
			if m.percent > best && strings.Contains(line, m.marker) {
				best = m.percent
				report(m.percent, m.message)
			}
		}
	}
}
