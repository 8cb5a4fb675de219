package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type progressReport struct {
	percent int
	message string
}

func collectProgress(log, buildType string) []progressReport {
	var reports []progressReport
	scanProgress(strings.NewReader(log), buildType, func(percent int, message string) {
		reports = append(reports, progressReport{percent: percent, message: message})
	})
	return reports
}

func TestScanProgress_GradleMilestones(t *testing.T) {
	log := strings.Join([]string{
		"Starting a Gradle Daemon (subsequent builds will be faster)",
		"> Task :app:preBuild UP-TO-DATE",
		"> Task :app:compileDebugKotlin",
		"> Task :app:mergeDebugResources",
		"> Task :app:packageDebug",
		"BUILD SUCCESSFUL in 2m 14s",
	}, "\n")

	reports := collectProgress(log, "apk")

	assert.Equal(t, []progressReport{
		{10, "preparing build environment"},
		{20, "resolving dependencies"},
		{40, "compiling sources"},
		{60, "merging resources"},
		{80, "packaging artifact"},
		{95, "finalizing"},
	}, reports)
}

func TestScanProgress_NeverGoesBackwards(t *testing.T) {
	log := strings.Join([]string{
		"> Task :app:packageDebug",
		"> Task :app:compileDebugKotlin",
		"> Task :app:preBuild",
	}, "\n")

	reports := collectProgress(log, "apk")

	assert.Equal(t, []progressReport{{80, "packaging artifact"}}, reports)
}

func TestScanProgress_ReportsEachMilestoneOnce(t *testing.T) {
	log := strings.Join([]string{
		"> Task :app:compileDebugKotlin",
		"> Task :app:compileDebugJavaWithJavac",
		"> Task :app:compileReleaseKotlin",
	}, "\n")

	reports := collectProgress(log, "apk")
	assert.Len(t, reports, 1)
}

func TestScanProgress_XcodeMilestones(t *testing.T) {
	log := strings.Join([]string{
		"Resolving package dependencies",
		"Planning build",
		"CompileSwift normal arm64 App/Main.swift",
		"Ld /build/App.app/App normal",
		"BUILD SUCCEEDED",
	}, "\n")

	reports := collectProgress(log, "ipa")

	assert.Equal(t, []progressReport{
		{10, "resolving dependencies"},
		{20, "planning build"},
		{40, "compiling sources"},
		{75, "linking"},
		{95, "finalizing"},
	}, reports)
}

func TestScanProgress_ArchiveMilestones(t *testing.T) {
	log := strings.Join([]string{
		"collecting sources",
		"writing archive",
		"archive written",
	}, "\n")

	reports := collectProgress(log, "source")
	assert.Len(t, reports, 3)
	assert.Equal(t, 95, reports[2].percent)
}

func TestScanProgress_UnknownLinesIgnored(t *testing.T) {
	reports := collectProgress("some\nrandom\noutput", "apk")
	assert.Empty(t, reports)
}

func TestMilestonesFor(t *testing.T) {
	assert.Equal(t, gradleMilestones, milestonesFor("apk"))
	assert.Equal(t, gradleMilestones, milestonesFor("aab"))
	assert.Equal(t, xcodeMilestones, milestonesFor("ipa"))
	assert.Equal(t, archiveMilestones, milestonesFor("source"))
}
