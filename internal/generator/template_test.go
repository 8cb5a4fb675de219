package generator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iieono/make-via-backend-sub000/internal/snapshot"
)

func testSnapshot() *snapshot.AppSnapshot {
	updated := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	return &snapshot.AppSnapshot{
		App: &snapshot.App{
			ID:          "app-1",
			UserID:      "user-1",
			Name:        "Field Notes",
			PackageName: "com.makevia.fieldnotes",
			VersionName: "1.2.0",
			VersionCode: 7,
			UpdatedAt:   updated,
		},
		Pages: []snapshot.Page{
			{ID: "page-1", AppID: "app-1", Name: "Home", Route: "/", SortOrder: 0, UpdatedAt: updated},
		},
		Components: []snapshot.Component{
			{ID: "comp-1", PageID: "page-1", Type: "text", Data: snapshot.JSONMap{"value": "Welcome"}, UpdatedAt: updated},
		},
	}
}

func androidParams() Params {
	return Params{
		BuildType:      "apk",
		BuildMode:      "debug",
		TargetPlatform: "android",
	}
}

func TestTemplateGenerator_AndroidTree(t *testing.T) {
	gen := NewTemplateGenerator()

	files, err := gen.Generate(testSnapshot(), androidParams())
	require.NoError(t, err)

	for _, name := range []string{
		"app.json",
		"settings.gradle",
		"app/build.gradle",
		"app/src/main/AndroidManifest.xml",
		"app/src/main/res/values/strings.xml",
	} {
		assert.Contains(t, files, name)
	}

	gradle := string(files["app/build.gradle"])
	assert.Contains(t, gradle, "applicationId 'com.makevia.fieldnotes'")
	assert.Contains(t, gradle, "versionCode 7")
	assert.Contains(t, gradle, "versionName '1.2.0'")

	strings := string(files["app/src/main/res/values/strings.xml"])
	assert.Contains(t, strings, "<string name=\"app_name\">Field Notes</string>")
}

func TestTemplateGenerator_IOSTree(t *testing.T) {
	gen := NewTemplateGenerator()

	files, err := gen.Generate(testSnapshot(), Params{
		BuildType:      "ipa",
		BuildMode:      "release",
		TargetPlatform: "ios",
	})
	require.NoError(t, err)

	assert.Contains(t, files, "app.json")
	assert.Contains(t, files, "project.yml")
	assert.Contains(t, files, "App/Info.plist")
	assert.NotContains(t, files, "settings.gradle")

	plist := string(files["App/Info.plist"])
	assert.Contains(t, plist, "<string>com.makevia.fieldnotes</string>")
	assert.Contains(t, plist, "<string>1.2.0</string>")
}

func TestTemplateGenerator_SourceOnly(t *testing.T) {
	gen := NewTemplateGenerator()

	files, err := gen.Generate(testSnapshot(), Params{
		BuildType:      "source",
		BuildMode:      "debug",
		TargetPlatform: "",
	})
	require.NoError(t, err)

	assert.Len(t, files, 1)
	assert.Contains(t, files, "app.json")
}

func TestTemplateGenerator_Definition(t *testing.T) {
	gen := NewTemplateGenerator()

	params := androidParams()
	params.BuildConfig = map[string]any{"minify": true}

	files, err := gen.Generate(testSnapshot(), params)
	require.NoError(t, err)

	var definition struct {
		App struct {
			ID          string `json:"id"`
			PackageName string `json:"package_name"`
		} `json:"app"`
		Pages      []map[string]any `json:"pages"`
		Components []map[string]any `json:"components"`
		Build      struct {
			BuildType   string         `json:"build_type"`
			BuildConfig map[string]any `json:"build_config"`
		} `json:"build"`
	}
	require.NoError(t, json.Unmarshal(files["app.json"], &definition))

	assert.Equal(t, "app-1", definition.App.ID)
	assert.Equal(t, "com.makevia.fieldnotes", definition.App.PackageName)
	assert.Len(t, definition.Pages, 1)
	assert.Len(t, definition.Components, 1)
	assert.Equal(t, "apk", definition.Build.BuildType)
	assert.Equal(t, true, definition.Build.BuildConfig["minify"])
}

func TestTemplateGenerator_EmptySnapshot(t *testing.T) {
	gen := NewTemplateGenerator()

	_, err := gen.Generate(nil, androidParams())
	assert.Error(t, err)

	_, err = gen.Generate(&snapshot.AppSnapshot{}, androidParams())
	assert.Error(t, err)
}

func TestTemplateGenerator_EscapesAppName(t *testing.T) {
	gen := NewTemplateGenerator()

	snap := testSnapshot()
	snap.App.Name = `Ben & Jerry's <App>`

	files, err := gen.Generate(snap, androidParams())
	require.NoError(t, err)

	strings := string(files["app/src/main/res/values/strings.xml"])
	assert.Contains(t, strings, "Ben &amp; Jerry's &lt;App&gt;")

	settings := string(files["settings.gradle"])
	assert.Contains(t, settings, `Ben & Jerry\'s <App>`)
}

func TestTemplateGenerator_DefaultsVersionCode(t *testing.T) {
	gen := NewTemplateGenerator()

	snap := testSnapshot()
	snap.App.VersionCode = 0

	files, err := gen.Generate(snap, androidParams())
	require.NoError(t, err)
	assert.Contains(t, string(files["app/build.gradle"]), "versionCode 1")
}
