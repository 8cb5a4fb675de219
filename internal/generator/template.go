package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iieono/make-via-backend-sub000/internal/snapshot"
)

const settingsGradle = `rootProject.name = '%s'
include ':app'
`

const appBuildGradle = `plugins {
    id 'com.android.application'
    id 'org.jetbrains.kotlin.android'
}

android {
    namespace '%s'
    compileSdk 34

    defaultConfig {
        applicationId '%s'
        minSdk 24
        targetSdk 34
        versionCode %d
        versionName '%s'
    }

    buildTypes {
        release {
            minifyEnabled true
        }
        debug {
            applicationIdSuffix '.debug'
        }
    }
}
`

const androidManifest = `<?xml version="1.0" encoding="utf-8"?>
<manifest xmlns:android="http://schemas.android.com/apk/res/android">
    <application
        android:label="@string/app_name"
        android:theme="@style/Theme.AppCompat.Light.NoActionBar">
        <activity android:name=".MainActivity" android:exported="true">
            <intent-filter>
                <action android:name="android.intent.action.MAIN" />
                <category android:name="android.intent.category.LAUNCHER" />
            </intent-filter>
        </activity>
    </application>
</manifest>
`

const androidStrings = `<?xml version="1.0" encoding="utf-8"?>
<resources>
    <string name="app_name">%s</string>
</resources>
`

const iosProjectSpec = `name: %s
options:
  bundleIdPrefix: %s
targets:
  App:
    type: application
    platform: iOS
    deploymentTarget: '15.0'
    sources: [App]
    settings:
      MARKETING_VERSION: '%s'
      CURRENT_PROJECT_VERSION: '%d'
`

const iosInfoPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleDisplayName</key>
	<string>%s</string>
	<key>CFBundleIdentifier</key>
	<string>%s</string>
	<key>CFBundleShortVersionString</key>
	<string>%s</string>
	<key>CFBundleVersion</key>
	<string>%d</string>
</dict>
</plist>
`

// TemplateGenerator emits a minimal buildable skeleton around the serialized
// app definition. The builder images do the actual compilation; the tree
// produced here just has to be enough for their toolchains to pick up.
type TemplateGenerator struct{}

func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

func (g *TemplateGenerator) Generate(snap *snapshot.AppSnapshot, params Params) (map[string][]byte, error) {
	if snap == nil || snap.App == nil {
		return nil, fmt.Errorf("app snapshot is empty")
	}

	definition, err := marshalDefinition(snap, params)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize app definition: %w", err)
	}

	files := map[string][]byte{
		"app.json": definition,
	}

	switch params.TargetPlatform {
	case "android":
		g.androidTree(files, snap.App)
	case "ios":
		g.iosTree(files, snap.App)
	default:
		// Source archives carry the definition alone.
	}

	return files, nil
}

func (g *TemplateGenerator) androidTree(files map[string][]byte, app *snapshot.App) {
	files["settings.gradle"] = []byte(fmt.Sprintf(settingsGradle, gradleQuote(app.Name)))
	files["app/build.gradle"] = []byte(fmt.Sprintf(appBuildGradle,
		app.PackageName, app.PackageName, versionCode(app), app.VersionName))
	files["app/src/main/AndroidManifest.xml"] = []byte(androidManifest)
	files["app/src/main/res/values/strings.xml"] = []byte(fmt.Sprintf(androidStrings, xmlEscape(app.Name)))
}

func (g *TemplateGenerator) iosTree(files map[string][]byte, app *snapshot.App) {
	files["project.yml"] = []byte(fmt.Sprintf(iosProjectSpec,
		app.Name, app.PackageName, app.VersionName, versionCode(app)))
	files["App/Info.plist"] = []byte(fmt.Sprintf(iosInfoPlist,
		xmlEscape(app.Name), app.PackageName, app.VersionName, versionCode(app)))
}

// marshalDefinition serializes the whole snapshot plus the build parameters.
// This file is the authoritative input for the builder images.
func marshalDefinition(snap *snapshot.AppSnapshot, params Params) ([]byte, error) {
	definition := map[string]any{
		"app":        snap.App,
		"pages":      snap.Pages,
		"components": snap.Components,
		"build": map[string]any{
			"build_type":      params.BuildType,
			"build_mode":      params.BuildMode,
			"target_platform": params.TargetPlatform,
			"build_config":    params.BuildConfig,
		},
	}
	return json.MarshalIndent(definition, "", "  ")
}

func versionCode(app *snapshot.App) int {
	if app.VersionCode > 0 {
		return app.VersionCode
	}
	return 1
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}

func gradleQuote(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
