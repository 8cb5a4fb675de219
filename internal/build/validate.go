package build

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedBuildType = errors.New("unsupported build type")
	ErrUnsupportedBuildMode = errors.New("unsupported build mode")
	ErrUnsupportedPlatform  = errors.New("unsupported target platform")
	ErrPlatformMismatch     = errors.New("build type does not match target platform")
)

// normalizeRequest fills derivable fields and rejects unsupported
// combinations before any record exists. Everything caught here surfaces
// synchronously to the caller.
func normalizeRequest(req *Request) error {
	switch req.BuildType {
	case TypeAPK, TypeAAB, TypeIPA, TypeSource:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedBuildType, req.BuildType)
	}

	if req.BuildMode == "" {
		req.BuildMode = ModeDebug
	}
	switch req.BuildMode {
	case ModeDebug, ModeRelease:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedBuildMode, req.BuildMode)
	}

	if req.TargetPlatform == "" {
		req.TargetPlatform = defaultPlatform(req.BuildType)
	}
	switch req.TargetPlatform {
	case PlatformAndroid, PlatformIOS:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, req.TargetPlatform)
	}

	switch req.BuildType {
	case TypeAPK, TypeAAB:
		if req.TargetPlatform != PlatformAndroid {
			return fmt.Errorf("%w: %s builds require android", ErrPlatformMismatch, req.BuildType)
		}
	case TypeIPA:
		if req.TargetPlatform != PlatformIOS {
			return fmt.Errorf("%w: ipa builds require ios", ErrPlatformMismatch)
		}
	}

	return nil
}

func defaultPlatform(buildType BuildType) Platform {
	if buildType == TypeIPA {
		return PlatformIOS
	}
	return PlatformAndroid
}
