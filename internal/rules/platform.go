package rules

import "runtime"

// OS is the operating system family as rule documents name it.
type OS string

const (
	OSX     OS = "osx"
	Windows OS = "windows"
	Linux   OS = "linux"
)

// Arch is the CPU architecture as rule documents name it.
type Arch string

const (
	// X86 covers both 32 and 64 bit x86 hosts. Rule documents use "x86" to
	// mean the 64 bit family, so amd64 reports it too.
	X86 Arch = "x86"
	ARM Arch = "arm"
	// Unknown matches every architecture predicate.
	Unknown Arch = ""
)

// Platform is the execution context rules are evaluated against. It is
// resolved once with HostPlatform and passed down explicitly.
type Platform struct {
	OS   OS
	Arch Arch
	// Bits is 64 or 32, used for the ${arch} token in native classifier names.
	Bits int
}

// HostPlatform describes the machine the process runs on.
func HostPlatform() Platform {
	return PlatformFor(runtime.GOOS, runtime.GOARCH)
}

// PlatformFor maps Go's GOOS/GOARCH names onto rule names.
func PlatformFor(goos, goarch string) Platform {
	p := Platform{OS: Linux, Arch: Unknown, Bits: 64}
	switch goos {
	case "darwin":
		p.OS = OSX
	case "windows":
		p.OS = Windows
	}
	switch goarch {
	case "386":
		p.Arch, p.Bits = X86, 32
	case "amd64":
		p.Arch = X86
	case "arm":
		p.Arch, p.Bits = ARM, 32
	case "arm64":
		p.Arch = ARM
	}
	return p
}

// ClasspathSeparator returns the separator java expects between classpath
// entries on this platform.
func (p Platform) ClasspathSeparator() string {
	if p.OS == Windows {
		return ";"
	}
	return ":"
}

// NativeExtension returns the file extension of native shared libraries on this
// platform, including the dot.
func (p Platform) NativeExtension() string {
	switch p.OS {
	case Windows:
		return ".dll"
	case OSX:
		return ".dylib"
	default:
		return ".so"
	}
}
