package skills

import "embed"

// Bundled holds the skills shipped with the binary, installed into the
// system cache on first use by InstallSystemSkills.
//
//go:embed bundled
var Bundled embed.FS

// BundledRoot is the root path to pass to InstallSystemSkills/fingerprint
// when walking Bundled.
const BundledRoot = "bundled"
