// Package configs embeds the configuration templates shipped with the
// engine, so `kbenginectl` can scaffold a project or user config
// without reaching for files on disk.
package configs

import _ "embed"

// ProjectConfigExample is the template written as .kbengine.yaml when
// a project is initialised.
//
//go:embed project-config.example.yaml
var ProjectConfigExample string
