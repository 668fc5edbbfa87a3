package execctx

import (
	"fmt"
	"path/filepath"
	"strings"
)

// toolVars maps the settings of known tools to the variables their
// command lines expect.
var toolVars = map[string]map[string]string{
	"afni":       {"directory": "AFNIPATH"},
	"ants":       {"directory": "ANTSPATH"},
	"freesurfer": {"setup_script": "FREESURFER_SETUP", "subjects_dir": "SUBJECTS_DIR"},
	"fsl":        {"directory": "FSLDIR", "setup_script": "FSL_CONFIG", "prefix": "FSL_PREFIX"},
	"matlab":     {"executable": "MATLAB_EXECUTABLE", "mcr_directory": "MATLAB_MCR_DIRECTORY"},
	"mrtrix":     {"directory": "MRTRIXPATH"},
	"spm":        {"directory": "SPM_DIRECTORY", "version": "SPM_VERSION", "standalone": "SPM_STANDALONE"},
}

// toolVariables returns the variables derived from one tool configuration.
// An "env" entry adds variables verbatim, for tools not listed in toolVars.
func toolVariables(tool string, cfg map[string]any) map[string]string {
	out := make(map[string]string)
	for key, name := range toolVars[tool] {
		if v, ok := cfg[key]; ok && v != nil {
			out[name] = formatSetting(v)
		}
	}
	if tool == "freesurfer" {
		if script, ok := out["FREESURFER_SETUP"]; ok {
			out["FREESURFER_HOME"] = filepath.Dir(script)
		}
	}
	if env, ok := cfg["env"].(map[string]any); ok {
		for k, v := range env {
			out[k] = formatSetting(v)
		}
	}
	return out
}

func formatSetting(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = formatSetting(item)
		}
		return strings.Join(parts, string(filepath.ListSeparator))
	default:
		return fmt.Sprint(v)
	}
}
