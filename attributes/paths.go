package attributes

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kbukum/capsule/errors"
)

// PathBuilder renders the attribute map of a parameter as a path.
type PathBuilder interface {
	BuildPath(attrs map[string]any) (string, error)
}

// PathBuilderFunc adapts a function to PathBuilder.
type PathBuilderFunc func(attrs map[string]any) (string, error)

// BuildPath calls f.
func (f PathBuilderFunc) BuildPath(attrs map[string]any) (string, error) { return f(attrs) }

// NewPathBuilder returns the builder of a known layout rooted at root.
func NewPathBuilder(layout, root string) (PathBuilder, error) {
	switch layout {
	case "bids":
		return BIDS{Root: root}, nil
	case "brainvisa":
		return BrainVISA{Root: root}, nil
	default:
		return nil, errors.InvalidInput("layout", "unknown path layout "+layout)
	}
}

// BIDS lays paths out as
//
//	{folder}/[{process}/]sub-{sub}/ses-{ses}/[{data_type}/]sub-{sub}_ses-{ses}[_task-{task}]...[_{suffix}].{extension}
//
// with folder defaulting to "derivative".
type BIDS struct {
	Root string
}

var bidsEntities = []string{"task", "acq", "ce", "rec", "run", "echo", "part"}

// BuildPath implements PathBuilder.
func (b BIDS) BuildPath(attrs map[string]any) (string, error) {
	sub, ses, ext := str(attrs, "sub"), str(attrs, "ses"), str(attrs, "extension")
	for _, req := range [][2]string{{"sub", sub}, {"ses", ses}, {"extension", ext}} {
		if req[1] == "" {
			return "", errors.MissingField(req[0])
		}
	}
	folder, proc, dataType := str(attrs, "folder"), str(attrs, "process"), str(attrs, "data_type")
	switch {
	case folder == "":
		folder = "derivative"
	case proc != "" && folder != "derivative":
		return "", errors.InvalidInput("folder", "a process requires the derivative folder")
	}
	if dataType == "" && proc == "" {
		return "", errors.InvalidInput("data_type", "either data_type or process is required")
	}

	parts := []string{b.Root, folder}
	if proc != "" {
		parts = append(parts, proc)
	}
	parts = append(parts, "sub-"+sub, "ses-"+ses)
	if dataType != "" {
		parts = append(parts, dataType)
	}

	name := []string{"sub-" + sub, "ses-" + ses}
	for _, key := range bidsEntities {
		if v := str(attrs, key); v != "" {
			name = append(name, key+"-"+v)
		}
	}
	if suffix := str(attrs, "suffix"); suffix != "" {
		name = append(name, suffix)
	}
	parts = append(parts, strings.Join(name, "_")+"."+ext)
	return filepath.Join(parts...), nil
}

// BrainVISA lays paths out as
//
//	{center}/{subject}/[{modality}/][{process}/]{acquisition}/[{preprocessings}/]{analysis}/[{seg_directory}/]
//	  [{side}][{prefix}_][{short_prefix}]{subject}[_to_avg_{longitudinal}][_{sidebis}{suffix}][.{extension}]
//
// with acquisition and analysis defaulting to "default_acquisition" and
// "default_analysis".
type BrainVISA struct {
	Root string
}

// BuildPath implements PathBuilder.
func (b BrainVISA) BuildPath(attrs map[string]any) (string, error) {
	center, subject := str(attrs, "center"), str(attrs, "subject")
	if center == "" {
		return "", errors.MissingField("center")
	}
	if subject == "" {
		return "", errors.MissingField("subject")
	}
	defaults := map[string]string{"acquisition": "default_acquisition", "analysis": "default_analysis"}

	parts := []string{b.Root}
	for _, key := range []string{"center", "subject", "modality", "process", "acquisition", "preprocessings", "analysis"} {
		v := str(attrs, key)
		if v == "" {
			v = defaults[key]
		}
		if v != "" {
			parts = append(parts, v)
		}
	}
	if seg := str(attrs, "seg_directory"); seg != "" {
		parts = append(parts, strings.Split(seg, "/")...)
	}
	if version := str(attrs, "sulci_graph_version"); version != "" {
		parts = append(parts, version)
		if session := str(attrs, "sulci_recognition_session"); session != "" {
			kind := str(attrs, "sulci_recognition_type")
			if kind == "" {
				kind = "auto"
			}
			parts = append(parts, session+"_"+kind)
		}
	}

	var name strings.Builder
	name.WriteString(str(attrs, "side"))
	if prefix := str(attrs, "prefix"); prefix != "" {
		name.WriteString(prefix + "_")
	}
	name.WriteString(str(attrs, "short_prefix"))
	if in, ok := attrs["subject_in_filename"].(bool); !ok || in {
		name.WriteString(subject)
	}
	if long := str(attrs, "longitudinal"); long != "" {
		name.WriteString("_to_avg_" + long)
	}
	sidebis, suffix := str(attrs, "sidebis"), str(attrs, "suffix")
	if sidebis != "" || suffix != "" {
		if name.Len() > 0 {
			name.WriteString("_")
		}
		name.WriteString(sidebis + suffix)
	}
	if ext := str(attrs, "extension"); ext != "" {
		name.WriteString("." + ext)
	}
	parts = append(parts, name.String())
	return filepath.Join(parts...), nil
}

// str renders an attribute value; lists are joined with "_".
func str(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, "_")
	case []any:
		items := make([]string, len(v))
		for i, item := range v {
			items[i] = fmt.Sprint(item)
		}
		return strings.Join(items, "_")
	default:
		return fmt.Sprint(v)
	}
}
