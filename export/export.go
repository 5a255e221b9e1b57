package export

import (
	"encoding/json"
	"os"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/framepad/framepad/annotate"
)

func sortForExport(list []*annotate.Annotation) {
	slices.SortFunc(list, func(a *annotate.Annotation, b *annotate.Annotation) int {
		if a.Frame != b.Frame {
			return a.Frame - b.Frame
		}
		return strings.Compare(a.Id, b.Id)
	})
}

// MarshalAnnotations serializes the collection as a JSON array, sorted by
// frame then id so repeated exports of the same state are byte-identical.
func MarshalAnnotations(annotations map[string]*annotate.Annotation) ([]byte, error) {
	list := maps.Values(annotations)
	sortForExport(list)
	return json.MarshalIndent(list, "", "  ")
}

func UnmarshalAnnotations(data []byte) (map[string]*annotate.Annotation, error) {
	list := []*annotate.Annotation{}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	annotations := make(map[string]*annotate.Annotation, len(list))
	for _, annotation := range list {
		if annotation.Id == "" {
			continue
		}
		annotations[annotation.Id] = annotation
	}
	return annotations, nil
}

func WriteFile(path string, annotations map[string]*annotate.Annotation) error {
	data, err := MarshalAnnotations(annotations)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func ReadFile(path string) (map[string]*annotate.Annotation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalAnnotations(data)
}
