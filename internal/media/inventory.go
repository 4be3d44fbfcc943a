package media

import "slices"

// Inventory is the media available on the resources qube.
type Inventory struct {
	Resources   string   `json:"resources" yaml:"resources"`
	Images      []string `json:"images" yaml:"images"`
	AnswerFiles []string `json:"answerFiles" yaml:"answerFiles"`
}

// HasImage reports whether name is a known installation image.
func (i *Inventory) HasImage(name string) bool {
	return slices.Contains(i.Images, name)
}

// HasAnswerFile reports whether name is a known answer file.
func (i *Inventory) HasAnswerFile(name string) bool {
	return slices.Contains(i.AnswerFiles, name)
}
