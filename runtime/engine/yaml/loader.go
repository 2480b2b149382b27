// Package yaml loads app definitions written in YAML or JSON.
package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/appsemble/apprunner/runtime"
	goyaml "gopkg.in/yaml.v3"
)

// AppLoader loads app definitions. JSON files are read through the same
// decoder since every JSON document is valid YAML.
type AppLoader struct{}

func NewAppLoader() *AppLoader {
	return &AppLoader{}
}

func (l *AppLoader) Extensions() []string {
	return []string{"*.yaml", "*.yml", "*.json"}
}

func (l *AppLoader) Load(filePath string) (*runtime.AppDefinition, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading app file: %w", err)
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(filePath), err)
	}

	// The file name is the app id unless the definition says otherwise.
	if def.ID == "" {
		def.ID = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	return def, nil
}

// Parse decodes a single app definition document.
func Parse(data []byte) (*runtime.AppDefinition, error) {
	var def runtime.AppDefinition
	if err := goyaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("error unmarshalling app definition: %w", err)
	}

	for i := range def.Pages {
		if def.Pages[i].Type == "" {
			def.Pages[i].Type = runtime.PageTypePage
		}
	}
	return &def, nil
}
