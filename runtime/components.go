package runtime

import (
	"github.com/appsemble/apprunner/runtime/actions"
	"github.com/appsemble/apprunner/runtime/remapper"
)

// AppDefinition is an app as written in its definition file.
type AppDefinition struct {
	ID            string                       `yaml:"id" json:"id"`
	Name          string                       `yaml:"name" json:"name,omitempty"`
	URL           string                       `yaml:"url" json:"url,omitempty"`
	DefaultLocale string                       `yaml:"defaultLocale" json:"defaultLocale,omitempty"`
	DefaultPage   string                       `yaml:"defaultPage" json:"defaultPage,omitempty"`
	Variables     map[string]any               `yaml:"variables" json:"variables,omitempty"`
	Translations  map[string]map[string]string `yaml:"translations" json:"translations,omitempty"`
	Pages         []PageDefinition             `yaml:"pages" json:"pages"`
}

type PageType string

const (
	PageTypePage PageType = "page"
	PageTypeFlow PageType = "flow"
)

// Actions dispatched by the flow machine itself rather than by the user.
const (
	ActionFlowFinish = "onFlowFinish"
	ActionFlowCancel = "onFlowCancel"
)

type PageDefinition struct {
	Name    string                         `yaml:"name" json:"name"`
	Type    PageType                       `yaml:"type" json:"type,omitempty"`
	Actions map[string]*actions.Definition `yaml:"actions" json:"actions,omitempty"`

	// Flow pages only.
	Steps   []StepDefinition `yaml:"steps" json:"steps,omitempty"`
	Back    string           `yaml:"back" json:"back,omitempty"`
	AtStart string           `yaml:"atStart" json:"atStart,omitempty"`
}

// StepDefinition is one step of a flow page. Its actions take precedence over
// the page's actions of the same name while the step is current.
type StepDefinition struct {
	Name    string                         `yaml:"name" json:"name"`
	Actions map[string]*actions.Definition `yaml:"actions" json:"actions,omitempty"`
	// Validate must produce a truthy value for the step's data before the
	// flow moves on with Next.
	Validate remapper.Source `yaml:"validate" json:"validate,omitempty"`
}

func (p *PageDefinition) IsFlow() bool {
	return p.Type == PageTypeFlow
}
