package runtime

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/appsemble/apprunner/internal/security"
	"github.com/appsemble/apprunner/runtime/actions"
	"github.com/appsemble/apprunner/runtime/flow"
	"github.com/appsemble/apprunner/runtime/remapper"
	"github.com/appsemble/apprunner/runtime/store"
)

// App is a loaded app definition ready to be mounted.
type App struct {
	Definition *AppDefinition
	Container  *Container
	// APIURL is handed to every session for email and notify actions.
	APIURL string

	pages     map[string]*PageDefinition
	validates map[string]map[string]*remapper.Remapper
	variables map[string]any
	l         *slog.Logger
}

// LoadApps reads every app definition in dir with loader. App ids must be
// unique, and symlinked files must not point outside dir.
func LoadApps(dir string, loader AppLoader, container *Container, l *slog.Logger) (map[string]*App, error) {
	var files []string
	for _, pattern := range loader.Extensions() {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("error reading directory: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	apps := make(map[string]*App, len(files))
	for _, file := range files {
		if _, err := security.ResolveWithinBoundary(dir, file); err != nil {
			return nil, err
		}
		def, err := loader.Load(file)
		if err != nil {
			return nil, err
		}
		if _, exists := apps[def.ID]; exists {
			return nil, fmt.Errorf("%s: duplicate app id %q", filepath.Base(file), def.ID)
		}
		app, err := NewApp(def, container, l)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(file), err)
		}
		apps[def.ID] = app
	}
	return apps, nil
}

// NewApp checks def and builds all of its actions once, so configuration
// errors surface before the app is served.
func NewApp(def *AppDefinition, container *Container, l *slog.Logger) (*App, error) {
	if def == nil || def.ID == "" {
		return nil, fmt.Errorf("app id is required")
	}
	if container == nil {
		container = NewContainer()
	}
	if l == nil {
		l = slog.Default()
	}

	variables, err := ResolveEnv(def.Variables)
	if err != nil {
		return nil, fmt.Errorf("app %q variables: %w", def.ID, err)
	}

	a := &App{
		Definition: def,
		Container:  container,
		pages:      make(map[string]*PageDefinition, len(def.Pages)),
		validates:  make(map[string]map[string]*remapper.Remapper),
		l:          l.With("app", def.ID),
	}
	if m, ok := variables.(map[string]any); ok {
		a.variables = m
	}

	for i := range def.Pages {
		page := &def.Pages[i]
		if err := a.addPage(page); err != nil {
			return nil, fmt.Errorf("app %q: %w", def.ID, err)
		}
	}
	if def.DefaultPage != "" {
		if _, ok := a.pages[def.DefaultPage]; !ok {
			return nil, fmt.Errorf("app %q: default page %q does not exist", def.ID, def.DefaultPage)
		}
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) addPage(page *PageDefinition) error {
	if page.Name == "" {
		return fmt.Errorf("page without a name")
	}
	if _, dup := a.pages[page.Name]; dup {
		return fmt.Errorf("duplicate page %q", page.Name)
	}

	switch page.Type {
	case PageTypePage, "":
		if len(page.Steps) > 0 {
			return fmt.Errorf("page %q: only flow pages have steps", page.Name)
		}
	case PageTypeFlow:
		if len(page.Steps) == 0 {
			return fmt.Errorf("page %q: flow pages need at least one step", page.Name)
		}
		if _, err := flow.ParseBackPolicy(page.Back); err != nil {
			return fmt.Errorf("page %q: %w", page.Name, err)
		}
		if _, err := flow.ParseAtStartPolicy(page.AtStart); err != nil {
			return fmt.Errorf("page %q: %w", page.Name, err)
		}
		validates := make(map[string]*remapper.Remapper)
		for _, step := range page.Steps {
			if step.Validate.IsZero() {
				continue
			}
			r, err := remapper.Compile(step.Validate.Node)
			if err != nil {
				return fmt.Errorf("page %q step %q validate: %w", page.Name, step.Name, err)
			}
			validates[step.Name] = r
		}
		a.validates[page.Name] = validates
	default:
		return fmt.Errorf("page %q: unknown page type %q", page.Name, page.Type)
	}

	a.pages[page.Name] = page
	return nil
}

// Validate builds every action of every page against a throwaway session.
func (a *App) Validate() error {
	s := a.NewSession("", nil)
	defer s.Close()

	for _, page := range a.Definition.Pages {
		m, err := a.Mount(s, page.Name, nil)
		if err != nil {
			return err
		}
		m.Close()
	}
	return nil
}

func (a *App) ID() string {
	return a.Definition.ID
}

func (a *App) Page(name string) (*PageDefinition, bool) {
	p, ok := a.pages[name]
	return p, ok
}

// PageNames lists the app's pages in definition order.
func (a *App) PageNames() []string {
	names := make([]string, 0, len(a.Definition.Pages))
	for _, p := range a.Definition.Pages {
		names = append(names, p.Name)
	}
	return names
}

// NewSession starts a running instance of the app. An empty locale uses the
// app's default locale.
func (a *App) NewSession(locale string, member *remapper.Member) *actions.Session {
	def := a.Definition
	s := actions.NewSession(remapper.AppInfo{ID: def.ID, URL: def.URL}, a.l)

	if locale == "" {
		locale = def.DefaultLocale
	}
	s.Locale = locale
	s.Member = member
	s.Translations = def.Translations
	s.APIURL = a.APIURL
	s.Variables = store.NewVariables(a.variables)

	sink := &effectSink{l: s.Logger}
	s.Messenger = sink
	s.Navigator = sink
	s.Downloader = sink

	a.Container.Apply(s)
	return s
}
