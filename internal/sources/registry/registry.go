package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strings"
)

// DefaultHealthPath is probed when a service does not declare one.
const DefaultHealthPath = "/health"

// Service is a resolved downstream service.
type Service struct {
	Name       string
	BaseURL    string // scheme://host[:port][/base], no trailing slash
	HealthPath string
}

// URL joins the base URL with path.
func (s Service) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.BaseURL + path
}

// Services maps a lowercase service name to its resolution.
type Services map[string]Service

// Names returns the registered names, sorted.
func (s Services) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve loads the registry file (a missing file counts as empty), applies the
// URL overrides, and checks that every required service ended up with a URL.
func Resolve(loader *Loader, overrides map[string]string, required []string) (Services, error) {
	file, err := loader.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return Build(file, overrides, required)
}

// Build merges file entries with overrides (override wins) and validates the result.
func Build(file File, overrides map[string]string, required []string) (Services, error) {
	props := make(map[string]ServiceProps, len(file.Services)+len(overrides))
	for name, p := range file.Services {
		props[normalizeName(name)] = p
	}
	for name, u := range overrides {
		key := normalizeName(name)
		p := props[key]
		p.URL = u
		props[key] = p
	}

	services := make(Services, len(props))
	for name, p := range props {
		if strings.TrimSpace(p.URL) == "" {
			continue
		}
		base, err := normalizeBaseURL(p.URL)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", name, err)
		}
		health := strings.TrimSpace(p.Health)
		if health == "" {
			health = DefaultHealthPath
		}
		if !strings.HasPrefix(health, "/") {
			health = "/" + health
		}
		services[name] = Service{Name: name, BaseURL: base, HealthPath: health}
	}

	var missing []string
	for _, name := range required {
		if _, ok := services[normalizeName(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("no url configured for services: %s", strings.Join(missing, ", "))
	}

	return services, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}
